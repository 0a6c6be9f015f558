// Package metrics provides lightweight, lock-free request counters using
// atomic operations so they impose minimal overhead on the request hot
// path.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks aggregate statistics for a single engine.Context.
//
// All counters are accessed exclusively through atomic operations, which means:
//   - There is no mutex contention even under many concurrent requests.
//   - The struct may be embedded or passed as a pointer without additional
//     synchronisation.
//   - Reads and writes are linearisable: a value read after a write always
//     reflects at least that write.
type Metrics struct {
	// TotalRequests is the number of top-level Do() calls dispatched.
	TotalRequests uint64

	// Success is the number of requests that completed with a response
	// (any status code) and no transport error.
	Success uint64

	// Failed is the number of requests that ended in a transport error —
	// the connect pipeline, the wire send, or the redirect loop failed.
	Failed uint64

	// Retries is the number of times the transaction layer re-created a
	// stream after a reused-socket failure.
	Retries uint64

	// Redirects is the number of 3xx hops followed across every request.
	Redirects uint64

	// BytesRead is the cumulative number of response body bytes callers
	// have read, counted as they are read.
	BytesRead uint64

	// startTime records when the metrics instance was created so that
	// RequestsPerSecond can compute a meaningful rate.
	startTime time.Time
}

// New creates a Metrics instance with the start time set to now.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// IncrementTotal atomically increments the total-requests counter.
func (m *Metrics) IncrementTotal() {
	atomic.AddUint64(&m.TotalRequests, 1)
}

// IncrementSuccess atomically increments the successful-requests counter.
func (m *Metrics) IncrementSuccess() {
	atomic.AddUint64(&m.Success, 1)
}

// IncrementFailed atomically increments the failed-requests counter.
func (m *Metrics) IncrementFailed() {
	atomic.AddUint64(&m.Failed, 1)
}

// IncrementRetries atomically increments the retry counter.
func (m *Metrics) IncrementRetries() {
	atomic.AddUint64(&m.Retries, 1)
}

// IncrementRedirects atomically increments the redirect-hop counter.
func (m *Metrics) IncrementRedirects() {
	atomic.AddUint64(&m.Redirects, 1)
}

// AddBytesRead atomically adds n to the cumulative response-bytes counter.
func (m *Metrics) AddBytesRead(n uint64) {
	atomic.AddUint64(&m.BytesRead, n)
}

// RequestsPerSecond returns the average request rate since the Metrics
// instance was created. Returns 0 if no measurable time has elapsed since
// creation, to avoid division by zero.
func (m *Metrics) RequestsPerSecond() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&m.TotalRequests)) / elapsed
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	TotalRequests uint64 `json:"total_requests"`
	Success       uint64 `json:"success"`
	Failed        uint64 `json:"failed"`
	Retries       uint64 `json:"retries"`
	Redirects     uint64 `json:"redirects"`
	BytesRead     uint64 `json:"bytes_read"`
}

// Snapshot returns the current counter values. Because the loads are not
// performed under a single lock, the result may be very slightly
// inconsistent at nanosecond granularity, which is acceptable for
// monitoring purposes.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests: atomic.LoadUint64(&m.TotalRequests),
		Success:       atomic.LoadUint64(&m.Success),
		Failed:        atomic.LoadUint64(&m.Failed),
		Retries:       atomic.LoadUint64(&m.Retries),
		Redirects:     atomic.LoadUint64(&m.Redirects),
		BytesRead:     atomic.LoadUint64(&m.BytesRead),
	}
}
