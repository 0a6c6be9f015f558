package engine

import (
	"context"
	"sync"

	"github.com/corvid-labs/wireclient/stream"
)

// Result pairs one Outbound from a DoMany batch with its response or error,
// indexed to match the input order.
type Result struct {
	Index    int
	Response *stream.Response
	Err      error
}

// DoMany runs every request in reqs through Do, bounded to concurrency
// requests in flight at once, and returns one Result per request in input
// order. A concurrency of 0 or less falls back to one request at a time.
//
// The bound is a counting semaphore sized concurrency: a slot is reserved
// before a request's goroutine starts and released when that request
// finishes, the same reserve-the-slot-before-starting-the-work idiom
// pool.Pool uses to cap socket concurrency — DoMany just applies it to
// whole requests instead of sockets, so a batch never needs its own
// generic job-queue abstraction alongside the pool that already governs
// concurrency for every connection underneath it.
func (c *Context) DoMany(ctx context.Context, reqs []*Outbound, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]Result, len(reqs))
	slots := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	wg.Add(len(reqs))
	for i, req := range reqs {
		i, req := i, req
		slots <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			resp, err := c.Do(ctx, req)
			results[i] = Result{Index: i, Response: resp, Err: err}
		}()
	}
	wg.Wait()

	return results
}
