// Package maintenance drives the periodic sweeps the long-lived Context
// state needs but that nothing on the request path triggers on its own: the
// socket pool's idle reaper, the HSTS store's expired-entry prune, and the
// cookie jar's expired-cookie GC. A single ticker fires all three instead of
// each store running its own background goroutine.
package maintenance

import (
	"sync"
	"time"
)

// DefaultInterval is how often Start sweeps when New is given a
// non-positive interval.
const DefaultInterval = 60 * time.Second

// Reaper evicts stale connections and reports how many it closed.
// pool.Pool.Reap satisfies this.
type Reaper interface {
	Reap() int
}

// Pruner removes expired entries and reports how many it removed.
// security.HSTSStore.Prune satisfies this.
type Pruner interface {
	Prune() int
}

// GarbageCollector removes expired entries and reports how many it removed.
// cookiejar.Jar.GC satisfies this.
type GarbageCollector interface {
	GC() int
}

// Scheduler owns the single ticker that sweeps a Reaper, a Pruner and a
// GarbageCollector. Any dependency may be nil, in which case its sweep is
// skipped; this lets a caller build a Scheduler before every store it drives
// exists, or drive only a subset of them in a test.
type Scheduler struct {
	reaper  Reaper
	pruner  Pruner
	gc      GarbageCollector
	onSweep func(reaped, pruned, collected int)

	interval  time.Duration
	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New returns a Scheduler that sweeps reaper, pruner and gc every interval.
// A non-positive interval falls back to DefaultInterval. onSweep, if
// non-nil, is called after every sweep with the counts each dependency
// reported, for logging; it is never called concurrently with itself.
func New(reaper Reaper, pruner Pruner, gc GarbageCollector, interval time.Duration, onSweep func(reaped, pruned, collected int)) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		reaper:   reaper,
		pruner:   pruner,
		gc:       gc,
		onSweep:  onSweep,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// SweepOnce runs every configured dependency's sweep exactly once, outside
// of the ticker loop, and returns the counts. Exported so Start's periodic
// behavior and a one-shot caller (a test, or a signal handler wanting one
// last sweep before shutdown) share the same code path.
func (s *Scheduler) SweepOnce() (reaped, pruned, collected int) {
	if s.reaper != nil {
		reaped = s.reaper.Reap()
	}
	if s.pruner != nil {
		pruned = s.pruner.Prune()
	}
	if s.gc != nil {
		collected = s.gc.GC()
	}
	if s.onSweep != nil {
		s.onSweep(reaped, pruned, collected)
	}
	return reaped, pruned, collected
}

// Start launches the background goroutine that calls SweepOnce every
// interval. Idempotent: calling Start more than once is a no-op.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.loop()
	})
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// Stop signals the background goroutine to exit and waits for it to return.
// Idempotent, and safe to call even if Start was never called.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
