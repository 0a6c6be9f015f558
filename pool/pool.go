// Package pool implements connection acquisition: per-endpoint groups of
// sockets bounded by a global cap, a priority-ordered waiter queue, and a
// Reap method that evicts sockets that have sat idle too long or gone
// stale. Reap is not self-driving; a maintenance.Scheduler calls it on a
// ticker alongside the other long-lived stores' own sweeps.
//
// Design choices:
//   - One mutex per Pool guards every group's active/idle/waiter state
//     together with the global total, so the (active, idle, total) triple
//     never drifts out of sync under concurrent Acquire/Release.
//   - A connect job runs outside the lock (it is a network round trip), but
//     the slot it will occupy is reserved under the lock first, mirroring
//     the teacher's pattern of reserving capacity before starting
//     long-running work.
package pool

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/corvid-labs/wireclient/netsock"
	"github.com/corvid-labs/wireclient/wireerr"
)

const (
	maxGroupSockets = 6
	maxGlobalTotal  = 256

	usedIdleThreshold   = 5 * time.Minute
	unusedIdleThreshold = 10 * time.Second
)

// ConnectFunc dials a fresh socket for key. The pool calls it with the lock
// released so a slow connect never blocks other groups.
type ConnectFunc func(ctx context.Context, key string) (*netsock.Socket, error)

type idleSocket struct {
	socket    *netsock.Socket
	idleSince time.Time
}

type group struct {
	active int
	idle   []idleSocket
	wait   waiterQueue
}

// Pool governs socket acquisition for any number of endpoint keys.
type Pool struct {
	mu        sync.Mutex
	groups    map[string]*group
	total     int
	connect   ConnectFunc
	maxGroup  int
	maxGlobal int
}

// New returns a Pool that dials new sockets with connect, using the
// package's default per-host and global caps.
func New(connect ConnectFunc) *Pool {
	return NewWithLimits(connect, maxGroupSockets, maxGlobalTotal)
}

// NewWithLimits returns a Pool with caller-supplied per-host and global
// socket caps, for a Context built from a clientconfig.Config. A
// non-positive value falls back to the package default.
func NewWithLimits(connect ConnectFunc, maxGroup, maxGlobal int) *Pool {
	if maxGroup <= 0 {
		maxGroup = maxGroupSockets
	}
	if maxGlobal <= 0 {
		maxGlobal = maxGlobalTotal
	}
	return &Pool{
		groups:    make(map[string]*group),
		connect:   connect,
		maxGroup:  maxGroup,
		maxGlobal: maxGlobal,
	}
}

// Close does not close any sockets still checked out or idle; it exists so
// a caller can treat Pool uniformly with the other long-lived Context
// state that does need an explicit shutdown step.
func (p *Pool) Close() {}

func (p *Pool) groupFor(key string) *group {
	g, ok := p.groups[key]
	if !ok {
		g = &group{}
		p.groups[key] = g
	}
	return g
}

// Acquire returns a usable socket for key, probing idle sockets, spawning a
// new connect job when the group and global caps allow it, or waiting in
// the priority queue otherwise. Canceling ctx while waiting removes the
// waiter without leaking a reserved slot.
func (p *Pool) Acquire(ctx context.Context, key string, priority int) (*netsock.Socket, error) {
	for {
		p.mu.Lock()
		g := p.groupFor(key)

		for len(g.idle) > 0 {
			last := len(g.idle) - 1
			candidate := g.idle[last]
			g.idle = g.idle[:last]
			p.mu.Unlock()

			usable, _ := candidate.socket.Probe()
			if !usable {
				_ = candidate.socket.Close()
				p.mu.Lock()
				p.total--
				continue
			}
			p.mu.Lock()
			g.active++
			p.mu.Unlock()
			return candidate.socket, nil
		}

		if g.active+len(g.idle) < p.maxGroup && p.total < p.maxGlobal {
			g.active++
			p.total++
			p.mu.Unlock()

			socket, err := p.connect(ctx, key)
			if err != nil {
				p.mu.Lock()
				g.active--
				p.total--
				p.wakeOne(g)
				p.mu.Unlock()
				return nil, err
			}
			return socket, nil
		}

		w := &waiter{priority: priority, arrival: time.Now(), result: make(chan *netsock.Socket, 1)}
		heap.Push(&g.wait, w)
		p.mu.Unlock()

		select {
		case socket := <-w.result:
			if socket == nil {
				continue // woken to retry acquisition from scratch
			}
			return socket, nil
		case <-ctx.Done():
			p.mu.Lock()
			g.wait.remove(w)
			p.mu.Unlock()
			// A Release or wakeOne that popped this waiter before the lock
			// was taken has already sent on w.result; pass that on so
			// neither the socket's slot nor the wake-up is lost.
			select {
			case socket := <-w.result:
				if socket != nil {
					p.Release(key, socket)
				} else {
					p.mu.Lock()
					p.wakeOne(g)
					p.mu.Unlock()
				}
			default:
			}
			return nil, wireerr.Sentinel(wireerr.KindConnectionTimedOut)
		}
	}
}

// Release returns socket to the pool. A waiter on the same group is handed
// the socket directly (without it ever touching the idle list) when one is
// queued; otherwise it joins the idle list.
func (p *Pool) Release(key string, socket *netsock.Socket) {
	p.mu.Lock()
	defer p.mu.Unlock()

	g := p.groupFor(key)
	g.active--

	if g.wait.Len() > 0 {
		w := heap.Pop(&g.wait).(*waiter)
		g.active++ // handed straight to the waiter, never goes idle
		w.result <- socket
		return
	}
	g.idle = append(g.idle, idleSocket{socket: socket, idleSince: time.Now()})
}

// wakeOne nudges a single waiter to retry acquisition from scratch, used
// when a connect attempt fails and its reserved slot frees up.
func (p *Pool) wakeOne(g *group) {
	if g.wait.Len() == 0 {
		return
	}
	w := heap.Pop(&g.wait).(*waiter)
	w.result <- nil
}

// Stats reports the current (active, idle, global total) for diagnostics.
func (p *Pool) Stats(key string) (active, idle, global int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[key]
	if !ok {
		return 0, 0, p.total
	}
	return g.active, len(g.idle), p.total
}

// GlobalTotal reports the pool-wide socket count, across every group, for a
// stats endpoint that doesn't care about any one host.
func (p *Pool) GlobalTotal() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Reap closes every idle socket that has sat past its idle threshold or
// failed a liveness probe, and returns how many it closed. It does not run
// itself on a ticker; a maintenance.Scheduler calls it periodically.
func (p *Pool) Reap() int {
	p.mu.Lock()
	now := time.Now()
	var toClose []*netsock.Socket
	for _, g := range p.groups {
		kept := g.idle[:0]
		for _, is := range g.idle {
			threshold := unusedIdleThreshold
			if is.socket.WasEverUsed() {
				threshold = usedIdleThreshold
			}
			if now.Sub(is.idleSince) > threshold {
				toClose = append(toClose, is.socket)
				p.total--
				continue
			}
			if usable, _ := is.socket.Probe(); !usable {
				toClose = append(toClose, is.socket)
				p.total--
				continue
			}
			kept = append(kept, is)
		}
		g.idle = kept
	}
	p.mu.Unlock()

	for _, s := range toClose {
		_ = s.Close()
	}
	return len(toClose)
}
