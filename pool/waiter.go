package pool

import (
	"container/heap"
	"time"

	"github.com/corvid-labs/wireclient/netsock"
)

// waiter is one pending Acquire call queued on a group. result is sent at
// most once: a socket on success, or nil to tell the waiter to retry
// acquisition from scratch (used when a reserved connect slot frees up
// after a failed dial).
type waiter struct {
	priority int
	arrival  time.Time
	index    int
	result   chan *netsock.Socket
}

// waiterQueue orders waiters by (priority desc, arrival asc) and implements
// container/heap.Interface so Acquire/Release operate in O(log n).
type waiterQueue []*waiter

func (q waiterQueue) Len() int { return len(q) }

func (q waiterQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].arrival.Before(q[j].arrival)
}

func (q waiterQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waiterQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waiterQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return w
}

// remove drops w from the queue if still present, used when Acquire's
// caller cancels context while waiting.
func (q *waiterQueue) remove(w *waiter) {
	if w.index < 0 || w.index >= len(*q) || (*q)[w.index] != w {
		return
	}
	heap.Remove(q, w.index)
}
