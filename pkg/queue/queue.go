// Package queue implements the per-peer request queue of Lamport's
// mutual-exclusion algorithm: a priority queue of (peer, timestamp)
// entries ordered by extended Lamport time, with at most one entry per
// peer at any moment.
//
// RequestQueue is not goroutine-safe. Each peer owns exactly one and
// mutates it only from its own processing loop.
package queue

import (
	"container/heap"
	"errors"

	"github.com/daviddao/lamportsim/pkg/model"
)

// ErrDuplicateEntry is returned when a peer id that already has an
// un-released entry is pushed again. Two outstanding requests from the
// same peer mean the protocol is broken.
var ErrDuplicateEntry = errors.New("queue: peer already has an entry")

// RequestQueue holds the pending requests a peer knows about, head-first
// in extended Lamport order.
type RequestQueue struct {
	entries entryHeap
	members map[int]struct{}
}

// New returns an empty request queue.
func New() *RequestQueue {
	return &RequestQueue{members: make(map[int]struct{})}
}

// Push inserts a request entry. Rejects a second entry for a peer that
// already has one outstanding.
func (q *RequestQueue) Push(e model.Entry) error {
	if _, ok := q.members[e.Peer]; ok {
		return ErrDuplicateEntry
	}
	q.members[e.Peer] = struct{}{}
	heap.Push(&q.entries, e)
	return nil
}

// Head returns the entry with the smallest extended Lamport time without
// removing it. The second result is false if the queue is empty.
func (q *RequestQueue) Head() (model.Entry, bool) {
	if len(q.entries) == 0 {
		return model.Entry{}, false
	}
	return q.entries[0], true
}

// Pop removes and returns the head entry. The second result is false if
// the queue is empty.
func (q *RequestQueue) Pop() (model.Entry, bool) {
	if len(q.entries) == 0 {
		return model.Entry{}, false
	}
	e := heap.Pop(&q.entries).(model.Entry)
	delete(q.members, e.Peer)
	return e, true
}

// Contains reports whether the peer currently has an entry in the queue.
func (q *RequestQueue) Contains(peer int) bool {
	_, ok := q.members[peer]
	return ok
}

// Len returns the number of pending entries.
func (q *RequestQueue) Len() int { return len(q.entries) }

// entryHeap implements heap.Interface over request entries.
type entryHeap []model.Entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(model.Entry)) }

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
