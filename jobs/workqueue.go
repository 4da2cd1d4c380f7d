package jobs

import (
	"fmt"
	"sync/atomic"
)

// workItem identifies one runnable task: the job slot (plus one) in the high half and the task id in
// the low half. The zero item means "no work".
type workItem uint64

func newWorkItem(slot int, t TaskId) workItem {
	return workItem(uint64(slot+1)<<32 | uint64(t))
}

func (w workItem) valid() bool  { return w != 0 }
func (w workItem) slot() int    { return int(w>>32) - 1 }
func (w workItem) task() TaskId { return TaskId(uint32(w)) }

type cacheLinePad [64]byte

// workQueue is a fixed-capacity Chase-Lev deque. Only the owning worker may push and pop (at the
// bottom); any goroutine may steal (from the top).
//
// Go's sync/atomic operations are sequentially consistent, which subsumes the orderings the
// algorithm needs: the owner's bottom store releases the slot write to thieves, a thief's top load
// acquires it, and the store-bottom / load-top pair in pop acts as the full fence.
type workQueue struct {
	top    atomic.Int64
	_      cacheLinePad
	bottom atomic.Int64
	_      cacheLinePad
	mask   int64
	items  []atomic.Uint64
}

func newWorkQueue(capacity int) *workQueue {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("work queue capacity %d is not a power of two", capacity))
	}
	return &workQueue{
		mask:  int64(capacity - 1),
		items: make([]atomic.Uint64, capacity),
	}
}

// size returns an approximation of the number of queued items.
func (q *workQueue) size() int {
	b := q.bottom.Load()
	t := q.top.Load()
	return int(max(b-t, 0))
}

// push adds an item at the bottom. Owner only.
func (q *workQueue) push(item workItem) {
	b := q.bottom.Load()
	t := q.top.Load()
	if b-t > q.mask {
		panic(fmt.Sprintf("work queue exhausted (capacity: %d)", q.mask+1))
	}
	q.items[b&q.mask].Store(uint64(item))
	q.bottom.Store(b + 1)
}

// pop removes the most recently pushed item. Owner only.
func (q *workQueue) pop() workItem {
	b := q.bottom.Load() - 1
	q.bottom.Store(b)
	t := q.top.Load()

	if t > b {
		// Empty; restore.
		q.bottom.Store(b + 1)
		return 0
	}

	item := workItem(q.items[b&q.mask].Load())
	if t == b {
		// Last item; race any thief for it.
		if !q.top.CompareAndSwap(t, t+1) {
			item = 0
		}
		q.bottom.Store(b + 1)
	}
	return item
}

// steal removes the oldest item. Safe to call from any goroutine; returns the zero item when the
// queue is empty or another goroutine won the race.
func (q *workQueue) steal() workItem {
	t := q.top.Load()
	b := q.bottom.Load()
	if t >= b {
		return 0
	}
	item := workItem(q.items[t&q.mask].Load())
	if !q.top.CompareAndSwap(t, t+1) {
		return 0
	}
	return item
}
