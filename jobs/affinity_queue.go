package jobs

import (
	"fmt"
	"sync/atomic"
)

type affinitySlot struct {
	seq  atomic.Uint64
	item atomic.Uint64
}

// affinityQueue is a bounded multi-producer single-consumer ring of work items. Any goroutine may
// push; only the affinity worker pops. Each slot carries a sequence number telling producers and the
// consumer whose turn it is.
type affinityQueue struct {
	head  atomic.Uint64 // Next position to pop; consumer only.
	_     cacheLinePad
	tail  atomic.Uint64 // Next position to push.
	_     cacheLinePad
	mask  uint64
	slots []affinitySlot
}

func newAffinityQueue(capacity int) *affinityQueue {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("affinity queue capacity %d is not a power of two", capacity))
	}
	q := &affinityQueue{
		mask:  uint64(capacity - 1),
		slots: make([]affinitySlot, capacity),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

func (q *affinityQueue) push(item workItem) {
	for {
		pos := q.tail.Load()
		slot := &q.slots[pos&q.mask]
		seq := slot.seq.Load()

		switch {
		case seq == pos:
			if q.tail.CompareAndSwap(pos, pos+1) {
				slot.item.Store(uint64(item))
				slot.seq.Store(pos + 1)
				return
			}
		case seq < pos:
			panic(fmt.Sprintf("affinity queue exhausted (capacity: %d)", q.mask+1))
		}
		// Another producer claimed the position; retry with a fresh tail.
	}
}

func (q *affinityQueue) pop() workItem {
	pos := q.head.Load()
	slot := &q.slots[pos&q.mask]
	if slot.seq.Load() != pos+1 {
		return 0 // Empty, or the producer has not finished writing.
	}
	item := workItem(slot.item.Load())
	slot.seq.Store(pos + q.mask + 1)
	q.head.Store(pos + 1)
	return item
}

func (q *affinityQueue) empty() bool {
	pos := q.head.Load()
	return q.slots[pos&q.mask].seq.Load() != pos+1
}
