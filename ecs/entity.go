package ecs

import (
	"fmt"
	"math"
	"math/bits"
	"sync"
)

// EntityId identifies an entity. The low 32 bits hold the index, which is reused after the entity is
// destroyed; the high 32 bits hold the serial, which is unique among the allocations sharing an
// index so a stale id never aliases a newer entity. The zero id is never issued.
type EntityId uint64

func newEntityId(index, serial uint32) EntityId {
	return EntityId(uint64(serial)<<32 | uint64(index))
}

func (e EntityId) Index() uint32 {
	return uint32(e)
}

func (e EntityId) Serial() uint32 {
	return uint32(e >> 32)
}

// IsValid reports whether the id could have been issued by a World. It says nothing about whether
// the entity is still alive; use World.Exists for that.
func (e EntityId) IsValid() bool {
	return e.Serial() != 0
}

func (e EntityId) String() string {
	return fmt.Sprintf("entity{%d:%d}", e.Index(), e.Serial())
}

// entityAllocator hands out entity ids. It is safe for concurrent use so systems can create
// entities while running in parallel.
type entityAllocator struct {
	mu         sync.RWMutex
	used       []uint64 // Bitset of allocated indices.
	serials    []uint32 // Live serial per allocated index.
	nextSerial uint32
	firstFree  int // No word before this one has a free bit.
	count      int
}

func (a *entityAllocator) allocate() EntityId {
	a.mu.Lock()
	defer a.mu.Unlock()

	word := a.firstFree
	for word < len(a.used) && a.used[word] == math.MaxUint64 {
		word++
	}
	if word == len(a.used) {
		a.used = append(a.used, 0)
	}
	a.firstFree = word

	index := word*64 + bits.TrailingZeros64(^a.used[word])
	if uint64(index) > math.MaxUint32 {
		panic("entity index space exhausted")
	}
	a.used[word] |= 1 << (index & 63)
	for index >= len(a.serials) {
		a.serials = append(a.serials, 0)
	}

	a.nextSerial++
	if a.nextSerial == 0 {
		a.nextSerial = 1 // Zero is reserved for invalid ids.
	}
	a.serials[index] = a.nextSerial
	a.count++
	return newEntityId(uint32(index), a.nextSerial)
}

func (a *entityAllocator) free(e EntityId) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.liveLocked(e) {
		panic(fmt.Sprintf("cannot free %s: not allocated (double free?)", e))
	}
	index := int(e.Index())
	a.used[index>>6] &^= 1 << (index & 63)
	a.serials[index] = 0
	a.firstFree = min(a.firstFree, index>>6)
	a.count--
}

func (a *entityAllocator) exists(e EntityId) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.liveLocked(e)
}

func (a *entityAllocator) liveLocked(e EntityId) bool {
	index := int(e.Index())
	if !e.IsValid() || index >= len(a.serials) {
		return false
	}
	return a.used[index>>6]&(1<<(index&63)) != 0 && a.serials[index] == e.Serial()
}

func (a *entityAllocator) liveCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count
}
