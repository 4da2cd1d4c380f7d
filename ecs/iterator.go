package ecs

import (
	"fmt"
	"slices"
	"unsafe"
)

// Iterator walks the entities of a view chunk by chunk. Component pointers returned by Read and
// Write are valid until the next flush; using a positioned iterator after a flush panics. Reset,
// Walk from the start, or Jump to position it again.
type Iterator struct {
	view *View

	archIdx  int
	arch     *Archetype
	chunk    int
	row      int // Row within the current chunk.
	rows     int // Rows in the current chunk; zero when there is no current entity.
	entities unsafe.Pointer
	cols     []unsafe.Pointer // Column base per view component; nil when the archetype lacks it.

	stepCount int
	stepIndex int
	chunkSeq  int  // Sequence number of the next chunk Walk considers.
	owned     bool // Current chunk belongs to this iterator's step.
	flush     uint64
}

func newIterator(v *View) *Iterator {
	return &Iterator{
		view:      v,
		archIdx:   -1,
		cols:      make([]unsafe.Pointer, len(v.comps)),
		stepCount: 1,
	}
}

// View returns the view the iterator walks.
func (it *Iterator) View() *View {
	return it.view
}

// Reset positions the iterator before the first entity again.
func (it *Iterator) Reset() *Iterator {
	it.archIdx = -1
	it.arch = nil
	it.chunk = 0
	it.row = 0
	it.rows = 0
	it.chunkSeq = 0
	it.owned = false
	return it
}

// Step restricts the walk to every count-th chunk of the view, starting at index. Parallel tasks of
// one system use disjoint indices so they visit disjoint entities.
func (it *Iterator) Step(count, index int) *Iterator {
	if count < 1 || index < 0 || index >= count {
		panic(fmt.Sprintf("invalid iterator step %d/%d", index, count))
	}
	it.stepCount = count
	it.stepIndex = index
	return it.Reset()
}

// Walk advances to the next entity and reports whether there is one.
func (it *Iterator) Walk() bool {
	if it.rows > 0 {
		it.checkFlush()
	}
	if it.owned && it.row+1 < it.rows {
		it.row++
		return true
	}
	for it.nextChunk() {
		seq := it.chunkSeq
		it.chunkSeq++
		if seq%it.stepCount != it.stepIndex {
			continue
		}
		it.bind()
		it.owned = true
		it.row = 0
		return true
	}
	it.rows = 0
	it.row = 0
	it.owned = false
	return false
}

// nextChunk moves to the next non-empty chunk of the tracked archetypes.
func (it *Iterator) nextChunk() bool {
	if it.arch != nil && it.chunk+1 < it.arch.ChunkCount() {
		it.chunk++
		return true
	}
	archetypes := it.view.archetypes
	for it.archIdx+1 < len(archetypes) {
		it.archIdx++
		a := it.view.world.store.archetype(archetypes[it.archIdx])
		if a.count == 0 {
			continue
		}
		it.arch = a
		it.chunk = 0
		return true
	}
	it.arch = nil
	return false
}

// bind recomputes the column pointers for the current chunk.
func (it *Iterator) bind() {
	a := it.arch
	it.flush = it.view.world.flushes
	it.rows = a.chunkLen(it.chunk)
	it.entities = a.chunks[it.chunk]
	for i, c := range it.view.comps {
		if a.mask.Has(c) {
			it.cols[i] = a.column(it.chunk, a.mask.index(c))
		} else {
			it.cols[i] = nil
		}
	}
}

// Jump positions the iterator on the given entity. The entity must be in the view.
func (it *Iterator) Jump(e EntityId) *Iterator {
	if !it.MaybeJump(e) {
		panic(fmt.Sprintf("%s is not part of view '%s'", e, it.view.name))
	}
	return it
}

// MaybeJump positions the iterator on the given entity and reports whether it is in the view. A
// following Walk continues with the next chunk of the iterator's step after the entity's chunk.
func (it *Iterator) MaybeJump(e EntityId) bool {
	info, ok := it.view.world.info(e)
	if !ok || info.archetype == noArchetype {
		return false
	}
	idx, found := slices.BinarySearch(it.view.archetypes, info.archetype)
	if !found {
		return false
	}
	it.archIdx = idx
	it.arch = it.view.world.store.archetype(info.archetype)
	it.chunk = int(info.row) / it.arch.perChunk
	it.bind()
	it.row = int(info.row) % it.arch.perChunk

	seq := it.chunk
	for _, id := range it.view.archetypes[:idx] {
		seq += it.view.world.store.archetype(id).ChunkCount()
	}
	it.chunkSeq = seq + 1
	it.owned = seq%it.stepCount == it.stepIndex
	return true
}

// Entity returns the entity at the current position.
func (it *Iterator) Entity() EntityId {
	it.checkPosition()
	return *(*EntityId)(unsafe.Add(it.entities, uintptr(it.row)*entityIdSize))
}

// Read returns the data of a component at the current position. The view must declare read access.
// The result is nil only for optional access when the entity lacks the component.
func (it *Iterator) Read(comp CompId) unsafe.Pointer {
	if !it.view.read.Has(comp) {
		panic(fmt.Sprintf("view '%s' does not declare read access to '%s'", it.view.name, it.view.world.def.CompName(comp)))
	}
	return it.data(comp)
}

// Write returns the data of a component at the current position for modification. The view must
// declare write access.
func (it *Iterator) Write(comp CompId) unsafe.Pointer {
	if !it.view.write.Has(comp) {
		panic(fmt.Sprintf("view '%s' does not declare write access to '%s'", it.view.name, it.view.world.def.CompName(comp)))
	}
	return it.data(comp)
}

func (it *Iterator) data(comp CompId) unsafe.Pointer {
	it.checkPosition()
	idx := it.view.read.index(comp)
	col := it.cols[idx]
	if col == nil {
		return nil
	}
	return unsafe.Add(col, uintptr(it.row)*it.view.strides[idx])
}

func (it *Iterator) checkPosition() {
	if it.rows == 0 {
		panic(fmt.Sprintf("iterator of view '%s' has no current entity", it.view.name))
	}
	it.checkFlush()
}

func (it *Iterator) checkFlush() {
	if it.flush != it.view.world.flushes {
		panic(fmt.Sprintf("iterator of view '%s' used after a flush", it.view.name))
	}
}
