package ecs

import (
	"fmt"
	"iter"
	"reflect"
	"strconv"
	"unsafe"
)

const (
	// ChunkSize is the target size in bytes of one archetype chunk.
	ChunkSize = 16 * 1024
	// MaxChunks is the maximum number of chunks a single archetype may allocate.
	MaxChunks = 512
)

// ArchetypeId identifies an archetype within a World. Ids are assigned in creation order.
type ArchetypeId int32

const noArchetype ArchetypeId = -1

var entityIdSize = unsafe.Sizeof(EntityId(0))

// Archetype stores every entity that has exactly one set of components. Data is laid out in
// fixed-size chunks; each chunk holds an entity id column followed by one column per component, in
// ascending component id order. Every chunk shares the same column offsets.
type Archetype struct {
	id        ArchetypeId
	def       *Def
	mask      CompMask
	comps     []CompId
	chunkType reflect.Type
	perChunk  int
	offsets   []uintptr // Column offset per component, parallel to comps.
	strides   []uintptr
	chunks    []unsafe.Pointer
	count     int
}

func newArchetype(id ArchetypeId, def *Def, mask CompMask) *Archetype {
	a := &Archetype{
		id:   id,
		def:  def,
		mask: mask,
	}
	for c := range mask.All() {
		a.comps = append(a.comps, c)
		a.strides = append(a.strides, def.comp(c).size)
	}

	// Reserve the worst-case alignment padding between columns.
	footprint := entityIdSize
	padding := uintptr(0)
	for _, c := range a.comps {
		footprint += def.comp(c).size
		padding += def.comp(c).align
	}
	if padding+footprint > ChunkSize {
		panic(fmt.Sprintf("archetype %s does not fit a single entity in a %d byte chunk", mask.format(def), ChunkSize))
	}
	a.perChunk = int((ChunkSize - padding) / footprint)

	fields := make([]reflect.StructField, 0, len(a.comps)+1)
	fields = append(fields, reflect.StructField{
		Name: "Entities",
		Type: reflect.ArrayOf(a.perChunk, reflect.TypeFor[EntityId]()),
	})
	for i, c := range a.comps {
		fields = append(fields, reflect.StructField{
			Name: "C" + strconv.Itoa(i),
			Type: reflect.ArrayOf(a.perChunk, def.comp(c).typ),
		})
	}
	a.chunkType = reflect.StructOf(fields)
	for i := range a.comps {
		a.offsets = append(a.offsets, a.chunkType.Field(i+1).Offset)
	}
	return a
}

func (a *Archetype) Id() ArchetypeId {
	return a.id
}

// Mask returns the archetype's component set.
func (a *Archetype) Mask() CompMask {
	return a.mask
}

// Comps returns the archetype's components in ascending id order.
func (a *Archetype) Comps() []CompId {
	return a.comps
}

func (a *Archetype) EntityCount() int {
	return a.count
}

// EntitiesPerChunk returns how many entities fit in one chunk.
func (a *Archetype) EntitiesPerChunk() int {
	return a.perChunk
}

// ChunkCount returns the number of chunks holding at least one entity.
func (a *Archetype) ChunkCount() int {
	return (a.count + a.perChunk - 1) / a.perChunk
}

// AllocatedChunks returns the number of chunks allocated, including empty ones kept for reuse.
func (a *Archetype) AllocatedChunks() int {
	return len(a.chunks)
}

// Entities iterates over the entities in row order. The archetype must not change during iteration.
func (a *Archetype) Entities() iter.Seq[EntityId] {
	return func(yield func(EntityId) bool) {
		for row := range a.count {
			if !yield(a.entityAt(row)) {
				return
			}
		}
	}
}

// chunkLen returns the number of entities in the given chunk.
func (a *Archetype) chunkLen(chunk int) int {
	return min(a.count-chunk*a.perChunk, a.perChunk)
}

func (a *Archetype) entityAt(row int) EntityId {
	chunk, local := row/a.perChunk, row%a.perChunk
	return *(*EntityId)(unsafe.Add(a.chunks[chunk], uintptr(local)*entityIdSize))
}

// column returns the base of the component's column in a chunk.
func (a *Archetype) column(chunk int, idx int) unsafe.Pointer {
	return unsafe.Add(a.chunks[chunk], a.offsets[idx])
}

// compPtr returns the component data for a row, by position in the archetype's component list.
func (a *Archetype) compPtr(row int, idx int) unsafe.Pointer {
	chunk, local := row/a.perChunk, row%a.perChunk
	return unsafe.Add(a.column(chunk, idx), uintptr(local)*a.strides[idx])
}

// compPtrById returns the component data for a row, or nil if the archetype lacks the component.
func (a *Archetype) compPtrById(row int, id CompId) unsafe.Pointer {
	if !a.mask.Has(id) {
		return nil
	}
	return a.compPtr(row, a.mask.index(id))
}

// add appends an entity and returns its row. Component data in the new row is zeroed.
func (a *Archetype) add(e EntityId) int {
	if a.count == len(a.chunks)*a.perChunk {
		if len(a.chunks) == MaxChunks {
			panic(fmt.Sprintf("archetype %s exceeds the maximum of %d chunks", a.mask.format(a.def), MaxChunks))
		}
		a.chunks = append(a.chunks, reflect.New(a.chunkType).UnsafePointer())
	}
	row := a.count
	a.count++

	chunk, local := row/a.perChunk, row%a.perChunk
	*(*EntityId)(unsafe.Add(a.chunks[chunk], uintptr(local)*entityIdSize)) = e
	return row
}

// remove deletes a row by moving the last row into it. It returns the entity that moved, or zero
// when the removed row was the last one. Destructors are the caller's responsibility.
func (a *Archetype) remove(row int) EntityId {
	if row < 0 || row >= a.count {
		panic(fmt.Sprintf("archetype %d: row %d out of bounds (count: %d)", a.id, row, a.count))
	}
	last := a.count - 1
	var moved EntityId

	if row != last {
		moved = a.entityAt(last)
		chunk, local := row/a.perChunk, row%a.perChunk
		*(*EntityId)(unsafe.Add(a.chunks[chunk], uintptr(local)*entityIdSize)) = moved
		for i, c := range a.comps {
			a.def.comp(c).copy(a.compPtr(row, i), a.compPtr(last, i))
		}
	}

	// Clear the vacated row so the chunk does not keep references alive.
	for i, c := range a.comps {
		a.def.comp(c).zero(a.compPtr(last, i))
	}
	a.count--
	return moved
}
