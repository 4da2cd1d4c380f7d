package ecs

import (
	"slices"
)

// View is a compiled access declaration: which components an entity must have or must not have,
// and which of them may be read or written. It tracks every archetype that matches, in creation
// order; archetypes are never dropped once matched.
type View struct {
	id       ViewId
	name     string
	world    *World
	required CompMask
	excluded CompMask
	read     CompMask
	write    CompMask

	comps      []CompId  // Accessible components in ascending order.
	strides    []uintptr // Component sizes, parallel to comps.
	archetypes []ArchetypeId
}

func newView(w *World, id ViewId, def *viewDef) *View {
	v := &View{
		id:       id,
		name:     def.name,
		world:    w,
		required: def.required,
		excluded: def.excluded,
		read:     def.read,
		write:    def.write,
	}
	for c := range v.read.All() {
		v.comps = append(v.comps, c)
		v.strides = append(v.strides, w.def.comp(c).size)
	}
	return v
}

func (v *View) Id() ViewId {
	return v.id
}

func (v *View) Name() string {
	return v.name
}

// Matches reports whether entities with exactly the given components are part of the view.
func (v *View) Matches(mask CompMask) bool {
	return mask.ContainsAll(v.required) && !mask.Overlaps(v.excluded)
}

func (v *View) track(a *Archetype) {
	if v.Matches(a.mask) {
		// Archetype ids increase monotonically, so appending keeps the list sorted.
		v.archetypes = append(v.archetypes, a.id)
	}
}

// Contains reports whether the entity was part of the view at the last flush.
func (v *View) Contains(e EntityId) bool {
	info, ok := v.world.info(e)
	if !ok || info.archetype == noArchetype {
		return false
	}
	_, found := slices.BinarySearch(v.archetypes, info.archetype)
	return found
}

// CompCount returns the number of components the view can access.
func (v *View) CompCount() int {
	return len(v.comps)
}

// ArchetypeCount returns the number of tracked archetypes.
func (v *View) ArchetypeCount() int {
	return len(v.archetypes)
}

// Archetypes returns the ids of the tracked archetypes in ascending order.
func (v *View) Archetypes() []ArchetypeId {
	return v.archetypes
}

// EntityCount returns the number of entities in the view.
func (v *View) EntityCount() int {
	n := 0
	for _, id := range v.archetypes {
		n += v.world.store.archetype(id).count
	}
	return n
}

// ChunkCount returns the number of non-empty chunks in the view.
func (v *View) ChunkCount() int {
	n := 0
	for _, id := range v.archetypes {
		n += v.world.store.archetype(id).ChunkCount()
	}
	return n
}

// CanRead reports whether the view declares read (or write) access to the component.
func (v *View) CanRead(c CompRef) bool {
	return v.read.Has(c.Id())
}

// CanWrite reports whether the view declares write access to the component.
func (v *View) CanWrite(c CompRef) bool {
	return v.write.Has(c.Id())
}

// Iter returns an iterator positioned before the first entity.
func (v *View) Iter() *Iterator {
	return newIterator(v)
}

// ViewsConflict reports whether two views may not be used concurrently. Views never conflict when
// one requires a component the other excludes, because no entity can be in both. Otherwise they
// conflict when one writes a component the other reads.
func ViewsConflict(a, b *View) bool {
	if a.required.Overlaps(b.excluded) || b.required.Overlaps(a.excluded) {
		return false
	}
	return a.read.Overlaps(b.write) || a.write.Overlaps(b.read)
}
