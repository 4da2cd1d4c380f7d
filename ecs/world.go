package ecs

import (
	"fmt"
	"iter"
	"time"
	"unsafe"

	"go.uber.org/zap"
)

type entityInfo struct {
	archetype ArchetypeId
	row       int32
}

// World holds the entities and components described by a Def.
//
// Structural changes (creating and destroying entities, adding and removing components) may be
// recorded from any goroutine; they become visible at the next Flush. Flush itself must not run
// concurrently with any other use of the World.
type World struct {
	def      *Def
	log      *zap.Logger
	entities entityAllocator
	store    *storage
	views    []*View
	buffer   *commandBuffer
	infos    []entityInfo // Indexed by entity index.
	global   EntityId
	flushes  uint64
	closed   bool
}

// WorldOption customizes a World.
type WorldOption func(*World)

// WithWorldLogger sets the logger used for archetype and flush diagnostics.
func WithWorldLogger(log *zap.Logger) WorldOption {
	return func(w *World) {
		w.log = log
	}
}

// NewWorld creates a World from the definition, freezing it.
func NewWorld(def *Def, opts ...WorldOption) *World {
	def.freeze()

	w := &World{
		def:    def,
		log:    zap.NewNop(),
		buffer: newCommandBuffer(def),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.store = newStorage(def, w.log, w.onArchetypeCreated)
	w.views = make([]*View, len(def.views))
	for i := range def.views {
		w.views[i] = newView(w, ViewId(i), &def.views[i])
	}

	w.global = w.CreateEntity()
	w.Flush()
	return w
}

func (w *World) onArchetypeCreated(a *Archetype) {
	for _, v := range w.views {
		v.track(a)
	}
}

// Def returns the definition the World was created from.
func (w *World) Def() *Def {
	return w.def
}

// Global returns the entity that holds world-wide components. It exists for the lifetime of the World.
func (w *World) Global() EntityId {
	return w.global
}

// View returns the compiled view.
func (w *World) View(id ViewId) *View {
	if int(id) >= len(w.views) {
		panic(fmt.Sprintf("view %d not registered", id))
	}
	return w.views[id]
}

// CreateEntity reserves a new entity. It has no components and is not part of any view until the
// next flush.
func (w *World) CreateEntity() EntityId {
	e := w.entities.allocate()
	w.buffer.create(e)
	return e
}

// DestroyEntity queues the destruction of an entity and all its components.
func (w *World) DestroyEntity(e EntityId) {
	w.checkExists(e)
	if e == w.global {
		panic("cannot destroy the global entity")
	}
	w.buffer.destroy(e)
}

// AddComp queues adding a component to an entity. The data at src is copied; a nil src adds a
// zeroed component.
func (w *World) AddComp(e EntityId, id CompId, src unsafe.Pointer) {
	w.checkExists(e)
	comp := w.def.comp(id)

	var data unsafe.Pointer
	if comp.size != 0 {
		data = comp.alloc()
		if src != nil {
			comp.copy(data, src)
		}
	}
	w.buffer.add(e, id, data)
}

// RemoveComp queues removing a component from an entity.
func (w *World) RemoveComp(e EntityId, id CompId) {
	w.checkExists(e)
	w.buffer.remove(e, id)
}

// Exists reports whether the entity has been created and not yet destroyed by a flush.
func (w *World) Exists(e EntityId) bool {
	return w.entities.exists(e)
}

// HasComp reports whether the entity had the component at the last flush.
func (w *World) HasComp(e EntityId, id CompId) bool {
	info, ok := w.info(e)
	if !ok || info.archetype == noArchetype {
		return false
	}
	return w.store.archetype(info.archetype).mask.Has(id)
}

// CompMask returns the components the entity had at the last flush.
func (w *World) CompMask(e EntityId) CompMask {
	info, ok := w.info(e)
	if !ok || info.archetype == noArchetype {
		return CompMask{}
	}
	return w.store.archetype(info.archetype).mask
}

// CompData returns the component data of an entity, or nil if the entity lacks the component.
// Access is not covered by any view; callers must not race with systems writing the component.
func (w *World) CompData(e EntityId, id CompId) unsafe.Pointer {
	info, ok := w.info(e)
	if !ok || info.archetype == noArchetype {
		return nil
	}
	return w.store.archetype(info.archetype).compPtrById(int(info.row), id)
}

// EntityCount returns the number of entities stored at the last flush.
func (w *World) EntityCount() int {
	return w.store.entityCount()
}

// ArchetypeCount returns the number of archetypes created so far.
func (w *World) ArchetypeCount() int {
	return len(w.store.archetypes)
}

// Archetypes returns every archetype in creation order.
func (w *World) Archetypes() []*Archetype {
	return w.store.archetypes
}

// Entities iterates over all stored entities, archetype by archetype.
func (w *World) Entities() iter.Seq[EntityId] {
	return func(yield func(EntityId) bool) {
		for _, a := range w.store.archetypes {
			for e := range a.Entities() {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// PendingCount returns the number of entities with changes recorded since the last flush.
func (w *World) PendingCount() int {
	return w.buffer.count()
}

// FlushCount returns the number of completed flushes.
func (w *World) FlushCount() uint64 {
	return w.flushes
}

func (w *World) info(e EntityId) (entityInfo, bool) {
	if !w.entities.exists(e) {
		return entityInfo{}, false
	}
	return w.infoAt(e.Index()), true
}

func (w *World) infoAt(index uint32) entityInfo {
	if int(index) >= len(w.infos) {
		return entityInfo{archetype: noArchetype}
	}
	return w.infos[index]
}

func (w *World) checkExists(e EntityId) {
	if w.closed {
		panic("world is closed")
	}
	if !w.entities.exists(e) {
		panic(fmt.Sprintf("%s does not exist", e))
	}
}

// Flush applies every recorded change in recording order.
func (w *World) Flush() {
	start := time.Now()
	archetypes := len(w.store.archetypes)

	entries := w.buffer.take()
	destroyed := 0
	for i := range entries {
		p := &entries[i]
		if p.destroy {
			w.flushDestroy(p)
			destroyed++
		} else {
			w.flushChange(p)
		}
	}
	w.buffer.recycle(entries)
	w.flushes++

	if len(entries) > 0 {
		w.log.Debug("world flushed",
			zap.Int("entities", len(entries)),
			zap.Int("destroyed", destroyed),
			zap.Int("new_archetypes", len(w.store.archetypes)-archetypes),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (w *World) flushDestroy(p *pendingEntity) {
	index := p.id.Index()
	info := w.infoAt(index)

	var a *Archetype
	if info.archetype != noArchetype {
		a = w.store.archetype(info.archetype)
	}
	for _, c := range w.def.destructOrder {
		destruct := w.def.comp(c).destructor
		if a != nil && a.mask.Has(c) {
			destruct(a.compPtr(int(info.row), a.mask.index(c)))
		}
		if data := p.data(c); data != nil {
			destruct(data)
		}
	}
	if a != nil {
		w.removeRow(a, int(info.row))
		w.infos[index] = entityInfo{archetype: noArchetype}
	}
	w.entities.free(p.id)
}

func (w *World) flushChange(p *pendingEntity) {
	index := p.id.Index()
	for int(index) >= len(w.infos) {
		w.infos = append(w.infos, entityInfo{archetype: noArchetype})
	}
	info := w.infos[index]

	var (
		src *Archetype
		cur CompMask
	)
	if info.archetype != noArchetype {
		src = w.store.archetype(info.archetype)
		cur = src.mask
	}
	kept := cur.Without(p.remove)
	target := kept.Union(p.add)

	// Additions of stored components merge; zero-size components have no pending data to merge.
	for c := range kept.Intersect(p.add).All() {
		if comp := w.def.comp(c); comp.combinator == nil {
			panic(fmt.Sprintf("cannot add '%s' to %s: component already present", comp.name, p.id))
		}
	}

	if removed := cur.Intersect(p.remove); !removed.IsEmpty() {
		for _, c := range w.def.destructOrder {
			if removed.Has(c) {
				w.def.comp(c).destructor(src.compPtrById(int(info.row), c))
			}
		}
	}

	dst, row := src, int(info.row)
	if src == nil || target != cur {
		dst = w.store.findOrCreate(target)
		row = dst.add(p.id)
		if src != nil {
			for c := range kept.All() {
				w.def.comp(c).copy(dst.compPtrById(row, c), src.compPtrById(int(info.row), c))
			}
			w.removeRow(src, int(info.row))
		}
		w.infos[index] = entityInfo{archetype: dst.id, row: int32(row)}
	}

	for _, pc := range p.comps {
		comp := w.def.comp(pc.id)
		ptr := dst.compPtrById(row, pc.id)
		if kept.Has(pc.id) {
			comp.combinator(ptr, pc.data)
			continue
		}
		comp.copy(ptr, pc.data)
	}
}

// removeRow removes a row and patches the entity that moved into it.
func (w *World) removeRow(a *Archetype, row int) {
	if moved := a.remove(row); moved != 0 {
		w.infos[moved.Index()].row = int32(row)
	}
}

// Close runs the destructors of every stored component and of all pending additions. The World
// must not be used afterwards.
func (w *World) Close() {
	if w.closed {
		return
	}
	w.closed = true

	for _, a := range w.store.archetypes {
		for _, c := range w.def.destructOrder {
			if !a.mask.Has(c) {
				continue
			}
			destruct, idx := w.def.comp(c).destructor, a.mask.index(c)
			for row := range a.count {
				destruct(a.compPtr(row, idx))
			}
		}
	}

	entries := w.buffer.take()
	for i := range entries {
		for _, c := range w.def.destructOrder {
			if data := entries[i].data(c); data != nil {
				w.def.comp(c).destructor(data)
			}
		}
	}
	w.buffer.recycle(entries)

	w.log.Debug("world closed",
		zap.Int("entities", w.store.entityCount()),
		zap.Int("archetypes", len(w.store.archetypes)),
	)
}
