package ecs

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/kamstrup/intmap"
)

type pendingComp struct {
	id   CompId
	data unsafe.Pointer
}

// pendingEntity collects every structural change recorded for one entity since the last flush.
type pendingEntity struct {
	id      EntityId
	created bool
	destroy bool
	add     CompMask
	remove  CompMask
	comps   []pendingComp
}

// commandBuffer records structural changes from any goroutine. Entries keep their recording order;
// repeated changes to one entity accumulate in a single entry.
type commandBuffer struct {
	def     *Def
	mu      sync.Mutex
	index   *intmap.Map[uint32, int32] // Entity index to position in entries.
	entries []pendingEntity
	spare   []pendingEntity
}

func newCommandBuffer(def *Def) *commandBuffer {
	return &commandBuffer{
		def:   def,
		index: intmap.New[uint32, int32](256),
	}
}

// entry returns the pending entry of an entity, creating it. The caller holds mu.
func (b *commandBuffer) entry(e EntityId) *pendingEntity {
	if pos, ok := b.index.Get(e.Index()); ok {
		return &b.entries[pos]
	}
	b.index.Put(e.Index(), int32(len(b.entries)))
	b.entries = append(b.entries, pendingEntity{id: e})
	return &b.entries[len(b.entries)-1]
}

func (b *commandBuffer) create(e EntityId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(e).created = true
}

func (b *commandBuffer) destroy(e EntityId) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.entry(e)
	if p.destroy {
		panic(fmt.Sprintf("cannot destroy %s: already destroyed", e))
	}
	p.destroy = true
}

// add takes ownership of data, which must have been allocated for the component.
func (b *commandBuffer) add(e EntityId, id CompId, data unsafe.Pointer) {
	comp := b.def.comp(id)

	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.entry(e)
	if p.destroy {
		panic(fmt.Sprintf("cannot add '%s' to %s: entity is being destroyed", comp.name, e))
	}
	if p.add.Has(id) {
		if comp.combinator == nil {
			panic(fmt.Sprintf("cannot add '%s' to %s: duplicate addition", comp.name, e))
		}
		if data != nil {
			comp.combinator(p.data(id), data)
		}
		return
	}
	p.add.Set(id)
	if data != nil {
		p.comps = append(p.comps, pendingComp{id: id, data: data})
	}
}

func (b *commandBuffer) remove(e EntityId, id CompId) {
	comp := b.def.comp(id)

	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.entry(e)
	if p.destroy {
		panic(fmt.Sprintf("cannot remove '%s' from %s: entity is being destroyed", comp.name, e))
	}
	if p.remove.Has(id) {
		panic(fmt.Sprintf("cannot remove '%s' from %s: duplicate removal", comp.name, e))
	}
	p.remove.Set(id)
	if p.add.Has(id) {
		// The pending addition never reaches the entity.
		p.add.Clear(id)
		if data := p.take(id); data != nil && comp.destructor != nil {
			comp.destructor(data)
		}
	}
}

// take hands the recorded entries to the caller and resets the buffer. The entries must be
// returned through recycle once processed.
func (b *commandBuffer) take() []pendingEntity {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.entries
	b.entries = b.spare[:0]
	b.spare = nil
	b.index.Clear()
	return entries
}

func (b *commandBuffer) recycle(entries []pendingEntity) {
	clear(entries)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.spare == nil {
		b.spare = entries[:0]
	}
}

func (b *commandBuffer) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (p *pendingEntity) data(id CompId) unsafe.Pointer {
	for _, c := range p.comps {
		if c.id == id {
			return c.data
		}
	}
	return nil
}

func (p *pendingEntity) take(id CompId) unsafe.Pointer {
	for i, c := range p.comps {
		if c.id == id {
			p.comps = append(p.comps[:i], p.comps[i+1:]...)
			return c.data
		}
	}
	return nil
}
