package ecs

import (
	"github.com/kamstrup/intmap"
	"go.uber.org/zap"
)

// storage owns the archetypes of a World.
type storage struct {
	def        *Def
	log        *zap.Logger
	archetypes []*Archetype
	byHash     *intmap.Map[uint64, ArchetypeId]
	onCreate   func(*Archetype)
}

func newStorage(def *Def, log *zap.Logger, onCreate func(*Archetype)) *storage {
	return &storage{
		def:      def,
		log:      log,
		byHash:   intmap.New[uint64, ArchetypeId](64),
		onCreate: onCreate,
	}
}

func (s *storage) archetype(id ArchetypeId) *Archetype {
	return s.archetypes[id]
}

// find returns the archetype with exactly the given components, or nil.
func (s *storage) find(mask CompMask) *Archetype {
	if id, ok := s.byHash.Get(mask.hash()); ok {
		if a := s.archetypes[id]; a.mask == mask {
			return a
		}
		// Hash collision; only the first archetype with a given hash is indexed.
		for _, a := range s.archetypes {
			if a.mask == mask {
				return a
			}
		}
	}
	return nil
}

func (s *storage) findOrCreate(mask CompMask) *Archetype {
	if a := s.find(mask); a != nil {
		return a
	}

	a := newArchetype(ArchetypeId(len(s.archetypes)), s.def, mask)
	s.archetypes = append(s.archetypes, a)
	if _, taken := s.byHash.Get(mask.hash()); !taken {
		s.byHash.Put(mask.hash(), a.id)
	}

	s.log.Debug("archetype created",
		zap.Int32("id", int32(a.id)),
		zap.String("comps", mask.format(s.def)),
		zap.Int("entities_per_chunk", a.perChunk),
	)
	if s.onCreate != nil {
		s.onCreate(a)
	}
	return a
}

// entityCount returns the number of entities across all archetypes.
func (s *storage) entityCount() int {
	n := 0
	for _, a := range s.archetypes {
		n += a.count
	}
	return n
}
