package main

import (
	"fmt"
	"math/rand/v2"
	"unsafe"

	"github.com/plus3/strata/ecs"
	"go.uber.org/zap"
)

const maxGeneratedComps = ecs.MaxComps

var compSizes = []uintptr{8, 16, 32, 64, 128}

// Workload holds the generated components and systems of a stress run.
type Workload struct {
	Def   *ecs.Def
	Comps []ecs.CompId
	churn *churnSystem
}

// NewWorkload registers cfg.Components blob components and cfg.Systems systems with random views.
// Every component counts its merges so duplicate additions are exercised.
func NewWorkload(cfg *Config, log *zap.Logger) *Workload {
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), 0))
	wl := &Workload{Def: ecs.NewDef()}

	for i := range cfg.Components {
		size := compSizes[rng.IntN(len(compSizes))]
		wl.Comps = append(wl.Comps, wl.Def.RegisterComp(ecs.CompConfig{
			Name:  fmt.Sprintf("Comp%03d", i),
			Size:  size,
			Align: 8,
			Combinator: func(dst, src unsafe.Pointer) {
				*(*uint64)(dst) += *(*uint64)(src)
			},
		}))
	}

	for i := range cfg.Systems {
		write := wl.randomComp(rng)
		read := wl.randomComp(rng)
		var without ecs.CompId
		exclude := rng.IntN(4) == 0
		if exclude {
			without = wl.randomComp(rng)
			if without == write || without == read {
				exclude = false
			}
		}

		name := fmt.Sprintf("System%03d", i)
		view := wl.Def.RegisterView(name, func(b *ecs.ViewBuilder) {
			b.Write(write).Read(read)
			if exclude {
				b.Without(without)
			}
		})

		var opts []ecs.SystemOption
		if rng.IntN(3) == 0 {
			opts = append(opts, ecs.WithParallel(2+rng.IntN(3)))
		}
		wl.Def.RegisterSystem(name, &accumulateSystem{view: view, write: write, read: read}, []ecs.ViewId{view}, opts...)
	}

	if cfg.ChurnPerTick > 0 {
		wl.churn = &churnSystem{
			workload: wl,
			perTick:  cfg.ChurnPerTick,
			rng:      rand.New(rand.NewPCG(uint64(cfg.Seed), 1)),
		}
		wl.Def.RegisterSystem("Churn", wl.churn, nil, ecs.WithOrder(-1))
	}

	log.Debug("workload generated",
		zap.Int("components", wl.Def.CompCount()),
		zap.Int("views", wl.Def.ViewCount()),
		zap.Int("systems", wl.Def.SystemCount()),
	)
	return wl
}

func (wl *Workload) randomComp(rng *rand.Rand) ecs.CompId {
	return wl.Comps[rng.IntN(len(wl.Comps))]
}

// Populate creates entities with one to five random components and flushes the World.
func (wl *Workload) Populate(w *ecs.World, count int, seed int64) {
	rng := rand.New(rand.NewPCG(uint64(seed), 2))
	for range count {
		wl.spawn(w, rng)
	}
	w.Flush()
}

func (wl *Workload) spawn(w *ecs.World, rng *rand.Rand) ecs.EntityId {
	e := w.CreateEntity()
	var mask ecs.CompMask
	for range 1 + rng.IntN(5) {
		c := wl.randomComp(rng)
		if mask.Has(c) {
			continue
		}
		mask.Set(c)
		w.AddComp(e, c, nil)
	}
	return e
}

// accumulateSystem adds the first word of one component into another.
type accumulateSystem struct {
	view  ecs.ViewId
	write ecs.CompId
	read  ecs.CompId
}

func (s *accumulateSystem) Execute(frame *ecs.UpdateFrame) {
	for itr := frame.Iter(s.view); itr.Walk(); {
		dst := (*uint64)(itr.Write(s.write))
		*dst += *(*uint64)(itr.Read(s.read)) + 1
	}
}

// churnSystem replaces its oldest entities every tick to keep flushes busy.
type churnSystem struct {
	workload *Workload
	perTick  int
	rng      *rand.Rand
	spawned  []ecs.EntityId
	created  int64
}

func (s *churnSystem) Execute(frame *ecs.UpdateFrame) {
	n := min(s.perTick, len(s.spawned))
	for _, e := range s.spawned[:n] {
		frame.World.DestroyEntity(e)
	}
	s.spawned = append(s.spawned[:0], s.spawned[n:]...)

	for range s.perTick {
		s.spawned = append(s.spawned, s.workload.spawn(frame.World, s.rng))
	}
	s.created += int64(s.perTick)
}

// Churned returns the number of entities the churn system has created.
func (wl *Workload) Churned() int64 {
	if wl.churn == nil {
		return 0
	}
	return wl.churn.created
}
