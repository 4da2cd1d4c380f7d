package ecs_test

import (
	"testing"

	"github.com/plus3/strata/ecs"
	"github.com/plus3/strata/jobs"
)

// Entities are created and destroyed in batches so the archetype never runs out of chunks.
func BenchmarkCreateDestroy(b *testing.B) {
	const batch = 1024
	d := newTestDef()
	w := ecs.NewWorld(d.Def)
	defer w.Close()
	ids := make([]ecs.EntityId, 0, batch)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := w.CreateEntity()
		d.position.Add(w, e, Position{X: 1.0, Y: 2.0})
		d.velocity.Add(w, e, Velocity{DX: 0.5, DY: 0.5})
		ids = append(ids, e)
		if len(ids) == batch {
			w.Flush()
			for _, e := range ids {
				w.DestroyEntity(e)
			}
			w.Flush()
			ids = ids[:0]
		}
	}
}

func BenchmarkMigrate(b *testing.B) {
	d := newTestDef()
	w := ecs.NewWorld(d.Def)
	defer w.Close()
	e := spawn(w, with(d.position, Position{}), with(d.velocity, Velocity{}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.health.Add(w, e, Health{})
		w.Flush()
		d.health.Remove(w, e)
		w.Flush()
	}
}

func BenchmarkIterate(b *testing.B) {
	d := newTestDef()
	moving := d.RegisterView("moving", func(vb *ecs.ViewBuilder) { vb.Write(d.position).Read(d.velocity) })
	w := ecs.NewWorld(d.Def)
	defer w.Close()
	for range 10000 {
		e := w.CreateEntity()
		d.position.Add(w, e, Position{})
		d.velocity.Add(w, e, Velocity{DX: 1, DY: 1})
	}
	w.Flush()
	view := w.View(moving)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for itr := view.Iter(); itr.Walk(); {
			pos, vel := d.position.Write(itr), d.velocity.Read(itr)
			pos.X += vel.DX
			pos.Y += vel.DY
		}
	}
}

func BenchmarkRunnerTick(b *testing.B) {
	d := newTestDef()
	moving := d.RegisterView("moving", func(vb *ecs.ViewBuilder) { vb.Write(d.position).Read(d.velocity) })
	named := d.RegisterView("named", func(vb *ecs.ViewBuilder) { vb.Read(d.name) })
	d.RegisterSystem("Move", ecs.SystemFunc(func(f *ecs.UpdateFrame) {
		for itr := f.Iter(moving); itr.Walk(); {
			d.position.Write(itr).X += d.velocity.Read(itr).DX
		}
	}), []ecs.ViewId{moving}, ecs.WithParallel(4))
	d.RegisterSystem("Names", ecs.SystemFunc(func(f *ecs.UpdateFrame) {
		for itr := f.Iter(named); itr.Walk(); {
			_ = d.name.Read(itr)
		}
	}), []ecs.ViewId{named})

	w := ecs.NewWorld(d.Def)
	defer w.Close()
	for i := range 50000 {
		e := w.CreateEntity()
		d.position.Add(w, e, Position{})
		d.velocity.Add(w, e, Velocity{DX: 1})
		if i%10 == 0 {
			d.name.Add(w, e, Name{Value: "n"})
		}
	}
	w.Flush()

	exec := jobs.NewExecutor(jobs.WithWorkers(4))
	defer exec.Close()
	r := ecs.NewRunner(w, exec)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.RunSync(1.0 / 60)
	}
}
