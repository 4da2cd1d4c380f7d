package ecs_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plus3/strata/ecs"
	"github.com/plus3/strata/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type Counter struct {
	Value int64
}

func newTestRunner(t *testing.T, w *ecs.World, workers int) *ecs.Runner {
	t.Helper()
	exec := jobs.NewExecutor(jobs.WithWorkers(workers), jobs.WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(exec.Close)
	return ecs.NewRunner(w, exec, ecs.WithRunnerLogger(zaptest.NewLogger(t)))
}

func TestRunnerGraph(t *testing.T) {
	noop := ecs.SystemFunc(func(*ecs.UpdateFrame) {})

	t.Run("conflicting systems are ordered", func(t *testing.T) {
		d := newTestDef()
		writePos := d.RegisterView("writePos", func(b *ecs.ViewBuilder) { b.Write(d.position) })
		readPos := d.RegisterView("readPos", func(b *ecs.ViewBuilder) { b.Read(d.position) })
		readVel := d.RegisterView("readVel", func(b *ecs.ViewBuilder) { b.Read(d.velocity) })
		d.RegisterSystem("Move", noop, []ecs.ViewId{writePos})
		d.RegisterSystem("Render", noop, []ecs.ViewId{readPos})
		d.RegisterSystem("Steer", noop, []ecs.ViewId{readVel})

		r := newTestRunner(t, newTestWorld(t, d), 2)
		g := r.Graph()
		require.Equal(t, 4, g.TaskCount())
		assert.Equal(t, "Flush", g.TaskName(3))
		assert.NotZero(t, g.TaskFlags(3)&jobs.TaskThreadAffinity)

		assert.True(t, g.HasDependency(0, 1), "Move before Render")
		assert.False(t, g.HasDependency(0, 2))
		assert.False(t, g.HasDependency(1, 2))
		assert.False(t, g.HasDependency(0, 3), "implied by Move -> Render -> Flush")
		assert.True(t, g.HasDependency(1, 3))
		assert.True(t, g.HasDependency(2, 3))
		assert.Equal(t, uint64(3), g.Span())
	})

	t.Run("order hint decides the direction", func(t *testing.T) {
		d := newTestDef()
		writePos := d.RegisterView("writePos", func(b *ecs.ViewBuilder) { b.Write(d.position) })
		d.RegisterSystem("Late", noop, []ecs.ViewId{writePos})
		d.RegisterSystem("Early", noop, []ecs.ViewId{writePos}, ecs.WithOrder(-1))

		g := newTestRunner(t, newTestWorld(t, d), 2).Graph()
		assert.Equal(t, "Early", g.TaskName(0))
		assert.Equal(t, "Late", g.TaskName(1))
		assert.True(t, g.HasDependency(0, 1))
	})

	t.Run("exclusive systems are ordered against all", func(t *testing.T) {
		d := newTestDef()
		readPos := d.RegisterView("readPos", func(b *ecs.ViewBuilder) { b.Read(d.position) })
		d.RegisterSystem("A", noop, []ecs.ViewId{readPos})
		d.RegisterSystem("Exclusive", noop, nil, ecs.WithExclusive())
		d.RegisterSystem("B", noop, []ecs.ViewId{readPos})

		g := newTestRunner(t, newTestWorld(t, d), 2).Graph()
		assert.True(t, g.HasDependency(0, 1))
		assert.True(t, g.HasDependency(1, 2))
		assert.False(t, g.HasDependency(0, 2), "reduced")
		assert.Equal(t, uint64(4), g.Span())
	})

	t.Run("parallel systems expand into tasks", func(t *testing.T) {
		d := newTestDef()
		writePos := d.RegisterView("writePos", func(b *ecs.ViewBuilder) { b.Write(d.position) })
		d.RegisterSystem("Split", noop, []ecs.ViewId{writePos}, ecs.WithParallel(4))
		d.RegisterSystem("After", noop, []ecs.ViewId{writePos})

		r := newTestRunner(t, newTestWorld(t, d), 2)
		g := r.Graph()
		require.Equal(t, 6, g.TaskCount())
		assert.Equal(t, "Split[2]", g.TaskName(2))
		for i := range 4 {
			assert.True(t, g.HasDependency(jobs.TaskId(i), 4))
			for j := range 4 {
				assert.False(t, g.HasDependency(jobs.TaskId(i), jobs.TaskId(j)))
			}
		}
		assert.InDelta(t, 6.0/3.0, g.Parallelism(), 1e-9)
	})

	t.Run("too many dependents fail at construction", func(t *testing.T) {
		d := newTestDef()
		writePos := d.RegisterView("writePos", func(b *ecs.ViewBuilder) { b.Write(d.position) })
		d.RegisterSystem("Gather", noop, []ecs.ViewId{writePos})
		d.RegisterSystem("Split", noop, []ecs.ViewId{writePos}, ecs.WithParallel(jobs.MaxTaskChildren+1))

		w := newTestWorld(t, d)
		exec := jobs.NewExecutor(jobs.WithWorkers(2))
		t.Cleanup(exec.Close)
		assert.Panics(t, func() { ecs.NewRunner(w, exec) })
	})
}

func TestRunner(t *testing.T) {
	t.Run("conflicting writers never race", func(t *testing.T) {
		d := newTestDef()
		counter := ecs.RegisterComponent[Counter](d.Def)
		view := d.RegisterView("counter", func(b *ecs.ViewBuilder) { b.Write(counter) })
		add := ecs.SystemFunc(func(f *ecs.UpdateFrame) {
			for itr := f.Iter(view); itr.Walk(); {
				c := counter.Write(itr)
				v := c.Value
				time.Sleep(10 * time.Microsecond)
				c.Value = v + int64(f.DeltaTime)
			}
		})
		d.RegisterSystem("AddA", add, []ecs.ViewId{view})
		d.RegisterSystem("AddB", add, []ecs.ViewId{view})

		w := newTestWorld(t, d)
		total := ecs.NewSingleton(w, counter)
		r := newTestRunner(t, w, 4)

		const ticks, delta = 200, 3
		for range ticks {
			r.RunSync(delta)
		}
		assert.Equal(t, int64(ticks*2*delta), total.Get().Value)
		assert.False(t, r.Running())
	})

	t.Run("structural changes apply at the end of the tick", func(t *testing.T) {
		d := newTestDef()
		named := d.RegisterView("named", func(b *ecs.ViewBuilder) { b.Read(d.name) })
		var seen atomic.Int64
		d.RegisterSystem("Spawn", ecs.SystemFunc(func(f *ecs.UpdateFrame) {
			e := f.World.CreateEntity()
			d.name.Add(f.World, e, Name{Value: "spawned"})
			seen.Store(int64(f.View(named).EntityCount()))
		}), []ecs.ViewId{named})

		w := newTestWorld(t, d)
		r := newTestRunner(t, w, 2)
		r.RunSync(0)
		assert.Equal(t, int64(0), seen.Load(), "not visible during the tick")
		r.RunSync(0)
		assert.Equal(t, int64(1), seen.Load())
		assert.Equal(t, 2, w.View(named).EntityCount())
	})

	t.Run("parallel tasks visit disjoint chunks", func(t *testing.T) {
		d := newTestDef()
		moving := d.RegisterView("moving", func(b *ecs.ViewBuilder) { b.Write(d.position).Read(d.velocity) })
		var visited atomic.Int64
		indices := make([]atomic.Int32, 4)
		d.RegisterSystem("Move", ecs.SystemFunc(func(f *ecs.UpdateFrame) {
			indices[f.ParallelIndex].Add(1)
			assert.Equal(t, 4, f.ParallelCount)
			for itr := f.Iter(moving); itr.Walk(); {
				d.position.Write(itr).X += d.velocity.Read(itr).DX
				visited.Add(1)
			}
		}), []ecs.ViewId{moving}, ecs.WithParallel(4))

		w := newTestWorld(t, d)
		for range 10000 {
			e := w.CreateEntity()
			d.position.Add(w, e, Position{})
			d.velocity.Add(w, e, Velocity{DX: 1})
		}
		w.Flush()

		r := newTestRunner(t, w, 4)
		r.RunSync(0)
		r.RunSync(0)
		assert.Equal(t, int64(20000), visited.Load())
		for i := range indices {
			assert.Equal(t, int32(2), indices[i].Load())
		}
		for itr := w.View(moving).Iter(); itr.Walk(); {
			require.Equal(t, float32(2), d.position.Read(itr).X)
		}
	})

	t.Run("affinity systems run on the affinity worker", func(t *testing.T) {
		d := newTestDef()
		var workers sync.Map
		d.RegisterSystem("Main", ecs.SystemFunc(func(f *ecs.UpdateFrame) {
			workers.Store(f.WorkerId(), true)
		}), nil, ecs.WithThreadAffinity())

		r := newTestRunner(t, newTestWorld(t, d), 4)
		for range 20 {
			r.RunSync(0)
		}
		count := 0
		workers.Range(func(k, _ any) bool {
			assert.Equal(t, 0, k)
			count++
			return true
		})
		assert.Equal(t, 1, count)
	})

	t.Run("nested jobs", func(t *testing.T) {
		d := newTestDef()
		var ran atomic.Int64
		d.RegisterSystem("Fork", ecs.SystemFunc(func(f *ecs.UpdateFrame) {
			g := jobs.NewGraph("nested", 8)
			for range 8 {
				g.AddTask("part", jobs.RoutineFunc(func(*jobs.TaskContext) { ran.Add(1) }), jobs.TaskFlagsNone)
			}
			f.Help(f.Run(g))
			assert.Equal(t, int64(8), ran.Load())
		}), nil)

		r := newTestRunner(t, newTestWorld(t, d), 2)
		r.RunSync(0)
		assert.Equal(t, int64(8), ran.Load())
	})

	t.Run("undeclared views panic", func(t *testing.T) {
		d := newTestDef()
		declared := d.RegisterView("declared", func(b *ecs.ViewBuilder) { b.Read(d.position) })
		other := d.RegisterView("other", func(b *ecs.ViewBuilder) { b.Read(d.velocity) })
		var checked atomic.Bool
		d.RegisterSystem("Check", ecs.SystemFunc(func(f *ecs.UpdateFrame) {
			assert.NotPanics(t, func() { f.View(declared) })
			assert.Panics(t, func() { f.View(other) })
			assert.Equal(t, "Check", f.SystemName())
			checked.Store(true)
		}), []ecs.ViewId{declared})

		newTestRunner(t, newTestWorld(t, d), 1).RunSync(0)
		assert.True(t, checked.Load())
	})

	t.Run("one tick at a time", func(t *testing.T) {
		d := newTestDef()
		release := make(chan struct{})
		d.RegisterSystem("Block", ecs.SystemFunc(func(*ecs.UpdateFrame) { <-release }), nil)

		r := newTestRunner(t, newTestWorld(t, d), 2)
		job := r.RunAsync(0)
		assert.True(t, r.Running())
		assert.PanicsWithValue(t, "runner is already running", func() { r.RunAsync(0) })

		close(release)
		select {
		case <-job.Done():
		case <-time.After(10 * time.Second):
			t.Fatal("tick did not finish")
		}
		assert.False(t, r.Running())
	})

	t.Run("stats", func(t *testing.T) {
		d := newTestDef()
		d.RegisterSystem("Sleep", ecs.SystemFunc(func(*ecs.UpdateFrame) { time.Sleep(time.Millisecond) }), nil)
		d.RegisterSystem("Split", ecs.SystemFunc(func(*ecs.UpdateFrame) {}), nil, ecs.WithParallel(3))

		r := newTestRunner(t, newTestWorld(t, d), 2)
		for range 5 {
			r.RunSync(0)
		}
		stats := r.Stats()
		assert.Equal(t, int64(5), stats.Ticks)
		assert.Equal(t, 5, stats.TaskCount)
		assert.Equal(t, uint64(2), stats.Span)
		assert.Equal(t, int64(5), stats.Flush.ExecutionCount)
		require.Len(t, stats.Systems, 2)

		sleep := stats.Systems[0]
		assert.Equal(t, "Sleep", sleep.Name)
		assert.Equal(t, int64(5), sleep.ExecutionCount)
		assert.GreaterOrEqual(t, sleep.MinDuration, time.Millisecond)
		assert.GreaterOrEqual(t, sleep.TotalDuration, 5*time.Millisecond)
		assert.LessOrEqual(t, sleep.MinDuration, sleep.AvgDuration)
		assert.LessOrEqual(t, sleep.AvgDuration, sleep.MaxDuration)
		assert.GreaterOrEqual(t, stats.CriticalPath, sleep.AvgDuration)

		assert.Equal(t, 3, stats.Systems[1].Tasks)
		assert.Equal(t, int64(5), stats.Systems[1].ExecutionCount)
	})

	t.Run("run until cancelled", func(t *testing.T) {
		d := newTestDef()
		var ticks atomic.Int64
		d.RegisterSystem("Tick", ecs.SystemFunc(func(f *ecs.UpdateFrame) {
			assert.Greater(t, f.DeltaTime, 0.0)
			ticks.Add(1)
		}), nil)

		r := newTestRunner(t, newTestWorld(t, d), 2)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		r.Run(ctx, 5*time.Millisecond)

		assert.Greater(t, ticks.Load(), int64(2))
		assert.Equal(t, ticks.Load(), r.Stats().Ticks)
	})
}
