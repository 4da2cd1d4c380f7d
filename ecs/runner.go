package ecs

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/plus3/strata/jobs"
	"go.uber.org/zap"
)

// systemTask runs one share of a system.
type systemTask struct {
	runner *Runner
	system SystemId
	count  int
	index  int
	stats  durationStats
}

func (t *systemTask) Run(ctx *jobs.TaskContext) {
	r := t.runner
	def := &r.world.def.systems[t.system]
	frame := UpdateFrame{
		DeltaTime:     r.deltaTime,
		World:         r.world,
		ParallelCount: t.count,
		ParallelIndex: t.index,
		system:        t.system,
		views:         def.views,
		task:          ctx,
	}

	start := time.Now()
	def.system.Execute(&frame)
	t.stats.record(time.Since(start))
}

// Runner executes every system of a World once per tick on a jobs.Executor. Systems run in parallel
// unless their views conflict; a final task on the affinity worker flushes the World.
type Runner struct {
	world *World
	exec  *jobs.Executor
	log   *zap.Logger

	graph      *jobs.Graph
	tasks      []*systemTask // Indexed by task id; nil for the flush task.
	bySystem   [][]jobs.TaskId
	flushTask  jobs.TaskId
	flushStats durationStats

	running   atomic.Bool
	ticks     atomic.Int64
	deltaTime float64
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger used to report graph construction.
func WithRunnerLogger(log *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

// NewRunner builds the task graph for the World's systems.
func NewRunner(world *World, exec *jobs.Executor, opts ...RunnerOption) *Runner {
	r := &Runner{
		world: world,
		exec:  exec,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.build()
	return r
}

func (r *Runner) build() {
	def := r.world.def

	order := make([]SystemId, def.SystemCount())
	taskCount := 1
	for i := range order {
		order[i] = SystemId(i)
		taskCount += def.systems[i].parallel
	}
	slices.SortStableFunc(order, func(a, b SystemId) int {
		return cmp.Compare(def.systems[a].order, def.systems[b].order)
	})

	r.graph = jobs.NewGraph("ecs-runner", taskCount)
	r.bySystem = make([][]jobs.TaskId, def.SystemCount())
	for _, id := range order {
		sys := &def.systems[id]
		flags := jobs.TaskFlagsNone
		if sys.flags&SystemThreadAffinity != 0 {
			flags |= jobs.TaskThreadAffinity
		}
		for i := range sys.parallel {
			task := &systemTask{runner: r, system: id, count: sys.parallel, index: i}
			name := sys.name
			if sys.parallel > 1 {
				name = fmt.Sprintf("%s[%d]", sys.name, i)
			}
			t := r.graph.AddTask(name, task, flags)
			r.tasks = append(r.tasks, task)
			r.bySystem[id] = append(r.bySystem[id], t)
		}
	}

	// Conflicting systems run in declaration order.
	for i, a := range order {
		for _, b := range order[i+1:] {
			if !r.systemsConflict(a, b) {
				continue
			}
			for _, parent := range r.bySystem[a] {
				for _, child := range r.bySystem[b] {
					r.graph.Depend(parent, child)
				}
			}
		}
	}

	r.flushTask = r.graph.AddTask("Flush", jobs.RoutineFunc(r.flush), jobs.TaskThreadAffinity)
	r.tasks = append(r.tasks, nil)
	for _, tasks := range r.bySystem {
		for _, t := range tasks {
			r.graph.Depend(t, r.flushTask)
		}
	}

	removed := r.graph.ReduceDependencies()
	if !r.graph.Validate() {
		panic("runner graph contains a dependency cycle")
	}
	r.graph.CheckChildLimit()

	r.log.Debug("runner graph built",
		zap.Int("systems", def.SystemCount()),
		zap.Int("tasks", r.graph.TaskCount()),
		zap.Int("reduced_dependencies", removed),
		zap.Uint64("span", r.graph.Span()),
		zap.Float64("parallelism", r.graph.Parallelism()),
	)
}

func (r *Runner) systemsConflict(a, b SystemId) bool {
	def := r.world.def
	sa, sb := &def.systems[a], &def.systems[b]
	if sa.flags&SystemExclusive != 0 || sb.flags&SystemExclusive != 0 {
		return true
	}
	for _, va := range sa.views {
		for _, vb := range sb.views {
			if ViewsConflict(r.world.View(va), r.world.View(vb)) {
				return true
			}
		}
	}
	return false
}

func (r *Runner) flush(*jobs.TaskContext) {
	start := time.Now()
	r.world.Flush()
	r.flushStats.record(time.Since(start))
	r.ticks.Add(1)
	r.running.Store(false)
}

// Graph returns the task graph. It must not be modified.
func (r *Runner) Graph() *jobs.Graph {
	return r.graph
}

// World returns the world the runner updates.
func (r *Runner) World() *World {
	return r.world
}

// Running reports whether a tick is in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// RunAsync starts one tick and returns its job. Starting a tick while one is running panics.
func (r *Runner) RunAsync(deltaTime float64) *jobs.Job {
	if !r.running.CompareAndSwap(false, true) {
		panic("runner is already running")
	}
	r.deltaTime = deltaTime
	return r.exec.Run(r.graph)
}

// RunSync runs one tick, helping the executor until it finishes.
func (r *Runner) RunSync(deltaTime float64) {
	job := r.RunAsync(deltaTime)
	r.exec.WaitHelp(job)
}

// Run executes ticks at the given interval until the context is cancelled.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(lastTime).Seconds()
			lastTime = now
			r.RunSync(dt)
		}
	}
}

// Stats returns statistics about the graph and system execution.
func (r *Runner) Stats() *RunnerStats {
	def := r.world.def
	stats := &RunnerStats{
		Ticks:       r.ticks.Load(),
		TaskCount:   r.graph.TaskCount(),
		Span:        r.graph.Span(),
		Parallelism: r.graph.Parallelism(),
		Flush:       SystemStats{Name: "Flush"},
		Systems:     make([]SystemStats, def.SystemCount()),
	}

	stats.CriticalPath = time.Duration(r.graph.SpanCost(func(_ *jobs.Graph, t jobs.TaskId) uint64 {
		if t == r.flushTask {
			return durationCost(r.flushStats.average())
		}
		return durationCost(r.tasks[t].stats.average())
	}))

	r.flushStats.merge(&stats.Flush)
	for id, tasks := range r.bySystem {
		out := &stats.Systems[id]
		out.Name = def.systems[id].name
		for _, t := range tasks {
			r.tasks[t].stats.merge(out)
		}
	}
	return stats
}
