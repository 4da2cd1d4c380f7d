package jobs_test

import (
	"fmt"
	"sync/atomic"

	"github.com/plus3/strata/jobs"
)

// This example builds a small pipeline, removes the redundant edge and runs it.
func ExampleGraph() {
	var loaded, parsed, indexed, reported atomic.Bool

	g := jobs.NewGraph("pipeline", 4)
	load := g.AddTask("load", jobs.RoutineFunc(func(*jobs.TaskContext) { loaded.Store(true) }), jobs.TaskFlagsNone)
	parse := g.AddTask("parse", jobs.RoutineFunc(func(*jobs.TaskContext) { parsed.Store(loaded.Load()) }), jobs.TaskFlagsNone)
	index := g.AddTask("index", jobs.RoutineFunc(func(*jobs.TaskContext) { indexed.Store(parsed.Load()) }), jobs.TaskFlagsNone)
	report := g.AddTask("report", jobs.RoutineFunc(func(*jobs.TaskContext) { reported.Store(indexed.Load()) }), jobs.TaskFlagsNone)

	g.Depend(load, parse)
	g.Depend(parse, index)
	g.Depend(parse, report)
	g.Depend(index, report)
	g.Depend(load, report) // Implied by load -> parse -> report.

	fmt.Println("valid:", g.Validate())
	fmt.Println("removed:", g.ReduceDependencies())
	fmt.Println("span:", g.Span())

	exec := jobs.NewExecutor(jobs.WithWorkers(2))
	defer exec.Close()
	exec.RunSync(g)

	fmt.Println("reported:", reported.Load())
	// Output:
	// valid: true
	// removed: 2
	// span: 4
	// reported: true
}

func ExampleGraph_Parallelism() {
	g := jobs.NewGraph("fan", 5)
	root := g.AddTask("root", noop, jobs.TaskFlagsNone)
	sink := g.AddTask("sink", noop, jobs.TaskFlagsNone)
	for range 3 {
		mid := g.AddTask("mid", noop, jobs.TaskFlagsNone)
		g.Depend(root, mid)
		g.Depend(mid, sink)
	}

	fmt.Printf("tasks=%d roots=%d leaves=%d span=%d parallelism=%.2f\n",
		g.TaskCount(), g.RootCount(), g.LeafCount(), g.Span(), g.Parallelism())
	// Output:
	// tasks=5 roots=1 leaves=1 span=3 parallelism=1.67
}
