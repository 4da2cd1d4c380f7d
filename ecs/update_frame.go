package ecs

import (
	"fmt"
	"slices"

	"github.com/plus3/strata/jobs"
)

// UpdateFrame is passed to a system for one execution.
type UpdateFrame struct {
	DeltaTime float64
	World     *World

	// ParallelCount is the number of tasks the system was split into; ParallelIndex identifies this
	// one. Iterators from Iter only visit the chunks belonging to this task.
	ParallelCount int
	ParallelIndex int

	system SystemId
	views  []ViewId
	task   *jobs.TaskContext
}

// SystemName returns the name of the executing system.
func (f *UpdateFrame) SystemName() string {
	return f.World.def.SystemName(f.system)
}

// View returns one of the views the system declared. Other views panic.
func (f *UpdateFrame) View(id ViewId) *View {
	if !slices.Contains(f.views, id) {
		panic(fmt.Sprintf("system '%s' did not declare view '%s'", f.SystemName(), f.World.def.ViewName(id)))
	}
	return f.World.View(id)
}

// Iter returns an iterator over this task's share of the view.
func (f *UpdateFrame) Iter(id ViewId) *Iterator {
	return f.View(id).Iter().Step(f.ParallelCount, f.ParallelIndex)
}

// Run starts a nested job from inside the system.
func (f *UpdateFrame) Run(g *jobs.Graph) *jobs.Job {
	return f.task.Run(g)
}

// Help executes tasks until the nested job finishes. The system never blocks the worker.
func (f *UpdateFrame) Help(job *jobs.Job) {
	f.task.WaitHelp(job)
}

// WorkerId returns the executor worker running the system.
func (f *UpdateFrame) WorkerId() int {
	return f.task.WorkerId()
}
