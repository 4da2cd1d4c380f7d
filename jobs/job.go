package jobs

import (
	"sync/atomic"
	"time"
)

// JobId identifies a submitted job. Ids increase monotonically per executor.
type JobId uint64

// Job is a handle to a running (or finished) instance of a graph.
type Job struct {
	id      JobId
	graph   *Graph
	slot    int
	started time.Time

	// Remaining parents per task; a task becomes runnable when its counter reaches zero.
	deps []atomic.Int32
	// Leaf tasks that have not finished yet.
	remaining atomic.Int32

	duration time.Duration
	done     chan struct{}
}

func newJob(id JobId, g *Graph) *Job {
	j := &Job{
		id:      id,
		graph:   g,
		slot:    -1,
		started: time.Now(),
		deps:    make([]atomic.Int32, len(g.tasks)),
		done:    make(chan struct{}),
	}
	for t, parents := range g.parentCounts {
		j.deps[t].Store(int32(parents))
	}
	j.remaining.Store(int32(g.LeafCount()))
	return j
}

func (j *Job) Id() JobId {
	return j.id
}

// Graph returns the graph the job was created from.
func (j *Job) Graph() *Graph {
	return j.graph
}

// IsFinished reports whether every task of the job has completed.
func (j *Job) IsFinished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the job finishes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes. It must not be called from inside a task; use
// TaskContext.WaitHelp there.
func (j *Job) Wait() {
	<-j.done
}

// Duration returns the wall time between submission and completion, or zero while running.
func (j *Job) Duration() time.Duration {
	if !j.IsFinished() {
		return 0
	}
	return j.duration
}

// TaskContext is handed to every routine. It identifies the running task and lets the routine
// submit or help with nested jobs from the worker it runs on.
type TaskContext struct {
	worker *worker
	job    *Job
	task   TaskId
}

func (c *TaskContext) Job() *Job {
	return c.job
}

func (c *TaskContext) Task() TaskId {
	return c.task
}

// TaskName returns the name of the running task.
func (c *TaskContext) TaskName() string {
	return c.job.graph.tasks[c.task].name
}

// WorkerId returns the index of the worker running the task. The host helper reports the index
// after the last pool worker.
func (c *TaskContext) WorkerId() int {
	return c.worker.id
}

func (c *TaskContext) Executor() *Executor {
	return c.worker.exec
}

// Run submits a graph from inside a task; its roots are queued on the current worker.
func (c *TaskContext) Run(g *Graph) *Job {
	return c.worker.exec.run(g, c.worker)
}

// WaitHelp runs any available work until the job finishes. It never sleeps, so the worker stays
// available to the tasks the job depends on.
func (c *TaskContext) WaitHelp(j *Job) {
	c.worker.help(j, false)
}
