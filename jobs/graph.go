// Package jobs schedules graphs of dependent tasks on a pool of work-stealing workers.
package jobs

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"golang.org/x/tools/container/intsets"
)

// MaxTasks is the maximum number of tasks a single graph can hold.
const MaxTasks = 25000

// MaxTaskChildren is the number of direct dependents a task may have when run by an Executor.
const MaxTaskChildren = 512

// TaskId identifies a task within its graph. Ids are assigned sequentially from zero.
type TaskId uint32

// TaskFlags modify how the executor schedules a task.
type TaskFlags uint8

const (
	TaskFlagsNone TaskFlags = 0

	// TaskThreadAffinity pins the task to the executor's affinity worker, which always runs on the
	// same OS thread.
	TaskThreadAffinity TaskFlags = 1 << 0
)

// Routine is the work performed by a task.
type Routine interface {
	Run(ctx *TaskContext)
}

// RoutineFunc adapts a plain function to the Routine interface.
type RoutineFunc func(ctx *TaskContext)

func (f RoutineFunc) Run(ctx *TaskContext) { f(ctx) }

// CostEstimator returns the relative cost of running a task, used for critical path estimation.
type CostEstimator func(g *Graph, task TaskId) uint64

type task struct {
	name    string
	routine Routine
	flags   TaskFlags
}

// Graph is a directed acyclic graph of tasks where an edge from parent to child means the parent
// must finish before the child may start.
//
// A graph must not be modified while a job created from it is running.
type Graph struct {
	name         string
	tasks        []task
	parentCounts []uint32
	children     [][]TaskId
}

// NewGraph creates an empty graph with room for taskCapacity tasks.
func NewGraph(name string, taskCapacity int) *Graph {
	return &Graph{
		name:         name,
		tasks:        make([]task, 0, taskCapacity),
		parentCounts: make([]uint32, 0, taskCapacity),
		children:     make([][]TaskId, 0, taskCapacity),
	}
}

// Name returns the graph's name.
func (g *Graph) Name() string {
	return g.name
}

// AddTask appends a task to the graph and returns its id.
func (g *Graph) AddTask(name string, routine Routine, flags TaskFlags) TaskId {
	if routine == nil {
		panic(fmt.Sprintf("task '%s' in graph '%s' has no routine", name, g.name))
	}
	if len(g.tasks) >= MaxTasks {
		panic(fmt.Sprintf("graph '%s' exceeds the maximum of %d tasks", g.name, MaxTasks))
	}

	id := TaskId(len(g.tasks))
	g.tasks = append(g.tasks, task{name: name, routine: routine, flags: flags})
	g.parentCounts = append(g.parentCounts, 0)
	g.children = append(g.children, nil)
	return id
}

// Depend registers that parent has to finish before child can start.
// Registering the same edge twice panics.
func (g *Graph) Depend(parent, child TaskId) {
	g.checkTask(parent)
	g.checkTask(child)
	if parent == child {
		panic(fmt.Sprintf("task '%s' in graph '%s' cannot depend on itself", g.tasks[parent].name, g.name))
	}
	if slices.Contains(g.children[parent], child) {
		panic(fmt.Sprintf(
			"duplicate dependency in graph '%s': '%s' (%d) -> '%s' (%d)",
			g.name, g.tasks[parent].name, parent, g.tasks[child].name, child,
		))
	}

	g.parentCounts[child]++
	g.children[parent] = append(g.children[parent], child)
}

// Undepend removes the edge from parent to child. It reports whether the edge existed.
func (g *Graph) Undepend(parent, child TaskId) bool {
	g.checkTask(parent)
	g.checkTask(child)

	idx := slices.Index(g.children[parent], child)
	if idx < 0 {
		return false
	}
	g.children[parent] = slices.Delete(g.children[parent], idx, idx+1)
	g.parentCounts[child]--
	return true
}

// HasDependency reports whether there is a direct edge from parent to child.
func (g *Graph) HasDependency(parent, child TaskId) bool {
	g.checkTask(parent)
	return slices.Contains(g.children[parent], child)
}

// ReduceDependencies performs a transitive reduction: every direct edge from a task to a task that
// is also reachable through another path is removed. The partial order is unchanged.
// Returns the number of edges that were removed.
func (g *Graph) ReduceDependencies() int {
	removed := 0
	var (
		visited intsets.Sparse
		stack   []TaskId
	)

	for root := range g.tasks {
		if len(g.children[root]) < 2 {
			continue
		}
		visited.Clear()
		stack = stack[:0]

		// Walk everything reachable from the root's children; a child of any descendant that is also a
		// direct child of the root is redundant.
		direct := slices.Clone(g.children[root])
		for _, child := range direct {
			if visited.Insert(int(child)) {
				stack = append(stack, child)
			}
		}
		for len(stack) > 0 {
			head := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			for _, desc := range g.children[head] {
				if g.Undepend(TaskId(root), desc) {
					removed++
				}
				if visited.Insert(int(desc)) {
					stack = append(stack, desc)
				}
			}
		}
	}
	return removed
}

// CheckChildLimit panics if a task has more than MaxTaskChildren children. Call it once the
// dependencies are final, after ReduceDependencies.
func (g *Graph) CheckChildLimit() {
	for t, children := range g.children {
		if len(children) > MaxTaskChildren {
			panic(fmt.Sprintf("task '%s' in graph '%s' has %d children, the maximum is %d",
				g.tasks[t].name, g.name, len(children), MaxTaskChildren))
		}
	}
}

// Validate reports whether the graph is acyclic.
func (g *Graph) Validate() bool {
	var processed, processing intsets.Sparse

	type frame struct {
		task TaskId
		next int
	}
	var stack []frame

	for start := range g.tasks {
		if processed.Has(start) {
			continue
		}
		stack = append(stack[:0], frame{task: TaskId(start)})
		processing.Insert(start)

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := g.children[top.task]
			if top.next == len(children) {
				processing.Remove(int(top.task))
				processed.Insert(int(top.task))
				stack = stack[:len(stack)-1]
				continue
			}

			child := children[top.next]
			top.next++

			if processing.Has(int(child)) {
				return false // Back edge.
			}
			if processed.Has(int(child)) {
				continue
			}
			processing.Insert(int(child))
			stack = append(stack, frame{task: child})
		}
	}
	return true
}

// topologicalOrder returns the tasks ordered so that every parent precedes its children.
// The graph is assumed to be acyclic.
func (g *Graph) topologicalOrder() []TaskId {
	order := make([]TaskId, 0, len(g.tasks))
	var visited intsets.Sparse

	type frame struct {
		task TaskId
		next int
	}
	var stack []frame

	for start := range g.tasks {
		if visited.Has(start) {
			continue
		}
		visited.Insert(start)
		stack = append(stack[:0], frame{task: TaskId(start)})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := g.children[top.task]
			if top.next == len(children) {
				order = append(order, top.task)
				stack = stack[:len(stack)-1]
				continue
			}
			child := children[top.next]
			top.next++
			if visited.Insert(int(child)) {
				stack = append(stack, frame{task: child})
			}
		}
	}

	slices.Reverse(order)
	return order
}

// Span returns the length of the critical path in tasks, assuming every task costs one unit.
func (g *Graph) Span() uint64 {
	return g.SpanCost(nil)
}

// SpanCost returns the cost of the most expensive path through the graph. A nil estimator costs
// every task at one unit.
func (g *Graph) SpanCost(estimator CostEstimator) uint64 {
	if len(g.tasks) == 0 {
		return 0
	}

	cost := func(t TaskId) uint64 {
		if estimator == nil {
			return 1
		}
		return max(estimator(g, t), 1)
	}

	// Longest distance from any root to the end of each task.
	dist := make([]uint64, len(g.tasks))
	for t := range g.tasks {
		if g.parentCounts[t] == 0 {
			dist[t] = cost(TaskId(t))
		}
	}

	var span uint64
	for _, t := range g.topologicalOrder() {
		span = max(span, dist[t])
		for _, child := range g.children[t] {
			dist[child] = max(dist[child], dist[t]+cost(child))
		}
	}
	return span
}

// Parallelism returns the theoretical maximum speed-up of executing the graph on an unbounded
// number of workers: the task count divided by the span.
func (g *Graph) Parallelism() float64 {
	span := g.Span()
	if span == 0 {
		return 0
	}
	return float64(len(g.tasks)) / float64(span)
}

// TaskCount returns the number of tasks in the graph.
func (g *Graph) TaskCount() int {
	return len(g.tasks)
}

// RootCount returns the number of tasks without parents.
func (g *Graph) RootCount() int {
	count := 0
	for _, c := range g.parentCounts {
		if c == 0 {
			count++
		}
	}
	return count
}

// LeafCount returns the number of tasks without children.
func (g *Graph) LeafCount() int {
	count := 0
	for _, c := range g.children {
		if len(c) == 0 {
			count++
		}
	}
	return count
}

func (g *Graph) TaskName(t TaskId) string {
	g.checkTask(t)
	return g.tasks[t].name
}

func (g *Graph) TaskFlags(t TaskId) TaskFlags {
	g.checkTask(t)
	return g.tasks[t].flags
}

// ParentCount returns the number of direct dependencies of the task.
func (g *Graph) ParentCount(t TaskId) int {
	g.checkTask(t)
	return int(g.parentCounts[t])
}

// Children iterates over the direct dependents of the task.
func (g *Graph) Children(t TaskId) iter.Seq[TaskId] {
	g.checkTask(t)
	return func(yield func(TaskId) bool) {
		for _, child := range g.children[t] {
			if !yield(child) {
				return
			}
		}
	}
}

// Clear removes all tasks and edges while keeping the allocated capacity.
func (g *Graph) Clear() {
	g.tasks = g.tasks[:0]
	g.parentCounts = g.parentCounts[:0]
	g.children = g.children[:0]
}

// CopyFrom replaces the contents of g with a copy of src. The routines are shared.
func (g *Graph) CopyFrom(src *Graph) {
	g.Clear()
	g.tasks = append(g.tasks, src.tasks...)
	g.parentCounts = append(g.parentCounts, src.parentCounts...)
	for _, c := range src.children {
		g.children = append(g.children, slices.Clone(c))
	}
}

func (g *Graph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph '%s' (tasks: %d, roots: %d, leaves: %d)\n", g.name, len(g.tasks), g.RootCount(), g.LeafCount())
	for t, tk := range g.tasks {
		fmt.Fprintf(&b, "  [%d] %s", t, tk.name)
		if tk.flags&TaskThreadAffinity != 0 {
			b.WriteString(" (affinity)")
		}
		for i, child := range g.children[t] {
			if i == 0 {
				b.WriteString(" ->")
			}
			fmt.Fprintf(&b, " %s", g.tasks[child].name)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (g *Graph) checkTask(t TaskId) {
	if int(t) >= len(g.tasks) {
		panic(fmt.Sprintf("task %d out of bounds in graph '%s' (tasks: %d)", t, g.name, len(g.tasks)))
	}
}
