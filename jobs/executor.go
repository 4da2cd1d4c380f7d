package jobs

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ExecutorStats is a snapshot of the executor's counters.
type ExecutorStats struct {
	Workers        int
	AffinityWorker int
	JobsRun        uint64
	TasksRun       uint64
	Steals         uint64
	Sleeping       int
	RunningJobs    int
}

// Executor runs job graphs on a fixed pool of workers. Every worker owns a work queue; idle workers
// steal from the others. Tasks flagged with TaskThreadAffinity always run on the affinity worker,
// which is locked to a single OS thread.
//
// One executor is meant to serve every graph of a process; it is safe for concurrent use.
type Executor struct {
	cfg Config
	log *zap.Logger

	// Pool workers followed by the host helper slot used by WaitHelp.
	workers        []*worker
	host           *worker
	hostClaimed    atomic.Bool
	affinity       *affinityQueue
	affinityWorker int

	submitMu   sync.Mutex
	submitted  []workItem
	submitHead int
	submitLen  atomic.Int32

	sleepMu   sync.Mutex
	sleepCond *sync.Cond
	sleeping  atomic.Int32
	teardown  atomic.Bool
	closed    atomic.Bool
	wg        sync.WaitGroup

	jobsMu    sync.Mutex
	jobSlots  []atomic.Pointer[Job]
	freeSlots []int
	nextJobId atomic.Uint64

	jobsRun  atomic.Uint64
	tasksRun atomic.Uint64
	steals   atomic.Uint64
}

type worker struct {
	id       int
	exec     *Executor
	queue    *workQueue
	affinity bool
	contexts []*TaskContext
	depth    int
}

// NewExecutor starts the worker pool. An invalid configuration panics.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		cfg: DefaultConfig(),
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid executor config: %v", err))
	}

	count := e.cfg.WorkerCount()
	e.sleepCond = sync.NewCond(&e.sleepMu)
	e.affinity = newAffinityQueue(e.cfg.AffinityQueueCapacity)
	e.jobSlots = make([]atomic.Pointer[Job], maxRunningJobs)
	e.freeSlots = make([]int, 0, maxRunningJobs)
	for i := maxRunningJobs - 1; i >= 0; i-- {
		e.freeSlots = append(e.freeSlots, i)
	}

	e.workers = make([]*worker, count+1)
	for i := range e.workers {
		e.workers[i] = &worker{
			id:    i,
			exec:  e,
			queue: newWorkQueue(e.cfg.QueueCapacity),
		}
	}
	e.host = e.workers[count]
	e.affinityWorker = 0
	e.workers[e.affinityWorker].affinity = true

	e.wg.Add(count)
	for _, w := range e.workers[:count] {
		go w.loop()
	}

	e.log.Info("executor started",
		zap.Int("workers", count),
		zap.Int("affinity_worker", e.affinityWorker),
		zap.Int("queue_capacity", e.cfg.QueueCapacity),
	)
	return e
}

// WorkerCount returns the number of pool workers, excluding the host helper.
func (e *Executor) WorkerCount() int {
	return len(e.workers) - 1
}

// Run submits the graph for execution and returns immediately. A cyclic graph panics; a graph
// without tasks yields an already finished job.
func (e *Executor) Run(g *Graph) *Job {
	return e.run(g, nil)
}

// RunSync submits the graph and helps executing it until it finishes.
func (e *Executor) RunSync(g *Graph) *Job {
	job := e.Run(g)
	e.WaitHelp(job)
	return job
}

func (e *Executor) run(g *Graph, from *worker) *Job {
	if e.closed.Load() {
		panic(fmt.Sprintf("cannot run graph '%s': executor is closed", g.Name()))
	}
	if !g.Validate() {
		panic(fmt.Sprintf("cannot run graph '%s': it contains a dependency cycle", g.Name()))
	}

	job := newJob(JobId(e.nextJobId.Add(1)), g)
	e.jobsRun.Add(1)
	if g.TaskCount() == 0 {
		close(job.done)
		return job
	}
	e.acquireSlot(job)

	for t, parents := range g.parentCounts {
		if parents != 0 {
			continue
		}
		item := newWorkItem(job.slot, TaskId(t))
		switch {
		case g.tasks[t].flags&TaskThreadAffinity != 0:
			e.affinity.push(item)
		case from != nil:
			from.queue.push(item)
		default:
			e.submit(item)
		}
	}
	e.wake()
	return job
}

// WaitHelp blocks until the job finishes, executing runnable tasks on the calling goroutine in the
// meantime. Only one goroutine at a time can help; others simply wait.
// From inside a task use TaskContext.WaitHelp instead.
func (e *Executor) WaitHelp(job *Job) {
	if job.IsFinished() {
		return
	}
	if !e.hostClaimed.CompareAndSwap(false, true) {
		job.Wait()
		return
	}
	defer e.hostClaimed.Store(false)
	e.host.help(job, true)
}

// Close waits for all running jobs, then stops the workers. Running a graph afterwards panics.
func (e *Executor) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	for i := range e.jobSlots {
		if job := e.jobSlots[i].Load(); job != nil {
			e.WaitHelp(job)
		}
	}

	e.sleepMu.Lock()
	e.teardown.Store(true)
	e.sleepCond.Broadcast()
	e.sleepMu.Unlock()
	e.wg.Wait()

	e.log.Info("executor stopped",
		zap.Uint64("jobs", e.jobsRun.Load()),
		zap.Uint64("tasks", e.tasksRun.Load()),
		zap.Uint64("steals", e.steals.Load()),
	)
}

// Stats returns a snapshot of the executor's counters.
func (e *Executor) Stats() ExecutorStats {
	e.jobsMu.Lock()
	running := maxRunningJobs - len(e.freeSlots)
	e.jobsMu.Unlock()

	return ExecutorStats{
		Workers:        e.WorkerCount(),
		AffinityWorker: e.affinityWorker,
		JobsRun:        e.jobsRun.Load(),
		TasksRun:       e.tasksRun.Load(),
		Steals:         e.steals.Load(),
		Sleeping:       int(e.sleeping.Load()),
		RunningJobs:    running,
	}
}

func (e *Executor) acquireSlot(job *Job) {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()

	if len(e.freeSlots) == 0 {
		panic(fmt.Sprintf("too many running jobs (max: %d)", maxRunningJobs))
	}
	job.slot = e.freeSlots[len(e.freeSlots)-1]
	e.freeSlots = e.freeSlots[:len(e.freeSlots)-1]
	e.jobSlots[job.slot].Store(job)
}

func (e *Executor) finish(job *Job) {
	job.duration = time.Since(job.started)

	e.jobsMu.Lock()
	e.jobSlots[job.slot].Store(nil)
	e.freeSlots = append(e.freeSlots, job.slot)
	e.jobsMu.Unlock()

	close(job.done)
}

func (e *Executor) submit(item workItem) {
	e.submitMu.Lock()
	e.submitted = append(e.submitted, item)
	e.submitLen.Add(1)
	e.submitMu.Unlock()
}

func (e *Executor) popSubmitted() workItem {
	if e.submitLen.Load() == 0 {
		return 0
	}
	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	if e.submitHead == len(e.submitted) {
		return 0
	}
	item := e.submitted[e.submitHead]
	e.submitHead++
	e.submitLen.Add(-1)
	if e.submitHead == len(e.submitted) {
		e.submitted = e.submitted[:0]
		e.submitHead = 0
	}
	return item
}

// wake rouses sleeping workers. Pushers check the sleeping count after publishing work; sleepers
// increment it before their final check, so one of the two always observes the other.
func (e *Executor) wake() {
	if e.sleeping.Load() == 0 {
		return
	}
	e.sleepMu.Lock()
	e.sleepCond.Broadcast()
	e.sleepMu.Unlock()
}

func (w *worker) loop() {
	defer w.exec.wg.Done()
	if w.affinity {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	for !w.exec.teardown.Load() {
		if item := w.findWork(); item.valid() {
			w.perform(item)
			continue
		}
		if item := w.stealLoop(); item.valid() {
			w.perform(item)
			continue
		}
		w.sleep()
	}
}

// findWork returns work the worker can take without stealing.
func (w *worker) findWork() workItem {
	if w.affinity {
		if item := w.exec.affinity.pop(); item.valid() {
			return item
		}
	}
	if item := w.queue.pop(); item.valid() {
		return item
	}
	return w.exec.popSubmitted()
}

func (w *worker) stealLoop() workItem {
	for range stealAttempts {
		if item := w.stealOnce(); item.valid() {
			return item
		}
		runtime.Gosched()
	}
	return 0
}

// stealOnce tries every other queue once, starting at a random victim.
func (w *worker) stealOnce() workItem {
	workers := w.exec.workers
	start := rand.IntN(len(workers))
	for i := range workers {
		victim := workers[(start+i)%len(workers)]
		if victim == w {
			continue
		}
		if item := victim.queue.steal(); item.valid() {
			w.exec.steals.Add(1)
			return item
		}
	}
	return w.exec.popSubmitted()
}

func (w *worker) sleep() {
	e := w.exec
	e.sleepMu.Lock()
	e.sleeping.Add(1)

	// Last attempt while registered as sleeping; anything published after this point will see the
	// sleeping count and broadcast.
	item := w.findWork()
	if !item.valid() {
		item = w.stealOnce()
	}
	if !item.valid() && !e.teardown.Load() {
		e.sleepCond.Wait()
	}

	e.sleeping.Add(-1)
	e.sleepMu.Unlock()

	if item.valid() {
		w.perform(item)
	}
}

// help executes available work until the job finishes. When mayBlock is set the helper stops
// spinning after a while and blocks on the job; the pool finishes the remaining work.
func (w *worker) help(job *Job, mayBlock bool) {
	yields := 0
	for !job.IsFinished() {
		item := w.findWork()
		if !item.valid() {
			item = w.stealOnce()
		}
		if item.valid() {
			w.perform(item)
			yields = 0
			continue
		}
		if mayBlock && yields >= helpYieldLimit {
			job.Wait()
			return
		}
		yields++
		runtime.Gosched()
	}
}

func (w *worker) perform(item workItem) {
	e := w.exec
	job := e.jobSlots[item.slot()].Load()
	t := item.task()
	g := job.graph

	ctx := w.enter(job, t)
	g.tasks[t].routine.Run(ctx)
	w.leave()
	e.tasksRun.Add(1)

	// Copy the children; once the last child is released the job may finish and the graph may be
	// reused by its owner.
	var buf [MaxTaskChildren]TaskId
	if len(g.children[t]) > MaxTaskChildren {
		panic(fmt.Sprintf("task '%s' exceeds the maximum of %d children", g.tasks[t].name, MaxTaskChildren))
	}
	children := buf[:copy(buf[:], g.children[t])]

	if len(children) == 0 {
		if job.remaining.Add(-1) == 0 {
			e.finish(job)
		}
		return
	}

	pushed := false
	for _, child := range children {
		if job.deps[child].Add(-1) != 0 {
			continue
		}
		item := newWorkItem(job.slot, child)
		if g.tasks[child].flags&TaskThreadAffinity != 0 {
			e.affinity.push(item)
		} else {
			w.queue.push(item)
		}
		pushed = true
	}
	if pushed {
		e.wake()
	}
}

// enter returns the task context for the current nesting depth; tasks may help other jobs while
// running, which executes further tasks on the same worker.
func (w *worker) enter(job *Job, t TaskId) *TaskContext {
	if w.depth == len(w.contexts) {
		w.contexts = append(w.contexts, &TaskContext{worker: w})
	}
	ctx := w.contexts[w.depth]
	ctx.job = job
	ctx.task = t
	w.depth++
	return ctx
}

func (w *worker) leave() {
	w.depth--
}
