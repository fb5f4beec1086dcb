// Package pool implements a fixed-size worker pool with order-preserving task
// dispatch.
//
// A Pool owns its workers for its whole lifetime and lends them per call:
// Execute dispatches one task per idle worker, queues overflow FIFO, and
// returns results reordered to match the original task order regardless of
// completion order. Task payloads and results cross the worker boundary only
// through the queue and result channels; no mutable state is shared between
// concurrently executing tasks.
//
// Lifecycle: a Pool starts Uninitialized, moves to Ready when the workers are
// spawned lazily on the first Execute, to Draining while Close unwinds
// in-flight batches and lets running tasks finish, and finally to Terminated.
// Closing mid-batch does not strand the batch: its Execute call returns a
// pool-draining error for the tasks that never dispatched.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State describes the pool lifecycle.
type State int32

const (
	// StateUninitialized means no workers have been spawned yet.
	StateUninitialized State = iota
	// StateReady means workers are running and accepting tasks.
	StateReady
	// StateDraining means the pool is waiting for in-flight tasks to finish.
	StateDraining
	// StateTerminated means the pool has shut down and rejects work.
	StateTerminated
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Task is one unit of work. Index identifies the task's slot in the result
// slice; ID is a correlation identifier carried through logs and errors.
type Task struct {
	// ID correlates the task across logs and errors. Assigned by Execute
	// when empty.
	ID string
	// Index is the task's position in the submitted batch.
	Index int
	// Run executes the task. It must honor ctx cancellation.
	Run func(ctx context.Context) (any, error)
}

// Result is the outcome of one Task.
type Result struct {
	// TaskID echoes the Task.ID.
	TaskID string
	// Index echoes the Task.Index.
	Index int
	// Value is the task's return value when Err is nil.
	Value any
	// Err is the task's failure, if any. A failed task does not fail the
	// pool; the worker returns to idle.
	Err error
	// Duration is how long the task ran.
	Duration time.Duration
}

// Progress reports completion of one task out of a batch.
type Progress struct {
	// Processed is the number of completed tasks so far.
	Processed int
	// Total is the batch size.
	Total int
	// Percentage is Processed/Total scaled to 0..100.
	Percentage float64
}

// DefaultSize returns the default worker count: available cores minus one,
// never below one.
func DefaultSize() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

type envelope struct {
	task    Task
	results chan<- Result
}

// Pool is a fixed-size worker pool. It is safe for concurrent use; Execute
// calls from multiple goroutines interleave on the shared queue.
type Pool struct {
	size    int
	logger  *slog.Logger
	metrics *Metrics

	mu       sync.Mutex
	state    atomic.Int32
	queue    chan envelope
	group    *errgroup.Group
	cancel   context.CancelFunc
	busy     atomic.Int32
	draining chan struct{}      // closed by Close to unblock in-flight Execute calls
	batches  sync.WaitGroup     // in-flight Execute calls and their dispatchers
	spawnFn  func(func() error) // test seam for worker spawning
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithMetrics attaches pool metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// New creates a Pool with n workers. Workers are spawned lazily on the first
// Execute. If n < 1 the default size is used.
func New(n int, opts ...Option) *Pool {
	if n < 1 {
		n = DefaultSize()
	}
	p := &Pool{
		size:     n,
		logger:   slog.Default(),
		draining: make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Busy returns the number of workers currently running a task.
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	return State(p.state.Load())
}

// start spawns the workers. Callers hold p.mu.
func (p *Pool) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	p.queue = make(chan envelope)
	p.group = g
	p.cancel = cancel

	spawn := p.spawnFn
	if spawn == nil {
		spawn = g.Go
	}
	for i := 0; i < p.size; i++ {
		id := i
		spawn(func() error {
			p.worker(gctx, id)
			return nil
		})
	}
	p.state.Store(int32(StateReady))
	p.logger.Debug("worker pool ready", "workers", p.size)
	return nil
}

// worker runs tasks from the queue until the pool shuts down. A task failure
// is recorded in the result and the worker returns to idle.
func (p *Pool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-p.queue:
			if !ok {
				return
			}
			p.busy.Add(1)
			if p.metrics != nil {
				p.metrics.BusyWorkers.Inc()
			}
			started := time.Now()
			value, err := env.task.Run(ctx)
			elapsed := time.Since(started)
			p.busy.Add(-1)
			if p.metrics != nil {
				p.metrics.BusyWorkers.Dec()
				p.metrics.observeTask(elapsed, err)
			}
			if err != nil {
				p.logger.Warn("task failed",
					"task", env.task.ID, "worker", id, "error", err)
			}
			res := Result{
				TaskID:   env.task.ID,
				Index:    env.task.Index,
				Value:    value,
				Err:      err,
				Duration: elapsed,
			}
			select {
			case env.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Execute runs tasks on the pool and returns their results in task order,
// regardless of completion order. onProgress, when non-nil, is invoked after
// each task completes. A cancelled ctx stops dispatching, discards results of
// tasks already past their point of no return, and returns ctx.Err(). Closing
// the pool mid-batch stops dispatch of the remaining tasks and makes Execute
// return a pool-draining error; tasks already running finish on the worker.
func (p *Pool) Execute(ctx context.Context, tasks []Task, onProgress func(Progress)) ([]Result, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	p.mu.Lock()
	switch p.State() {
	case StateDraining, StateTerminated:
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is %s", p.State())
	case StateUninitialized:
		if err := p.start(); err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}
	queue := p.queue
	// Registered under p.mu so Close cannot begin waiting for batches
	// between the state check and the registration.
	p.batches.Add(1)
	p.mu.Unlock()
	defer p.batches.Done()

	results := make(chan Result, len(tasks))
	total := len(tasks)

	// Dispatch from a separate goroutine so collection can begin while
	// overflow tasks wait for an idle worker. The dispatcher is the sole
	// writer of the queue for this batch.
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	p.batches.Add(1)
	go func() {
		defer p.batches.Done()
		for _, task := range tasks {
			if task.ID == "" {
				task.ID = uuid.NewString()
			}
			select {
			case queue <- envelope{task: task, results: results}:
			case <-dispatchCtx.Done():
				return
			case <-p.draining:
				return
			}
		}
	}()

	ordered := make([]Result, total)
	for done := 0; done < total; done++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.draining:
			return nil, fmt.Errorf("pool is %s", p.State())
		case res := <-results:
			ordered[res.Index] = res
			if onProgress != nil {
				onProgress(Progress{
					Processed:  done + 1,
					Total:      total,
					Percentage: float64(done+1) / float64(total) * 100,
				})
			}
		}
	}
	return ordered, nil
}

// Close drains the pool: it stops accepting new batches, signals in-flight
// Execute calls to return, lets running tasks finish, then stops the workers
// and moves the pool to Terminated. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.State() {
	case StateTerminated, StateUninitialized:
		p.state.Store(int32(StateTerminated))
		return
	}
	p.state.Store(int32(StateDraining))
	close(p.draining)
	// In-flight Execute calls observe the drain signal and return; their
	// running tasks complete on a live worker context before the workers
	// are cancelled.
	p.batches.Wait()
	p.cancel()
	_ = p.group.Wait()
	p.state.Store(int32(StateTerminated))
	p.logger.Debug("worker pool terminated")
}
