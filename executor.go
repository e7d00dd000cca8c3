package threadtree

import (
	"sync"
	"sync/atomic"
)

// Executor launches workers. A returned error means the worker could not be launched at all, which
// is fatal for the task that tried.
type Executor interface {
	Go(fn func()) error
}

// GoExecutor runs every worker on its own goroutine. It is the default [Executor].
type GoExecutor struct{}

func (GoExecutor) Go(fn func()) error {
	go fn()
	return nil
}

// SerialExecutor runs submitted functions one at a time, in submission order, on a single
// goroutine. With a SerialExecutor, the sequence of events recorded by a task's workers is
// deterministic; pausing the executor around [Task.Start] makes the coordinator's events deterministic
// too.
//
// Functions may submit further functions; they are queued behind everything already submitted.
type SerialExecutor struct {
	mu     sync.Mutex
	queue  []func()
	paused bool
	// closing is set by Close; the loop keeps accepting work until the queue drains
	closing bool
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// NewSerialExecutor starts a new SerialExecutor. It must be stopped with [SerialExecutor.Close].
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *SerialExecutor) Go(fn func()) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	e.notify()
	return nil
}

func (e *SerialExecutor) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Pause stops running queued functions until Resume is called. Functions can still be submitted.
// A function that is already running is not interrupted.
func (e *SerialExecutor) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

func (e *SerialExecutor) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()

	e.notify()
}

// Close runs everything already queued, including anything those functions submit in turn, and
// waits for the executor's goroutine to exit. After Close returns, Go fails with [ErrExecutorClosed].
// Close must not be called from a function running on the executor.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	e.closing = true
	e.paused = false
	e.mu.Unlock()

	e.notify()
	<-e.done
}

func (e *SerialExecutor) loop() {
	defer close(e.done)

	for {
		e.mu.Lock()
		if len(e.queue) == 0 || e.paused {
			if e.closing && len(e.queue) == 0 {
				e.stopped = true
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
			<-e.wake
			continue
		}

		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		fn()
	}
}

// LimitExecutor wraps an Executor, refusing launches once Limit of them have happened. It is mostly
// useful to simulate resource exhaustion.
type LimitExecutor struct {
	Inner Executor
	Limit int64

	launched atomic.Int64
}

func (e *LimitExecutor) Go(fn func()) error {
	if e.launched.Add(1) > e.Limit {
		return ErrExecutorFull
	}
	return e.Inner.Go(fn)
}
