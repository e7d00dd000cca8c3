package threadtree

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidShape        = errors.New("task must have at least one stage and a non-negative worker count")
	ErrNonPositiveCapacity = errors.New("stage capacity would drop below one worker")
	ErrAlreadyStarted      = errors.New("task was already started")
	ErrNotStarted          = errors.New("task was not started")
	ErrClosed              = errors.New("task is closed")
	ErrStillRunning        = errors.New("task still has running workers")
	ErrAlreadyJoined       = errors.New("worker was already joined")
	ErrExecutorClosed      = errors.New("executor is closed")
	ErrExecutorFull        = errors.New("executor launch limit reached")
)

// WorkerError is a failure of a single worker's workload. The worker still completes its protocol,
// so a WorkerError never prevents the task from draining.
type WorkerError struct {
	Worker  WorkerID
	Stage   int
	Lineage *Lineage
	Err     error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("%s (stage %d): %s", e.Worker, e.Stage, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// WaitError is returned by [Task.Wait] when the context ends before every worker has been joined.
//
// Waiting may be resumed afterwards with a fresh context; no joined progress is lost.
type WaitError struct {
	// Stage is the index of the stage being drained when waiting stopped.
	Stage int
	// Joined is how many workers of Stage had already been joined.
	Joined   int
	Capacity int
	// Running is a snapshot of the workers that had not exited yet.
	Running WorkerTree
	Err     error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf(
		"waiting on stage %d (%d of %d workers joined): %s; still running: %s",
		e.Stage, e.Joined, e.Capacity, e.Err, e.Running,
	)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}
