package threadtree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config describes the shape and collaborators of a [Task].
type Config struct {
	// Stages is the number of stages. Must be at least one.
	Stages int
	// Workers is the size of the first stage; every following stage has one worker fewer.
	Workers int
	// Policy decides what happens when the shrinking stages run out of workers.
	Policy CapacityPolicy

	// Workload is run by every worker. Defaults to Sleep(time.Second).
	Workload Workload
	// Sink receives start, fork, and exit events. Defaults to discarding them.
	Sink EventSink
	// Executor launches workers. Defaults to GoExecutor.
	Executor Executor
	// Logger receives debug logging about spawns and joins. Defaults to discarding it.
	Logger logrus.FieldLogger
}

// Task is an ordered chain of [Stage]s. It owns every stage and the workers' join handles.
//
// The typical lifecycle is NewTask, Start, Wait, Close; Run does all three after construction.
type Task struct {
	ID uuid.UUID

	stages   []*Stage
	group    *WorkerGroup
	workload Workload
	sink     EventSink
	exec     Executor
	log      logrus.FieldLogger

	// ctx is the context given to Start, passed to every workload
	ctx     context.Context
	started atomic.Bool
	nextID  atomic.Uint64

	waitMu  sync.Mutex
	drained bool

	mu     sync.Mutex
	closed bool
	fatal  error
	errs   []error
	failed chan struct{}
}

// NewTask builds every stage of the task up front. No workers are started until [Task.Start].
func NewTask(cfg Config) (*Task, error) {
	caps, err := Capacities(cfg.Stages, cfg.Workers, cfg.Policy)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generating task ID: %w", err)
	}

	t := &Task{
		ID:       id,
		workload: cfg.Workload,
		sink:     cfg.Sink,
		exec:     cfg.Executor,
		failed:   make(chan struct{}),
	}
	if t.workload == nil {
		t.workload = Sleep(time.Second)
	}
	if t.sink == nil {
		t.sink = discardSink
	}
	if t.exec == nil {
		t.exec = GoExecutor{}
	}

	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.Out = io.Discard
		logger = l
	}
	t.log = logger.WithField("task", id.String())

	t.group = NewWorkerGroup("task")
	t.stages = make([]*Stage, len(caps))
	for i, c := range caps {
		t.stages[i] = newStage(i, c, t.group.NewSubgroup(fmt.Sprintf("stage-%d", i)))
		if i > 0 {
			t.stages[i-1].next = t.stages[i]
		}
	}

	return t, nil
}

// Stages returns the task's stages, in execution order
func (t *Task) Stages() []*Stage {
	return append([]*Stage(nil), t.stages...)
}

func (t *Task) StageCount() int {
	return len(t.stages)
}

// TotalWorkers returns the number of workers a full run spawns: the sum of all stage capacities.
func (t *Task) TotalWorkers() int {
	n := 0
	for _, s := range t.stages {
		n += s.capacity
	}
	return n
}

// Running returns a snapshot of the workers that have been launched but not exited yet, grouped by
// stage.
func (t *Task) Running() WorkerTree {
	return t.group.Tree()
}

// Err returns the task's failures so far: a fatal launch failure if there was one, otherwise every
// workload failure, joined.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fatal != nil {
		return t.fatal
	}
	return errors.Join(t.errs...)
}

// String describes the shape of the task and the progress of each stage
func (t *Task) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "task %s stages=%d workers=%d\n", t.ID, len(t.stages), t.TotalWorkers())
	for _, s := range t.stages {
		fmt.Fprintf(&sb, "\t%s\n", s)
	}
	return sb.String()
}

// fail records a launch failure. Only the first one is kept; it aborts any ongoing Wait.
func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fatal == nil {
		t.fatal = err
		close(t.failed)
	}
}

func (t *Task) workerFailed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs = append(t.errs, err)
}

func (t *Task) record(kind EventKind, worker, parent WorkerID, stage int) {
	t.sink.Record(Event{Kind: kind, Worker: worker, Parent: parent, Stage: stage, Time: time.Now()})
}

// Start spawns the first stage on behalf of the [Coordinator]. The context is passed to every
// workload.
//
// Start returns once the first stage has been launched; it doesn't wait for any worker.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	t.ctx = ctx
	t.log.WithField("stages", len(t.stages)).Debug("starting task")

	t.record(EventStart, Coordinator, Coordinator, -1)
	err := t.spawn(t.stages[0], Coordinator, nil)
	t.record(EventExit, Coordinator, Coordinator, -1)
	return err
}

// Run starts the task, waits for every worker, and tears the task down.
//
// Once every worker has been joined, the task is closed even if some workloads failed; their errors
// are returned alongside any error from Close.
func (t *Task) Run(ctx context.Context) error {
	if err := t.Start(ctx); err != nil {
		return err
	}

	err := t.Wait(ctx)

	t.waitMu.Lock()
	drained := t.drained
	t.waitMu.Unlock()
	if !drained {
		return err
	}
	return errors.Join(err, t.Close())
}

// Wait joins every worker of every stage, stage by stage in task order and, within a stage, in the
// order that their handles arrive on the stage's readiness channel.
//
// Waiting on stages that haven't been spawned yet is fine: a stage is only spawned once its
// predecessor's workers have all registered, and Wait only moves on to it after that.
//
// If ctx is canceled first, Wait returns a *WaitError. Waiting may be resumed by calling Wait again.
// If launching a worker fails, Wait returns that failure immediately, as the task can no longer
// finish. Otherwise, once every worker has been joined, Wait returns [Task.Err].
func (t *Task) Wait(ctx context.Context) error {
	if !t.started.Load() {
		return ErrNotStarted
	}

	t.waitMu.Lock()
	defer t.waitMu.Unlock()

	if t.drained {
		return t.Err()
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	for _, s := range t.stages {
		if s.joined == 0 && s.capacity != 0 {
			t.log.WithField("stage", s.index).Debug("waiting on stage")
		}

		for s.joined < s.capacity {
			if s.pending == nil {
				select {
				case h := <-s.ready:
					s.pending = h
				case <-t.failed:
					return t.Err()
				case <-ctx.Done():
					return t.waitError(ctx.Err(), s)
				}
			}

			t.log.WithFields(logrus.Fields{"stage": s.index, "worker": s.pending.ID()}).Debug("joining worker")
			if err := s.pending.Join(ctx); err != nil {
				if errors.Is(err, ErrAlreadyJoined) {
					panic(fmt.Sprintf("internal error: %s joined twice", s.pending.ID()))
				}
				return t.waitError(err, s)
			}

			s.pending = nil
			s.joined += 1
		}
	}

	t.drained = true
	t.log.Debug("task drained")
	return t.Err()
}

func (t *Task) waitError(err error, s *Stage) *WaitError {
	return &WaitError{
		Stage:    s.index,
		Joined:   s.joined,
		Capacity: s.capacity,
		Running:  t.group.Tree(),
		Err:      err,
	}
}

// Close releases the storage of every stage. It is safe to call more than once, and safe to call on a
// task that was never started.
//
// Close refuses, with ErrStillRunning, while any launched worker hasn't exited yet.
func (t *Task) Close() error {
	if !t.group.Finished() {
		return ErrStillRunning
	}

	t.waitMu.Lock()
	defer t.waitMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for _, s := range t.stages {
		s.pending = nil
		s.release()
	}
	t.log.Debug("task closed")
	return nil
}
