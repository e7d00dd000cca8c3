package threadtree

import (
	"time"
)

// EventKind is the discriminator for [Event]. The string values are what tracing tools see.
type EventKind string

const (
	EventStart EventKind = "start"
	EventFork  EventKind = "fork"
	EventExit  EventKind = "exit"
)

// Event is a single lifecycle transition of a worker (or the coordinator).
type Event struct {
	Kind EventKind
	// Worker is the worker the event is about. For EventFork, this is the newly spawned worker.
	Worker WorkerID
	// Parent is the spawning worker. Only set for EventFork.
	Parent WorkerID
	// Stage is the index of the stage that Worker belongs to, or -1 for the Coordinator.
	Stage int
	Time  time.Time
}

// EventSink receives lifecycle events from every worker of a task.
//
// Implementations must be safe for concurrent use and must not block for long: a slow sink stalls the
// workers recording into it. The sink is treated as append-only.
type EventSink interface {
	Record(Event)
}

// SinkFunc adapts an ordinary function into an [EventSink]
type SinkFunc func(Event)

func (f SinkFunc) Record(e Event) {
	f(e)
}

var discardSink = SinkFunc(func(Event) {})
