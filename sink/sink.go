// Package sink provides implementations of [threadtree.EventSink].
package sink

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/sharnoff/threadtree"
)

// Discard drops every event
var Discard threadtree.EventSink = threadtree.SinkFunc(func(threadtree.Event) {})

// Recorder keeps every event in memory, in the order they were recorded.
//
// Events recorded by a single goroutine keep their relative order, so a worker's own events always
// appear in the order it produced them.
type Recorder struct {
	mu     sync.Mutex
	events []threadtree.Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(e threadtree.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far
func (r *Recorder) Events() []threadtree.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Count returns the number of recorded events of the given kind, excluding the coordinator's own
// start and exit.
func (r *Recorder) Count(kind threadtree.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Kind == kind && (kind == threadtree.EventFork || e.Worker != threadtree.Coordinator) {
			n += 1
		}
	}
	return n
}

// Reset drops all recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Logger writes each event as a log entry.
type Logger struct {
	log   logrus.FieldLogger
	level logrus.Level
}

// NewLogger returns a Logger writing to log at info level
func NewLogger(log logrus.FieldLogger) *Logger {
	return &Logger{log: log, level: logrus.InfoLevel}
}

// WithLevel returns a copy of the Logger that logs at the given level instead
func (l *Logger) WithLevel(level logrus.Level) *Logger {
	return &Logger{log: l.log, level: level}
}

func (l *Logger) Record(e threadtree.Event) {
	fields := logrus.Fields{
		"event":  string(e.Kind),
		"worker": e.Worker.String(),
	}
	if e.Kind == threadtree.EventFork {
		fields["parent"] = e.Parent.String()
	}
	if e.Stage >= 0 {
		fields["stage"] = e.Stage
	}

	entry := l.log.WithFields(fields)
	switch l.level {
	case logrus.TraceLevel, logrus.DebugLevel:
		entry.Debug(string(e.Kind))
	case logrus.WarnLevel:
		entry.Warn(string(e.Kind))
	case logrus.ErrorLevel:
		entry.Error(string(e.Kind))
	default:
		entry.Info(string(e.Kind))
	}
}

type multi []threadtree.EventSink

// Multi returns a sink recording each event into every one of sinks, in order
func Multi(sinks ...threadtree.EventSink) threadtree.EventSink {
	return multi(slices.Clone(sinks))
}

func (m multi) Record(e threadtree.Event) {
	for _, s := range m {
		s.Record(e)
	}
}
