package sink_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharnoff/threadtree"
	"github.com/sharnoff/threadtree/sink"
)

func TestRecorder(t *testing.T) {
	r := sink.NewRecorder()
	r.Record(threadtree.Event{Kind: threadtree.EventStart, Worker: threadtree.Coordinator, Stage: -1})
	r.Record(threadtree.Event{Kind: threadtree.EventFork, Worker: 1, Parent: threadtree.Coordinator})
	r.Record(threadtree.Event{Kind: threadtree.EventStart, Worker: 1})
	r.Record(threadtree.Event{Kind: threadtree.EventExit, Worker: 1})
	r.Record(threadtree.Event{Kind: threadtree.EventExit, Worker: threadtree.Coordinator, Stage: -1})

	assert.Equal(t, 5, r.Len())
	assert.Equal(t, 1, r.Count(threadtree.EventStart))
	assert.Equal(t, 1, r.Count(threadtree.EventFork))
	assert.Equal(t, 1, r.Count(threadtree.EventExit))

	events := r.Events()
	require.Len(t, events, 5)
	assert.Equal(t, threadtree.EventFork, events[1].Kind)

	// the returned slice is a copy
	events[0].Worker = 42
	assert.Equal(t, threadtree.Coordinator, r.Events()[0].Worker)

	r.Reset()
	assert.Equal(t, 0, r.Len())
}

func TestRecorderConcurrent(t *testing.T) {
	r := sink.NewRecorder()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id threadtree.WorkerID) {
			defer wg.Done()
			r.Record(threadtree.Event{Kind: threadtree.EventStart, Worker: id})
			r.Record(threadtree.Event{Kind: threadtree.EventExit, Worker: id})
		}(threadtree.WorkerID(i))
	}
	wg.Wait()

	assert.Equal(t, 40, r.Len())

	// each worker's own events stay in order
	started := make(map[threadtree.WorkerID]bool)
	for _, e := range r.Events() {
		switch e.Kind {
		case threadtree.EventStart:
			started[e.Worker] = true
		case threadtree.EventExit:
			assert.True(t, started[e.Worker], "%s exited before starting", e.Worker)
		}
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	l := sink.NewLogger(logger)
	l.Record(threadtree.Event{Kind: threadtree.EventFork, Worker: 3, Parent: 1, Stage: 1})
	l.Record(threadtree.Event{Kind: threadtree.EventStart, Worker: threadtree.Coordinator, Stage: -1})

	out := buf.String()
	assert.Contains(t, out, "level=info msg=fork event=fork parent=worker-1 stage=1 worker=worker-3")
	assert.Contains(t, out, "level=info msg=start event=start worker=coordinator\n")

	buf.Reset()
	l.WithLevel(logrus.DebugLevel).Record(threadtree.Event{Kind: threadtree.EventExit, Worker: 3, Stage: 1})
	assert.Contains(t, buf.String(), "level=debug msg=exit event=exit stage=1 worker=worker-3")
}

func TestMulti(t *testing.T) {
	a, b := sink.NewRecorder(), sink.NewRecorder()
	m := sink.Multi(a, b, sink.Discard)

	m.Record(threadtree.Event{Kind: threadtree.EventStart, Worker: 1})
	m.Record(threadtree.Event{Kind: threadtree.EventExit, Worker: 1})

	assert.Equal(t, a.Events(), b.Events())
	assert.Equal(t, 2, a.Len())
}
