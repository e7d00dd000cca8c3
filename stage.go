package threadtree

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Stage is one generation of concurrently running workers.
//
// Workers register with their Stage once their work is done. Registration hands out roster indices
// through a single atomic increment, so exactly one worker receives the last index; that worker
// spawns the next stage.
type Stage struct {
	index    int
	capacity int
	next     *Stage
	group    *WorkerGroup

	registered atomic.Int64

	// ready carries the Handle of every registered worker, in the order they were sent. That can
	// differ from roster slot order when two workers register at once. It's buffered to the stage's
	// capacity, so registration never blocks.
	ready chan *Handle

	mu      sync.Mutex
	roster  []WorkerID
	spawner WorkerID
	spawned bool

	// coordinator-only state, guarded by Task.waitMu
	joined  int
	pending *Handle
}

// StageInfo is a point-in-time view of a [Stage], suitable for logging
type StageInfo struct {
	Index      int
	Capacity   int
	Registered int
	Spawner    WorkerID
	Roster     []WorkerID
}

func newStage(index, capacity int, group *WorkerGroup) *Stage {
	return &Stage{
		index:    index,
		capacity: capacity,
		group:    group,
		ready:    make(chan *Handle, capacity),
		roster:   make([]WorkerID, capacity),
	}
}

// Index returns the position of the stage in its task, starting from zero
func (s *Stage) Index() int {
	return s.index
}

// Capacity returns the number of workers the stage spawns
func (s *Stage) Capacity() int {
	return s.capacity
}

// Next returns the stage spawned once this one completes, or nil if s is the terminal stage.
func (s *Stage) Next() *Stage {
	return s.next
}

// Registered returns the number of workers that have finished their work so far
func (s *Stage) Registered() int {
	return int(s.registered.Load())
}

// Roster returns the identities of the workers that have registered, in registration order.
func (s *Stage) Roster() []WorkerID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []WorkerID
	for _, id := range s.roster {
		// registration order and slot-writing order may differ; skip slots not written yet
		if id != Coordinator {
			ids = append(ids, id)
		}
	}
	return ids
}

// Spawner returns the worker whose registration completed the stage, and whether that has happened
// yet. For an empty stage, this is the worker that spawned it.
func (s *Stage) Spawner() (WorkerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawner, s.spawned
}

// Snapshot returns the current state of the stage.
func (s *Stage) Snapshot() StageInfo {
	spawner, _ := s.Spawner()
	return StageInfo{
		Index:      s.index,
		Capacity:   s.capacity,
		Registered: s.Registered(),
		Spawner:    spawner,
		Roster:     s.Roster(),
	}
}

func (s *Stage) String() string {
	return fmt.Sprintf("stage %d: capacity=%d registered=%d", s.index, s.capacity, s.Registered())
}

// register records the worker's completion and returns its roster index.
//
// The roster slot is written before the handle is passed to the coordinator.
func (s *Stage) register(h *Handle) int {
	idx := int(s.registered.Add(1)) - 1
	if idx >= s.capacity {
		panic(fmt.Sprintf("internal error: %s registered past the capacity of stage %d", h.ID(), s.index))
	}

	s.mu.Lock()
	s.roster[idx] = h.ID()
	s.mu.Unlock()

	s.ready <- h
	return idx
}

// setSpawner records who spawns the next stage. It may only happen once.
func (s *Stage) setSpawner(id WorkerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spawned {
		panic(fmt.Sprintf("internal error: stage %d completed twice (by %s and %s)", s.index, s.spawner, id))
	}
	s.spawner = id
	s.spawned = true
}

// release drops the stage's worker storage. The stage must be fully drained.
func (s *Stage) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roster = nil
	s.ready = nil
}
