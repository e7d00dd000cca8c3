package threadtree

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

// WorkerGroup tracks running workers, in the spirit of a [sync.WaitGroup] with the following changes:
//
//  1. Workers are added and removed individually, by [WorkerID]
//  2. WorkerGroups are hierarchical: a Task keeps one subgroup per stage, and waiting on the parent
//     covers every subgroup
//  3. [WorkerGroup.Wait] returns a channel, so it can be selected over
//  4. The set of running workers can be fetched with [WorkerGroup.Tree]
//
// Adding a worker that is already present, or removing one that isn't, panics.
type WorkerGroup struct {
	mu         sync.Mutex
	parent     *WorkerGroup
	idInParent int
	name       string
	allDone    chan struct{}
	workers    map[WorkerID]struct{}
	// active subgroups: those with at least one running worker somewhere below them
	subgroups      map[int]*WorkerGroup
	nextSubgroupID int
}

// WorkerTree is a snapshot of the running workers in a [WorkerGroup], returned by
// [WorkerGroup.Tree].
type WorkerTree struct {
	Name      string       `json:"name"`
	Workers   []WorkerID   `json:"workers"`
	Subgroups []WorkerTree `json:"subgroups"`
}

// NewWorkerGroup creates a new, empty WorkerGroup with the given name
func NewWorkerGroup(name string) *WorkerGroup {
	return &WorkerGroup{
		name:      name,
		workers:   make(map[WorkerID]struct{}),
		subgroups: make(map[int]*WorkerGroup),
	}
}

func (g *WorkerGroup) Name() string {
	return g.name
}

// NewSubgroup creates a WorkerGroup contained within g. Waiting on g will not complete while the
// subgroup has running workers.
func (g *WorkerGroup) NewSubgroup(name string) *WorkerGroup {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextSubgroupID
	g.nextSubgroupID += 1

	sg := NewWorkerGroup(name)
	sg.parent = g
	sg.idInParent = id
	return sg
}

// Add marks the worker as running in g
func (g *WorkerGroup) Add(id WorkerID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.workers[id]; ok {
		panic(fmt.Sprintf("%s added twice to worker group %q", id, g.name))
	}
	g.workers[id] = struct{}{}
	g.becameActive()
}

func (g *WorkerGroup) size() int {
	return len(g.workers) + len(g.subgroups)
}

// called with g.mu held
func (g *WorkerGroup) becameActive() {
	if g.size() == 1 && g.parent != nil {
		g.parent.mu.Lock()
		defer g.parent.mu.Unlock()

		g.parent.subgroups[g.idInParent] = g
		g.parent.becameActive()
	}
}

// Done marks the worker as no longer running.
func (g *WorkerGroup) Done(id WorkerID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.workers[id]; !ok {
		panic(fmt.Sprintf("%s is not running in worker group %q", id, g.name))
	}
	delete(g.workers, id)
	g.becameIdle()
}

// called with g.mu held
func (g *WorkerGroup) becameIdle() {
	if g.size() != 0 {
		return
	}

	if g.allDone != nil {
		close(g.allDone)
		g.allDone = nil
	}

	if g.parent != nil {
		g.parent.mu.Lock()
		defer g.parent.mu.Unlock()

		delete(g.parent.subgroups, g.idInParent)
		g.parent.becameIdle()
	}
}

// Wait returns a channel that is closed once no workers are running in g or any of its subgroups.
//
// If workers are added after the channel is closed, a subsequent call to Wait returns a new channel.
func (g *WorkerGroup) Wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.size() == 0 {
		return alwaysClosed
	}

	if g.allDone == nil {
		g.allDone = make(chan struct{})
	}
	return g.allDone
}

// TryWait waits on the WorkerGroup, returning early with ctx.Err() if the context is canceled.
//
// If the context is already canceled when TryWait is called, it always returns the context's error.
func (g *WorkerGroup) TryWait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.Wait():
			return nil
		}
	}
}

// Finished returns whether no workers are running, i.e. whether waiting would complete immediately.
func (g *WorkerGroup) Finished() bool {
	return isClosed(g.Wait())
}

// Tree returns a snapshot of all running workers, sorted by ID within each group and by name across
// subgroups.
//
// Changes happening during the call may or may not be reflected in the result. Subgroups that turn
// out to be empty are omitted.
func (g *WorkerGroup) Tree() WorkerTree {
	g.mu.Lock()
	workers := make([]WorkerID, 0, len(g.workers))
	for id := range g.workers {
		workers = append(workers, id)
	}
	sgs := make([]*WorkerGroup, 0, len(g.subgroups))
	for _, sg := range g.subgroups {
		sgs = append(sgs, sg)
	}
	// Unlock before recursing; subgroups lock their parent on the way up
	g.mu.Unlock()

	slices.Sort(workers)

	var subgroups []WorkerTree
	for _, sg := range sgs {
		t := sg.Tree()
		if len(t.Workers) != 0 || len(t.Subgroups) != 0 {
			subgroups = append(subgroups, t)
		}
	}
	slices.SortFunc(subgroups, func(a, b WorkerTree) bool { return a.Name < b.Name })

	if len(workers) == 0 {
		workers = nil
	}
	return WorkerTree{Name: g.name, Workers: workers, Subgroups: subgroups}
}

// Count returns the total number of workers in the tree
func (t WorkerTree) Count() int {
	n := len(t.Workers)
	for _, sg := range t.Subgroups {
		n += sg.Count()
	}
	return n
}

// String formats the tree on a single line, e.g. "task[stage-1[worker-5 worker-6]]"
func (t WorkerTree) String() string {
	var sb strings.Builder
	t.writeTo(&sb)
	return sb.String()
}

func (t WorkerTree) writeTo(sb *strings.Builder) {
	sb.WriteString(t.Name)
	sb.WriteByte('[')
	first := true
	for _, id := range t.Workers {
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		sb.WriteString(id.String())
	}
	for _, sg := range t.Subgroups {
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		sg.writeTo(sb)
	}
	sb.WriteByte(']')
}
