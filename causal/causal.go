// Package causal reconstructs the spawn structure of a threadtree run from its recorded events.
//
// Analyze checks that the event stream is consistent with the worker protocol and derives the critical
// path: the chain of workers whose completion launched each following stage.
package causal

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/sharnoff/threadtree"
)

// Report is the result of [Analyze].
type Report struct {
	// Workers is the number of distinct workers seen, not counting the coordinator
	Workers int
	Starts  int
	Exits   int
	Forks   int
	// StageSizes maps each stage index to the number of workers forked into it
	StageSizes map[int]int
	// Spawners maps each stage index to the worker that spawned it. Stage 0 is spawned by the
	// coordinator.
	Spawners map[int]threadtree.WorkerID
	// CriticalPath is the chain of spawners, in stage order, starting with the coordinator.
	CriticalPath []threadtree.WorkerID
}

// Violation is a single inconsistency found in the event stream.
type Violation struct {
	Worker threadtree.WorkerID
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Worker, v.Reason)
}

// ViolationError lists every inconsistency found by [Analyze].
type ViolationError struct {
	Violations []Violation
}

func (e *ViolationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%d causal violation(s): %s", len(e.Violations), strings.Join(parts, "; "))
}

type lifetime struct {
	starts []int
	exits  []int
	// positions of forks made by this worker
	forksOut []int
	forksIn  int
}

// Analyze checks the recorded events of a single run.
//
// The following must hold:
//
//   - every worker (and the coordinator) starts exactly once and exits exactly once, in that order
//   - every fork made by a worker lies between its own start and exit
//   - every worker other than the coordinator is forked exactly once
//   - every stage is spawned by exactly one worker
//
// If any of these fail, Analyze still returns the Report it could build, alongside a
// *ViolationError.
func Analyze(events []threadtree.Event) (*Report, error) {
	lives := make(map[threadtree.WorkerID]*lifetime)
	life := func(id threadtree.WorkerID) *lifetime {
		l, ok := lives[id]
		if !ok {
			l = &lifetime{}
			lives[id] = l
		}
		return l
	}

	report := &Report{
		StageSizes: make(map[int]int),
		Spawners:   make(map[int]threadtree.WorkerID),
	}
	stageParents := make(map[int]map[threadtree.WorkerID]struct{})

	for pos, e := range events {
		switch e.Kind {
		case threadtree.EventStart:
			life(e.Worker).starts = append(life(e.Worker).starts, pos)
			report.Starts += 1
		case threadtree.EventExit:
			life(e.Worker).exits = append(life(e.Worker).exits, pos)
			report.Exits += 1
		case threadtree.EventFork:
			life(e.Parent).forksOut = append(life(e.Parent).forksOut, pos)
			life(e.Worker).forksIn += 1
			report.Forks += 1
			report.StageSizes[e.Stage] += 1

			if stageParents[e.Stage] == nil {
				stageParents[e.Stage] = make(map[threadtree.WorkerID]struct{})
			}
			stageParents[e.Stage][e.Parent] = struct{}{}
		}
	}

	var violations []Violation
	violate := func(id threadtree.WorkerID, format string, args ...any) {
		violations = append(violations, Violation{Worker: id, Reason: fmt.Sprintf(format, args...)})
	}

	ids := maps.Keys(lives)
	slices.Sort(ids)
	for _, id := range ids {
		l := lives[id]
		if id != threadtree.Coordinator {
			report.Workers += 1
			if l.forksIn != 1 {
				violate(id, "forked %d times", l.forksIn)
			}
		}

		if len(l.starts) != 1 || len(l.exits) != 1 {
			violate(id, "%d start and %d exit events", len(l.starts), len(l.exits))
			continue
		}
		start, exit := l.starts[0], l.exits[0]
		if exit < start {
			violate(id, "exit recorded before start")
		}
		for _, f := range l.forksOut {
			if f < start || f > exit {
				violate(id, "fork outside of its own lifetime")
				break
			}
		}
	}

	stages := maps.Keys(stageParents)
	slices.Sort(stages)
	for _, stage := range stages {
		parents := maps.Keys(stageParents[stage])
		if len(parents) != 1 {
			slices.Sort(parents)
			violate(parents[0], "stage %d spawned by %d workers %v", stage, len(parents), parents)
			continue
		}
		report.Spawners[stage] = parents[0]
		report.CriticalPath = append(report.CriticalPath, parents[0])
	}

	if len(violations) != 0 {
		return report, &ViolationError{Violations: violations}
	}
	return report, nil
}

// FormatPath renders a critical path as "coordinator -> worker-4 -> worker-6"
func FormatPath(path []threadtree.WorkerID) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}
