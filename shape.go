package threadtree

import (
	"fmt"
	"strings"
)

// CapacityPolicy decides what happens to stages whose computed capacity (workers - index) drops
// below one.
type CapacityPolicy int

const (
	// Reject refuses to build the task, returning ErrNonPositiveCapacity.
	Reject CapacityPolicy = iota
	// Clamp gives every such stage a single worker.
	Clamp
	// AllowEmpty gives every such stage zero workers. Spawning an empty stage immediately spawns its
	// successor on behalf of the same spawner.
	AllowEmpty
)

func (p CapacityPolicy) String() string {
	switch p {
	case Reject:
		return "reject"
	case Clamp:
		return "clamp"
	case AllowEmpty:
		return "allow-empty"
	default:
		return fmt.Sprintf("CapacityPolicy(%d)", int(p))
	}
}

// ParseCapacityPolicy is the inverse of [CapacityPolicy.String]
func ParseCapacityPolicy(s string) (CapacityPolicy, error) {
	switch strings.ToLower(s) {
	case "reject", "":
		return Reject, nil
	case "clamp":
		return Clamp, nil
	case "allow-empty":
		return AllowEmpty, nil
	default:
		return 0, fmt.Errorf("unknown capacity policy %q (expected reject, clamp, or allow-empty)", s)
	}
}

// Capacities returns the number of workers in each stage of a task with the given shape: stage i has
// workers-i workers, adjusted by policy.
func Capacities(stages, workers int, policy CapacityPolicy) ([]int, error) {
	if stages < 1 || workers < 0 {
		return nil, fmt.Errorf("%w (got %d stages, %d workers)", ErrInvalidShape, stages, workers)
	}

	caps := make([]int, stages)
	for i := range caps {
		c := workers - i
		if c < 1 {
			switch policy {
			case Reject:
				return nil, fmt.Errorf("%w: stage %d of %d would have %d workers", ErrNonPositiveCapacity, i, stages, c)
			case Clamp:
				c = 1
			case AllowEmpty:
				c = 0
			default:
				return nil, fmt.Errorf("unknown capacity policy %s", policy)
			}
		}
		caps[i] = c
	}
	return caps, nil
}
