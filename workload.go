package threadtree

import (
	"context"
	"time"
)

// WorkerInfo describes the worker a [Workload] is running on behalf of.
type WorkerInfo struct {
	ID    WorkerID
	Stage int
	// Slot is the order in which the worker was spawned within its stage. It is unrelated to the order
	// in which workers register.
	Slot    int
	Parent  WorkerID
	Lineage *Lineage
}

// Workload is the unit of work each worker performs before registering with its stage.
//
// An error (or panic) from a Workload is recorded as a [WorkerError], but the worker still registers
// and exits normally.
type Workload func(ctx context.Context, w WorkerInfo) error

// Sleep returns a Workload that pauses for d, or until ctx is canceled.
func Sleep(d time.Duration) Workload {
	return func(ctx context.Context, _ WorkerInfo) error {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// NoWork is a Workload that returns immediately.
func NoWork(context.Context, WorkerInfo) error {
	return nil
}
