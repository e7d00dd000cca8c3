package threadtree

import (
	"context"
	"strconv"
	"sync/atomic"
)

// WorkerID identifies a single worker within a [Task]. IDs are handed out from 1 in spawn order;
// the zero value is reserved for the [Coordinator].
type WorkerID uint64

// Coordinator is the identity of the driver that starts the first stage and waits on the task.
const Coordinator WorkerID = 0

func (id WorkerID) String() string {
	if id == Coordinator {
		return "coordinator"
	}
	return "worker-" + strconv.FormatUint(uint64(id), 10)
}

// Handle is the join target for a single worker. It is separate from the worker's [WorkerID] so that
// an identity can keep being used for correlation after the worker has been joined.
//
// A Handle can be joined exactly once.
type Handle struct {
	id     WorkerID
	exited chan struct{}
	joined atomic.Bool
}

func newHandle(id WorkerID) *Handle {
	return &Handle{id: id, exited: make(chan struct{})}
}

// ID returns the identity of the worker behind the Handle
func (h *Handle) ID() WorkerID {
	return h.id
}

// Exited returns whether the worker has finished its protocol, i.e. whether Join would return
// immediately.
func (h *Handle) Exited() bool {
	return isClosed(h.exited)
}

// Join blocks until the worker has exited, consuming the Handle.
//
// If ctx is canceled first, Join returns ctx.Err() and the Handle may still be joined later. Joining
// an already-joined Handle returns [ErrAlreadyJoined].
func (h *Handle) Join(ctx context.Context) error {
	select {
	case <-h.exited:
	case <-ctx.Done():
		return ctx.Err()
	}

	if h.joined.Swap(true) {
		return ErrAlreadyJoined
	}
	return nil
}

func (h *Handle) markExited() {
	close(h.exited)
}
