package threadtree

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// spawn launches every worker of the stage on behalf of parent. A nil stage is the end of the chain.
//
// An empty stage is completed on the spot by parent, which then spawns the following stage itself.
func (t *Task) spawn(s *Stage, parent WorkerID, lineage *Lineage) error {
	if s == nil {
		return nil
	}

	if s.capacity == 0 {
		t.log.WithFields(logrus.Fields{"stage": s.index, "parent": parent}).Debug("skipping empty stage")
		s.setSpawner(parent)
		return t.spawn(s.next, parent, lineage)
	}

	t.log.WithFields(logrus.Fields{"stage": s.index, "parent": parent, "workers": s.capacity}).Debug("spawning stage")

	for slot := 0; slot < s.capacity; slot += 1 {
		info := WorkerInfo{
			ID:     WorkerID(t.nextID.Add(1)),
			Stage:  s.index,
			Slot:   slot,
			Parent: parent,
		}
		info.Lineage = captureLineage(info.ID, parent, lineage, 1)
		h := newHandle(info.ID)

		s.group.Add(info.ID)
		if err := t.exec.Go(func() { t.runWorker(s, info, h) }); err != nil {
			s.group.Done(info.ID)
			err = fmt.Errorf("launching %s (slot %d of stage %d): %w", info.ID, slot, s.index, err)
			t.log.WithError(err).Error("failed to spawn stage")
			t.fail(err)
			return err
		}

		t.record(EventFork, info.ID, parent, s.index)
	}

	return nil
}

// runWorker is the whole life of a single worker: start, work, register, maybe spawn the next
// stage, exit.
func (t *Task) runWorker(s *Stage, w WorkerInfo, h *Handle) {
	t.record(EventStart, w.ID, Coordinator, s.index)

	if err := t.work(w); err != nil {
		t.log.WithFields(logrus.Fields{"stage": s.index, "worker": w.ID}).WithError(err).Warn("workload failed")
		t.workerFailed(&WorkerError{Worker: w.ID, Stage: s.index, Lineage: w.Lineage, Err: err})
	}

	// Only one worker per stage can receive the last index
	if idx := s.register(h); idx == s.capacity-1 {
		s.setSpawner(w.ID)
		_ = t.spawn(s.next, w.ID, w.Lineage) // failures are already recorded on the task
	}

	t.record(EventExit, w.ID, Coordinator, s.index)
	s.group.Done(w.ID)
	h.markExited()
}

func (t *Task) work(w WorkerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workload panicked: %v", r)
		}
	}()

	return t.workload(t.ctx, w)
}
