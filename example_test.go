package threadtree_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sharnoff/threadtree"
)

// Run three stages of three, two, and one worker on a serial executor, so the rosters come out in
// spawn order.
func Example() {
	exec := threadtree.NewSerialExecutor()
	defer exec.Close()

	task, err := threadtree.NewTask(threadtree.Config{
		Stages:   3,
		Workers:  3,
		Workload: threadtree.NoWork,
		Executor: exec,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := task.Start(ctx); err != nil {
		log.Fatal(err)
	}
	if err := task.Wait(ctx); err != nil {
		log.Fatal(err)
	}

	for _, s := range task.Stages() {
		info := s.Snapshot()
		fmt.Printf("%s roster=%v spawner=%s\n", s, info.Roster, info.Spawner)
	}

	if err := task.Close(); err != nil {
		log.Fatal(err)
	}
	// Output:
	// stage 0: capacity=3 registered=3 roster=[worker-1 worker-2 worker-3] spawner=worker-3
	// stage 1: capacity=2 registered=2 roster=[worker-4 worker-5] spawner=worker-5
	// stage 2: capacity=1 registered=1 roster=[worker-6] spawner=worker-6
}
