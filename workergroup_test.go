package threadtree_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"golang.org/x/exp/slices"

	"github.com/sharnoff/threadtree"
)

func check(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestWorkerGroupBasic(t *testing.T) {
	t.Parallel()

	g := threadtree.NewWorkerGroup(t.Name())
	closed := g.Wait()
	check(isClosed(closed))
	check(g.Finished())
	g.Add(1)
	check(isClosed(closed))
	waitCh := g.Wait()
	check(!isClosed(waitCh))
	check(!g.Finished())
	g.Add(3)
	g.Add(2)
	check(slices.Equal(g.Tree().Workers, []threadtree.WorkerID{1, 2, 3}))
	g.Done(1)
	g.Done(3)
	check(!isClosed(waitCh))
	check(!g.Finished())
	g.Done(2)
	check(isClosed(waitCh))
	check(g.Finished())
	check(g.Tree().Workers == nil)
}

func TestWorkerGroupTryWait(t *testing.T) {
	g := threadtree.NewWorkerGroup(t.Name())

	tryWait := func(ctx context.Context, done chan struct{}, err *error) {
		*err = g.TryWait(ctx)
		close(done)
	}

	jiffy := time.Millisecond

	g.Add(1)

	// TryWait returns when the context is canceled
	{
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan struct{})
		var err error
		go tryWait(ctx, done, &err)

		time.Sleep(jiffy)
		check(!isClosed(done))

		cancel()
		<-done
		check(err != nil)
	}

	// TryWait returns when all workers finish
	{
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan struct{})
		var err error
		go tryWait(ctx, done, &err)

		time.Sleep(jiffy)
		check(!isClosed(done))

		g.Done(1)
		<-done
		check(err == nil)
	}

	// calling TryWait with a canceled context always returns err, even if all workers are done
	{
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		check(g.TryWait(ctx) != nil)
	}
}

func TestWorkerGroupSubgroups(t *testing.T) {
	t.Parallel()

	g := threadtree.NewWorkerGroup("task")
	sg0 := g.NewSubgroup("stage-0")
	sg1 := g.NewSubgroup("stage-1")

	// subgroups without workers aren't part of the tree
	check(g.Finished())
	check(len(g.Tree().Subgroups) == 0)

	sg0.Add(1)
	sg0.Add(2)
	baseWaitCh := g.Wait()
	check(!isClosed(baseWaitCh))

	sg1.Add(3)
	tree := g.Tree()
	check(tree.Count() == 3)
	check(tree.String() == "task[stage-0[worker-1 worker-2] stage-1[worker-3]]")

	sg0.Done(1)
	sg0.Done(2)
	check(!isClosed(baseWaitCh))
	check(sg0.Finished())
	check(g.Tree().String() == "task[stage-1[worker-3]]")

	sg1.Done(3)
	check(isClosed(baseWaitCh))
	check(g.Finished())

	// subgroups may become active again
	sg0.Add(4)
	check(!g.Finished())
	sg0.Done(4)
	check(g.Finished())
}

func TestWorkerGroupDoubleAddPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			panic("should have panicked")
		}
	}()

	g := threadtree.NewWorkerGroup(t.Name())
	g.Add(1)
	g.Add(1)
}

func TestWorkerGroupDoneMissingPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			panic("should have panicked")
		}
	}()

	g := threadtree.NewWorkerGroup(t.Name())
	g.Done(1)
}

func TestWorkerGroupManyConcurrent(t *testing.T) {
	minSleepMicros := 10
	maxSleepMicros := 100
	iterations := 200
	parallelism := 100

	wg := sync.WaitGroup{}
	wg.Add(parallelism)

	baseGroup := threadtree.NewWorkerGroup(t.Name())

	for i := 0; i < parallelism; i += 1 {
		go func(i int) {
			defer wg.Done()

			subgroup := baseGroup.NewSubgroup("stage")
			for iter := 0; iter < iterations; iter += 1 {
				g := baseGroup
				if (iter/4)%2 == 0 {
					g = subgroup
				}

				id := threadtree.WorkerID(i*iterations + iter + 1)
				g.Add(id)
				time.Sleep(time.Microsecond * time.Duration(minSleepMicros+rand.Intn(maxSleepMicros-minSleepMicros)))
				g.Done(id)
			}
		}(i)
	}

	wg.Wait()
	check(baseGroup.Finished())
}
