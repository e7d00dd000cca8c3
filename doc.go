// obligatory // comment

/*
Package threadtree simulates a staged, tree-shaped computation, producing a reproducible pattern of
worker spawns for tracing and critical path analysis tools.

A [Task] is a fixed sequence of [Stage]s. Stage i runs N-i workers, where N is the size of the first
stage. Every worker runs the same protocol: announce its start, perform a unit of work, register its
completion with its stage, and announce its exit. The worker whose registration completes the stage
is responsible for spawning the next stage, so the whole task forms a chain of "last finisher spawns
the next generation" hand-offs.

The observable boundary is the [EventSink]: each worker's start and exit, and each spawn (fork) with
both the spawning and spawned identities, are recorded so that an external tool can reconstruct the
causal chain. See package [github.com/sharnoff/threadtree/causal] for that reconstruction.

# Identity and joining

Workers are identified by [WorkerID], a comparable token used for event correlation. Joining a worker
goes through its [Handle], which can be consumed exactly once. The coordinator (the driver calling
[Task.Start] and [Task.Wait]) has the identity [Coordinator].

# Hand-off

Registration hands out roster indices with a single atomic increment, so exactly one worker per stage
observes the last index and spawns the successor. The registering worker then passes its Handle over
the stage's readiness channel, so by the time [Task.Wait] receives it, the roster entry has already
been written.

# Scheduling

Workers are launched through an [Executor]. [GoExecutor] gives each worker its own goroutine;
[SerialExecutor] runs them one at a time in submission order, which makes the event stream fully
deterministic.

# Diagnostics

Running workers are tracked in a hierarchical [WorkerGroup], with one subgroup per stage. Each worker
also carries its spawn [Lineage]: the stack of the goroutine that spawned it, linked to the lineage
of that goroutine's own spawner.
*/
package threadtree
