/*
Package flowline is a workflow graph engine: nodes run tools against a shared
state, edges pick the next node (optionally by evaluating a condition on the
state), and loop nodes re-enter themselves until their condition turns false
or their iteration budget runs out.

Every run is recorded step by step. Each log entry carries the state before
and after the node, so a run can be replayed, diffed or inspected while it is
still in progress.

# Concept

A graph is immutable once created. Runs own a copy of their state and never
share it with other runs, so one Engine can execute many runs concurrently.
Tool failures do not abort a run; they are written to the "_error" key of the
state and routing continues. Structural problems (a condition that cannot be
evaluated, a missing target, a storage failure, the step limit) end the run
with status failed and a termination reason.

# Usage

	eng, err := flowline.New()
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	graphID, err := eng.CreateGraph(ctx, codereview.Definition())
	if err != nil {
		log.Fatal(err)
	}

	run, err := eng.RunGraph(ctx, graphID, codereview.ExampleState())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(run.Status, run.TerminationReason)

# Storage

The default store keeps everything in memory. Use WithStore with the sqlite
or redis adapters for durable runs, and WithLocker to serialise writes across
processes sharing a redis instance. The persistence/middleware package wraps
any store to redact or encrypt run data before it is written.

# Tools

Tools are plain functions registered on the engine's Registry. Commands
listed in a tools file can be registered through the process adapter; they
read the state as JSON on stdin and print the keys to merge back.
*/
package flowline
