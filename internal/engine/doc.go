// Package engine drives the execution of one dispatched workflow run.
//
// The engine owns the live state of its run: it feeds ready tasks to a
// bounded worker pool, resolves each task's inputs from completed dependency
// results, submits the work to the task's executor backend, and records the
// outcome in the run's status tracker and result store. Failure policy,
// retries with backoff, and cooperative cancellation are handled here.
//
// Readiness is tracked with per-task atomic dependency counters, decremented
// when an upstream task completes; a task is handed to the pool exactly when
// its counter reaches zero, which also gives the happens-before edge that
// makes dependency results safe to read.
package engine
