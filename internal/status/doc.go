// Package status holds the lifecycle state machine for tasks and dispatches.
// A Tracker carries one execution record per task of a run; the owning engine
// is the only writer, while status queries may read concurrently at any time.
package status
