// Package dispatch manages the lifecycle of workflow runs. It validates and
// admits submitted task sets, assigns each run a unique dispatch ID, hands it
// to an engine on a background goroutine, and serves status, result, and
// cancellation requests against live and finished runs.
package dispatch
