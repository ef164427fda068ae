// Package workflow defines the immutable graph model for a workflow: task
// nodes, their dependency edges, and the static metadata (executor selection,
// retry policy, arguments) attached to each task. Build validates a set of
// tasks into a Graph; after that the graph never changes and may be shared by
// any number of concurrent dispatches.
package workflow
