// Package executor defines the adapter boundary between the dispatch engine
// and the backends that actually run task units.
//
// An Executor receives a fully resolved Invocation (handler, arguments,
// upstream inputs) and returns the task's output or an error. Backends
// register under a name; a task's executor descriptor is resolved against
// that registry at dispatch time. Cancellation is advisory: backends that
// implement Canceler may interrupt in-flight work, everyone else simply
// ignores it.
package executor
