package status

// TaskState is the lifecycle state of a single task within a dispatch.
type TaskState int32

const (
	// TaskPending means the task has not started; its dependencies may still
	// be outstanding.
	TaskPending TaskState = iota
	// TaskRunning means an executor is working on the current attempt.
	TaskRunning
	// TaskRetrying means the last attempt failed and the task is waiting out
	// its backoff delay before running again.
	TaskRetrying
	// TaskCompleted is terminal: the task produced a result.
	TaskCompleted
	// TaskFailed is terminal: the task failed and no attempts remain.
	TaskFailed
	// TaskCancelled is terminal: the task was cancelled by request or skipped
	// because an ancestor failed. It is not counted as a failure.
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskRetrying:
		return "retrying"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final. A terminal record is never
// mutated again.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// Successful reports whether the state satisfies downstream dependencies.
func (s TaskState) Successful() bool {
	return s == TaskCompleted
}

// allowedTransition encodes the task state machine:
//
//	pending  -> running | cancelled
//	running  -> completed | failed | retrying | cancelled
//	retrying -> running | cancelled
func allowedTransition(from, to TaskState) bool {
	switch from {
	case TaskPending:
		return to == TaskRunning || to == TaskCancelled
	case TaskRunning:
		return to == TaskCompleted || to == TaskFailed || to == TaskRetrying || to == TaskCancelled
	case TaskRetrying:
		return to == TaskRunning || to == TaskCancelled
	default:
		return false
	}
}

// RunState is the aggregate lifecycle state of a whole dispatch.
type RunState int32

const (
	// RunRunning means at least one task is non-terminal.
	RunRunning RunState = iota
	// RunCompleted means every task completed.
	RunCompleted
	// RunFailed means at least one task reached terminal failure.
	RunFailed
	// RunCancelled means cancellation was requested before natural
	// completion.
	RunCancelled
)

func (s RunState) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the dispatch has finished.
func (s RunState) Terminal() bool {
	return s != RunRunning
}
