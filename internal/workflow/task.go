package workflow

import (
	"time"

	"github.com/zclconf/go-cty/cty"
)

// DefaultExecutor is the descriptor name used when a task does not select a
// backend explicitly.
const DefaultExecutor = "local"

// RetryPolicy controls how many times a task attempt may be repeated after a
// failure, and how long to wait between attempts.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	// Values below 1 are treated as 1 (no retry).
	MaxAttempts int
	// Backoff is the delay before the first retry.
	Backoff time.Duration
	// Factor multiplies the delay after every retry. Zero means 2.
	Factor float64
	// MaxBackoff caps the delay between attempts. Zero means no cap.
	MaxBackoff time.Duration
}

// Attempts returns the effective attempt budget for the policy. A nil policy
// allows exactly one attempt.
func (p *RetryPolicy) Attempts() int {
	if p == nil || p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// ExecutorDescriptor names the backend a task should run on, plus
// backend-specific configuration that the core passes through opaquely.
type ExecutorDescriptor struct {
	Name   string
	Config map[string]cty.Value
}

// Task is a single unit of work inside a graph. It is immutable once the
// graph containing it has been built.
type Task struct {
	// ID is the task's identity, stable within its graph.
	ID string
	// Unit names the registered callable that implements the task's work.
	Unit string
	// DependsOn lists the IDs of upstream tasks whose outputs this task
	// consumes. Order is not significant.
	DependsOn []string
	// Executor selects the backend. An empty name means DefaultExecutor.
	Executor ExecutorDescriptor
	// Retry is the task's retry policy. Nil means a single attempt unless the
	// dispatch supplies a default policy.
	Retry *RetryPolicy
	// Args holds the static arguments declared for the task.
	Args map[string]cty.Value
}
