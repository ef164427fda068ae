package engine

import (
	"fmt"

	"github.com/vk/flowgridgo/internal/workflow"
)

// DefaultMaxConcurrency bounds in-flight task attempts when a dispatch does
// not configure its own limit.
const DefaultMaxConcurrency = 8

// FailurePolicy controls how a run reacts to a task reaching terminal
// failure.
type FailurePolicy int

const (
	// FailFast stops scheduling new work on the first terminal failure.
	// Already-running tasks are allowed to finish; everything not yet
	// started is cancelled.
	FailFast FailurePolicy = iota
	// ContinueOnFailure keeps independent branches running; only the
	// descendants of the failed task are cancelled.
	ContinueOnFailure
)

func (p FailurePolicy) String() string {
	switch p {
	case FailFast:
		return "fail_fast"
	case ContinueOnFailure:
		return "continue"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy converts the configuration spelling of a policy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "fail_fast":
		return FailFast, nil
	case "continue":
		return ContinueOnFailure, nil
	default:
		return 0, fmt.Errorf("invalid failure policy %q: must be 'fail_fast' or 'continue'", s)
	}
}

// Options configure a single run.
type Options struct {
	// MaxConcurrency bounds the number of task attempts running at once.
	// Zero means DefaultMaxConcurrency.
	MaxConcurrency int
	// FailurePolicy selects fail-fast or continue-on-failure behaviour.
	FailurePolicy FailurePolicy
	// DefaultRetry applies to tasks that declare no retry policy of their
	// own. Nil means a single attempt.
	DefaultRetry *workflow.RetryPolicy
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	return o
}
