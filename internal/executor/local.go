package executor

import (
	"context"
	"fmt"

	"github.com/vk/flowgridgo/internal/ctxlog"
)

// Local runs invocations in-process by calling the unit handler directly.
// Concurrency is bounded by the engine's worker pool, not by the backend.
type Local struct{}

// NewLocal creates the in-process backend.
func NewLocal() *Local {
	return &Local{}
}

// Name implements Executor.
func (l *Local) Name() string { return "local" }

// Execute implements Executor. A panicking handler is converted into an
// ordinary error so one bad unit cannot take down the whole process.
func (l *Local) Execute(ctx context.Context, inv *Invocation) (out any, err error) {
	logger := ctxlog.FromContext(ctx).With("task", inv.TaskID, "unit", inv.Unit)
	logger.Debug("Local backend invoking unit handler.", "attempt", inv.Attempt)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Unit handler panicked.", "panic", r)
			out = nil
			err = fmt.Errorf("unit '%s' panicked: %v", inv.Unit, r)
		}
	}()

	return inv.Handler(ctx, inv.Call)
}
