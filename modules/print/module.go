// Package print provides the 'print' unit: it logs its arguments and every
// upstream input, mainly for demos and for smoke-testing workflow wiring.
package print

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/ctyutil"
	"github.com/vk/flowgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

func onRunPrint(ctx context.Context, call registry.Call) (any, error) {
	logger := ctxlog.FromContext(ctx).With("task", call.TaskID)

	message, err := ctyutil.StringArgDefault(call.Args, "message", "")
	if err != nil {
		return nil, err
	}
	if message != "" {
		logger.Info("Printing message.", "message", message)
		fmt.Printf("      %s\n", message)
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(call.Inputs))
	for k := range call.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("      %s = %v\n", k, call.Inputs[k])
	}

	return map[string]any{"message": message, "inputs": len(call.Inputs)}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("print", onRunPrint)
}
