// Package envvars provides the 'env_vars' unit: it reads process environment
// variables, either all of them or a named subset.
package envvars

import (
	"context"
	"os"
	"strings"

	"github.com/vk/flowgridgo/internal/ctyutil"
	"github.com/vk/flowgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

func onRunEnvVars(ctx context.Context, call registry.Call) (any, error) {
	names, err := ctyutil.StringSliceArg(call.Args, "names")
	if err != nil {
		return nil, err
	}

	if len(names) > 0 {
		out := make(map[string]string, len(names))
		for _, name := range names {
			out[name] = os.Getenv(name)
		}
		return map[string]any{"values": out}, nil
	}

	envMap := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			envMap[pair[0]] = pair[1]
		}
	}
	return map[string]any{"values": envMap}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("env_vars", onRunEnvVars)
}
