package app

import (
	"fmt"

	"github.com/vk/flowgridgo/internal/config"
	"github.com/vk/flowgridgo/internal/executor"
	"github.com/zclconf/go-cty/cty"
)

// registerBackends installs the built-in executor backends plus every named
// instance declared in the service configuration. A named instance is a
// backend pre-bound to its connection settings, so workflow files can say
// `executor "build-host" {}` without repeating credentials.
func registerBackends(backends *executor.Registry, cfg *config.Config) error {
	backends.Register("local", func(_ map[string]cty.Value) (executor.Executor, error) {
		return executor.NewLocal(), nil
	})
	backends.Register("ssh", func(c map[string]cty.Value) (executor.Executor, error) {
		return executor.NewSSH(c)
	})
	backends.Register("http", func(c map[string]cty.Value) (executor.Executor, error) {
		return executor.NewRemote(c)
	})

	for _, inst := range cfg.Executors {
		inst := inst
		base := make(map[string]cty.Value, len(inst.Config))
		for k, v := range inst.Config {
			base[k] = cty.StringVal(v)
		}
		var factory executor.Factory
		switch inst.Backend {
		case "local":
			factory = func(_ map[string]cty.Value) (executor.Executor, error) {
				return executor.NewLocal(), nil
			}
		case "ssh":
			factory = func(overrides map[string]cty.Value) (executor.Executor, error) {
				return executor.NewSSH(merged(base, overrides))
			}
		case "http":
			factory = func(overrides map[string]cty.Value) (executor.Executor, error) {
				return executor.NewRemote(merged(base, overrides))
			}
		default:
			return fmt.Errorf("executor instance '%s' references unknown backend '%s'", inst.Name, inst.Backend)
		}
		backends.Register(inst.Name, factory)
	}
	return nil
}

// merged overlays per-task overrides on an instance's base settings.
func merged(base, overrides map[string]cty.Value) map[string]cty.Value {
	out := make(map[string]cty.Value, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
