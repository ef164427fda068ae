// Package shell provides the 'shell' unit: it runs a local command and
// captures its output. The same argument contract is honoured by the ssh
// backend, so a task can move between local and remote execution without
// changing its definition.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/ctyutil"
	"github.com/vk/flowgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

func onRunShell(ctx context.Context, call registry.Call) (any, error) {
	command, err := ctyutil.StringArg(call.Args, "command")
	if err != nil {
		return nil, err
	}
	dir, err := ctyutil.StringArgDefault(call.Args, "dir", "")
	if err != nil {
		return nil, err
	}
	env, err := ctyutil.StringMapArg(call.Args, "env")
	if err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx).With("task", call.TaskID)
	logger.Info("Running shell command.", "command", command)

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = cmd.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("running command: %w", runErr)
		}
	}

	logger.Info("Shell command finished.", "exitCode", exitCode)
	out := map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}
	if exitCode != 0 {
		return out, fmt.Errorf("command exited with code %d: %s", exitCode, stderr.String())
	}
	return out, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("shell", onRunShell)
}
