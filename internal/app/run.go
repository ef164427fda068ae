package app

import (
	"context"
	"fmt"

	"github.com/vk/flowgridgo/internal/api"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/loader"
	"github.com/vk/flowgridgo/internal/status"
)

// Run executes the main application logic: one-shot workflow execution, or
// service mode when Serve is set.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.appConfig.Serve {
		return a.runServe(ctx)
	}
	return a.runOnce(ctx)
}

// runOnce loads the workflow, dispatches it, waits for it to finish, and
// reports failure through the exit status.
func (a *App) runOnce(ctx context.Context) error {
	def, err := loader.LoadPath(a.appConfig.WorkflowPath)
	if err != nil {
		return fmt.Errorf("loading workflow: %w", err)
	}
	a.logger.Debug("Workflow definition loaded.", "tasks", len(def.Tasks))

	opts := def.Options
	if a.appConfig.Workers > 0 {
		opts.MaxConcurrency = a.appConfig.Workers
	}

	a.logger.Info("🚀 Starting concurrent execution...")
	rs, err := a.dispatcher.SubmitAndWait(ctx, def.Tasks, &opts)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	defer a.dispatcher.Close()

	switch rs.State {
	case status.RunCompleted:
		return nil
	case status.RunCancelled:
		return fmt.Errorf("dispatch '%s' was cancelled", rs.DispatchID)
	default:
		return fmt.Errorf("dispatch '%s' finished with status %s", rs.DispatchID, rs.State)
	}
}

// runServe starts the HTTP API and, when the workflow carries a schedule, a
// cron trigger that re-dispatches it. It blocks until the context ends.
func (a *App) runServe(ctx context.Context) error {
	server := api.NewServer(a.apiPort(), a.dispatcher, a.metrics, a.logger)
	if err := server.Start(); err != nil {
		return err
	}

	if a.appConfig.WorkflowPath != "" {
		if err := a.registerWorkflowTrigger(ctx); err != nil {
			return err
		}
	}
	a.scheduler.Start()

	<-ctx.Done()
	a.logger.Info("Shutting down.")

	stopped := a.scheduler.Stop()
	<-stopped.Done()
	a.dispatcher.Close()
	return server.Stop(context.Background())
}

// registerWorkflowTrigger loads the workflow given on the command line and
// either dispatches it immediately (no schedule) or binds it to a cron
// trigger.
func (a *App) registerWorkflowTrigger(ctx context.Context) error {
	def, err := loader.LoadPath(a.appConfig.WorkflowPath)
	if err != nil {
		return fmt.Errorf("loading workflow: %w", err)
	}

	opts := def.Options
	if a.appConfig.Workers > 0 {
		opts.MaxConcurrency = a.appConfig.Workers
	}

	fire := func(fireCtx context.Context) {
		if _, err := a.dispatcher.Submit(fireCtx, def.Tasks, &opts); err != nil {
			ctxlog.FromContext(fireCtx).Error("Scheduled dispatch rejected.", "error", err)
		}
	}

	if def.Schedule == "" {
		a.logger.Info("🚀 Dispatching workflow once at startup.")
		fire(ctx)
		return nil
	}
	return a.scheduler.Add(ctx, a.appConfig.WorkflowPath, def.Schedule, fire)
}
