package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/executor"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/status"
	"github.com/vk/flowgridgo/internal/store"
)

// worker pulls ready tasks off the queue until the run context ends. The
// ready channel is sized for the whole graph and is never closed, so sends
// from retry timers can never panic.
func (e *Engine) worker(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	logger.Debug("Worker started.")
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Worker shutting down.")
			return
		case tr := <-e.readyCh:
			e.process(ctx, tr)
		}
	}
}

// process runs one attempt of a task and routes the outcome.
func (e *Engine) process(ctx context.Context, tr *taskRun) {
	id := tr.task.ID
	logger := ctxlog.FromContext(ctx).With("task", id, "unit", tr.task.Unit)

	if err := e.tracker.Transition(id, status.TaskRunning); err != nil {
		// Lost the race against cancellation: the task is already terminal.
		logger.Debug("Skipping task that is no longer runnable.", "reason", err)
		return
	}
	attempt := e.tracker.Attempts(id)
	logger.Debug("Worker picked up task for execution.", "attempt", attempt)

	inputs := make(map[string]any, len(tr.task.DependsOn))
	for _, dep := range tr.task.DependsOn {
		res, err := e.results.Get(dep)
		if err != nil {
			// Dependencies publish before dependents are enqueued, so a miss
			// here is an engine bug, not a user error.
			e.markFailed(ctx, tr, fmt.Errorf("internal: result for dependency '%s' unavailable: %w", dep, err))
			return
		}
		inputs[dep] = res.Value
	}

	inv := &executor.Invocation{
		DispatchID: e.dispatchID,
		TaskID:     id,
		Unit:       tr.task.Unit,
		Attempt:    attempt,
		Handler:    tr.handler,
		Call: registry.Call{
			DispatchID: e.dispatchID,
			TaskID:     id,
			Args:       tr.task.Args,
			Inputs:     inputs,
		},
		Config: tr.task.Executor.Config,
	}

	e.metrics.AttemptStarted()
	start := time.Now()
	value, err := tr.exec.Execute(ctx, inv)
	e.metrics.AttemptFinished(time.Since(start))

	if err != nil {
		taskErr := &executor.TaskError{
			DispatchID: e.dispatchID,
			TaskID:     id,
			Attempt:    attempt,
			Err:        err,
		}
		e.tracker.RecordError(id, taskErr)

		if attempt < tr.retry.Attempts() && !e.cancelled.Load() && !e.aborted.Load() && ctx.Err() == nil {
			delay := tr.nextBackoff()
			logger.Warn("Task attempt failed, retrying.", "attempt", attempt, "backoff", delay, "error", err)
			if terr := e.tracker.Transition(id, status.TaskRetrying); terr != nil {
				logger.Debug("Retry abandoned, task already terminal.", "reason", terr)
				return
			}
			time.AfterFunc(delay, func() { e.requeue(tr) })
			return
		}

		e.markFailed(ctx, tr, taskErr)
		return
	}

	e.markCompleted(ctx, tr, value)
}

// markCompleted publishes the task's result and unlocks its dependents.
func (e *Engine) markCompleted(ctx context.Context, tr *taskRun, value any) {
	id := tr.task.ID
	logger := ctxlog.FromContext(ctx).With("task", id)

	done := e.markTerminal(tr, func() {
		if err := e.tracker.Transition(id, status.TaskCompleted); err != nil {
			logger.Debug("Completion dropped, task already terminal.", "reason", err)
			return
		}
		snap, _ := e.tracker.Snapshot(id)
		e.results.Publish(store.Result{
			TaskID:    id,
			Value:     value,
			Attempts:  snap.Attempts,
			StartedAt: snap.StartedAt,
			EndedAt:   snap.EndedAt,
		})
		e.metrics.TaskFinished(status.TaskCompleted.String())
		logger.Info("✅ Task completed.", "attempts", snap.Attempts)
	})
	if !done {
		return
	}

	for _, depID := range e.graph.Dependents(id) {
		next := e.runs[depID]
		if next.deps.Add(-1) == 0 {
			logger.Debug("Unlocking dependent task.", "dependent", depID)
			e.readyCh <- next
		}
	}
}

// markFailed records terminal failure, skips everything downstream, and
// applies the failure policy.
func (e *Engine) markFailed(ctx context.Context, tr *taskRun, taskErr error) {
	id := tr.task.ID
	logger := ctxlog.FromContext(ctx).With("task", id)

	e.markTerminal(tr, func() {
		e.failed.Store(true)
		e.tracker.RecordError(id, taskErr)
		if err := e.tracker.Transition(id, status.TaskFailed); err != nil {
			logger.Debug("Failure dropped, task already terminal.", "reason", err)
			return
		}
		snap, _ := e.tracker.Snapshot(id)
		e.results.Publish(store.Result{
			TaskID:    id,
			Err:       taskErr,
			Attempts:  snap.Attempts,
			StartedAt: snap.StartedAt,
			EndedAt:   snap.EndedAt,
		})
		e.metrics.TaskFinished(status.TaskFailed.String())
		logger.Error("Task failed.", "attempts", snap.Attempts, "error", taskErr)
	})

	e.skipDescendants(tr)
	if e.opts.FailurePolicy == FailFast {
		e.abort()
	}
}

// skipDescendants cancels every task downstream of a failed one. Their
// inputs can never be satisfied regardless of failure policy.
func (e *Engine) skipDescendants(tr *taskRun) {
	reason := fmt.Sprintf("skipped due to upstream failure of '%s'", tr.task.ID)
	for _, id := range e.graph.Descendants(tr.task.ID) {
		e.finishCancelled(e.runs[id], reason)
	}
}

// abort implements fail-fast: nothing new starts, but in-flight attempts are
// left to finish on their own. The run context stays alive for them.
func (e *Engine) abort() {
	if !e.aborted.CompareAndSwap(false, true) {
		return
	}
	for id, tr := range e.runs {
		st, _ := e.tracker.TaskState(id)
		if st == status.TaskPending || st == status.TaskRetrying {
			e.finishCancelled(tr, "not started: dispatch aborted after task failure")
		}
	}
}

// requeue puts a task back on the ready queue after its retry backoff,
// unless the run has moved on in the meantime.
func (e *Engine) requeue(tr *taskRun) {
	if e.cancelled.Load() || e.aborted.Load() || e.runCtx.Err() != nil {
		e.finishCancelled(tr, "cancelled before retry")
		return
	}
	e.readyCh <- tr
}
