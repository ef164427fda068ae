package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/executor"
	"github.com/vk/flowgridgo/internal/metrics"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/status"
	"github.com/vk/flowgridgo/internal/store"
	"github.com/vk/flowgridgo/internal/workflow"
)

// taskRun is the engine's runtime handle for one task: the resolved handler
// and backend, the remaining-dependency counter, and the terminal guard that
// makes "this task is finished" happen exactly once.
type taskRun struct {
	task    *workflow.Task
	handler registry.Handler
	exec    executor.Executor
	retry   *workflow.RetryPolicy

	deps     atomic.Int32
	terminal sync.Once

	// bo is created on the first failed attempt. Only the single worker
	// processing the task (or its retry timer) ever touches it.
	bo *backoff.ExponentialBackOff
}

func (tr *taskRun) nextBackoff() time.Duration {
	if tr.bo == nil {
		bo := backoff.NewExponentialBackOff()
		if tr.retry != nil {
			if tr.retry.Backoff > 0 {
				bo.InitialInterval = tr.retry.Backoff
			}
			if tr.retry.Factor > 0 {
				bo.Multiplier = tr.retry.Factor
			}
			if tr.retry.MaxBackoff > 0 {
				bo.MaxInterval = tr.retry.MaxBackoff
			}
		}
		bo.Reset()
		tr.bo = bo
	}
	d := tr.bo.NextBackOff()
	if d < 0 {
		d = time.Second
	}
	return d
}

// Engine executes one dispatched run to a terminal aggregate status.
type Engine struct {
	dispatchID string
	graph      *workflow.Graph
	opts       Options

	tracker *status.Tracker
	results *store.ResultSet
	metrics *metrics.Metrics

	runs    map[string]*taskRun
	readyCh chan *taskRun

	// remaining counts tasks that have not reached a terminal state yet.
	remaining atomic.Int32
	// allTerminal is closed when remaining hits zero.
	allTerminal chan struct{}
	termOnce    sync.Once

	// done is closed when the aggregate status has been finalized.
	done chan struct{}

	// stop is closed by Cancel; it tears down the run context, which is
	// advisory for in-flight backend calls.
	stop       chan struct{}
	cancelOnce sync.Once
	cancelled  atomic.Bool

	// aborted is set under fail-fast once a task fails terminally: no new
	// tasks start, but in-flight ones are left alone.
	aborted atomic.Bool
	failed  atomic.Bool

	runCtx context.Context
}

// New prepares an engine for a run. Every task's unit handler and executor
// backend is resolved here, so an unknown unit or backend fails the
// submission before anything starts.
func New(
	dispatchID string,
	graph *workflow.Graph,
	opts Options,
	units *registry.Registry,
	backends *executor.Registry,
	tracker *status.Tracker,
	results *store.ResultSet,
	m *metrics.Metrics,
) (*Engine, error) {
	opts = opts.withDefaults()

	e := &Engine{
		dispatchID:  dispatchID,
		graph:       graph,
		opts:        opts,
		tracker:     tracker,
		results:     results,
		metrics:     m,
		runs:        make(map[string]*taskRun, graph.Len()),
		readyCh:     make(chan *taskRun, graph.Len()),
		allTerminal: make(chan struct{}),
		done:        make(chan struct{}),
		stop:        make(chan struct{}),
	}
	e.remaining.Store(int32(graph.Len()))

	for _, t := range graph.Tasks() {
		handler, ok := units.Handler(t.Unit)
		if !ok {
			return nil, fmt.Errorf("task '%s' references unknown unit '%s'", t.ID, t.Unit)
		}
		exec, err := backends.Resolve(t.Executor)
		if err != nil {
			return nil, fmt.Errorf("task '%s': %w", t.ID, err)
		}
		retry := t.Retry
		if retry == nil {
			retry = opts.DefaultRetry
		}
		tr := &taskRun{task: t, handler: handler, exec: exec, retry: retry}
		tr.deps.Store(int32(len(t.DependsOn)))
		e.runs[t.ID] = tr
	}

	return e, nil
}

// Done is closed once the run has a terminal aggregate status.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Run drives the graph to completion. It blocks until every task is terminal
// and the aggregate status has been finalized. The context is the parent of
// all backend calls; cancelling it behaves like Cancel.
func (e *Engine) Run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx).With("dispatch", e.dispatchID)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.runCtx = runCtx

	go func() {
		select {
		case <-e.stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	e.metrics.DispatchStarted()

	if e.graph.Len() == 0 {
		logger.Warn("Dispatch has no tasks, nothing to execute.")
		e.finalize(logger)
		return
	}

	logger.Debug("Seeding ready queue with root tasks.")
	for _, id := range e.graph.Roots() {
		e.readyCh <- e.runs[id]
	}

	workers := e.opts.MaxConcurrency
	if workers > e.graph.Len() {
		workers = e.graph.Len()
	}
	logger.Debug("Starting worker pool.", "workers", workers)
	for i := 0; i < workers; i++ {
		go e.worker(runCtx, i)
	}

	<-e.allTerminal
	cancel()
	e.finalize(logger)
}

// finalize publishes the aggregate status and closes Done.
func (e *Engine) finalize(logger *slog.Logger) {
	switch {
	case e.cancelled.Load():
		e.tracker.SetRunState(status.RunCancelled)
	case e.failed.Load():
		e.tracker.SetRunState(status.RunFailed)
	default:
		e.tracker.SetRunState(status.RunCompleted)
	}

	state := e.tracker.RunState()
	for _, snap := range e.tracker.Failed() {
		logger.Error("Task failed permanently.", "task", snap.TaskID, "attempts", snap.Attempts, "error", snap.Error)
	}
	logger.Info("🏁 Dispatch finished.", "status", state.String())
	e.metrics.DispatchFinished(state.String())
	close(e.done)
}

// Cancel requests cancellation of the whole run. Every non-terminal task
// moves to cancelled immediately; in-flight backend calls are asked to stop
// via their context but are never waited on.
func (e *Engine) Cancel() {
	e.cancelOnce.Do(func() {
		e.cancelled.Store(true)
		e.tracker.SetRunState(status.RunCancelled)
		close(e.stop)
		for _, tr := range e.runs {
			e.finishCancelled(tr, "cancelled by request")
		}
	})
}

// markTerminal runs fn exactly once for the task and accounts for it in the
// run's terminal countdown.
func (e *Engine) markTerminal(tr *taskRun, fn func()) bool {
	won := false
	tr.terminal.Do(func() {
		fn()
		won = true
		if e.remaining.Add(-1) == 0 {
			e.termOnce.Do(func() { close(e.allTerminal) })
		}
	})
	return won
}

// finishCancelled moves a task to its cancelled terminal state with the given
// reason. Safe to call any number of times from any goroutine.
func (e *Engine) finishCancelled(tr *taskRun, reason string) {
	e.markTerminal(tr, func() {
		id := tr.task.ID
		e.tracker.RecordReason(id, reason)
		if err := e.tracker.Transition(id, status.TaskCancelled); err != nil {
			// Terminal states are never left, so this only trips on an
			// engine bug; the reason record above still stands.
			return
		}
		snap, _ := e.tracker.Snapshot(id)
		e.results.Publish(store.Result{
			TaskID:    id,
			Err:       fmt.Errorf("task '%s' %s", id, reason),
			Attempts:  snap.Attempts,
			StartedAt: snap.StartedAt,
			EndedAt:   snap.EndedAt,
		})
		e.metrics.TaskFinished(status.TaskCancelled.String())
	})
}
