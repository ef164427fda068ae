package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/executor"
	"github.com/vk/flowgridgo/internal/metrics"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/status"
	"github.com/vk/flowgridgo/internal/store"
	"github.com/vk/flowgridgo/internal/workflow"
)

var (
	// ErrNotFound means no run is registered under the dispatch ID.
	ErrNotFound = errors.New("dispatch: unknown dispatch id")
	// ErrNotTerminal means the operation needs a finished run.
	ErrNotTerminal = errors.New("dispatch: run has not finished")
)

// RunStatus is the externally visible state of one dispatch.
type RunStatus struct {
	DispatchID string
	State      status.RunState
	Tasks      []status.TaskSnapshot
	CreatedAt  time.Time
}

// Record bundles a finished (or running) dispatch's status with every result
// published so far.
type Record struct {
	Status  RunStatus
	Results map[string]store.Result
}

// run is the dispatcher's handle on one submitted workflow.
type run struct {
	id        string
	graph     *workflow.Graph
	tracker   *status.Tracker
	results   *store.ResultSet
	engine    *engine.Engine
	createdAt time.Time
}

// Dispatcher admits workflows and owns every run it has admitted, live or
// finished, until the run is purged.
type Dispatcher struct {
	units    *registry.Registry
	backends *executor.Registry
	metrics  *metrics.Metrics
	defaults engine.Options

	mu   sync.RWMutex
	runs map[string]*run

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// New creates a Dispatcher. The default options apply to every submission
// that does not override them.
func New(units *registry.Registry, backends *executor.Registry, m *metrics.Metrics, defaults engine.Options) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		units:    units,
		backends: backends,
		metrics:  m,
		defaults: defaults,
		runs:     make(map[string]*run),
		rootCtx:  ctx,
		cancel:   cancel,
	}
}

// Submit validates the task set, admits it as a new run, and starts executing
// it in the background. The returned dispatch ID is the handle for every
// later operation. Validation or resolution failures reject the submission
// and leave no trace.
func (d *Dispatcher) Submit(ctx context.Context, tasks []*workflow.Task, opts *engine.Options) (string, error) {
	graph, err := workflow.Build(tasks)
	if err != nil {
		return "", fmt.Errorf("rejecting submission: %w", err)
	}

	runOpts := d.defaults
	if opts != nil {
		runOpts = *opts
	}

	ids := make([]string, 0, graph.Len())
	for _, t := range graph.Tasks() {
		ids = append(ids, t.ID)
	}
	tracker := status.NewTracker(ids)
	results := store.NewResultSet(ids)

	id := uuid.NewString()
	eng, err := engine.New(id, graph, runOpts, d.units, d.backends, tracker, results, d.metrics)
	if err != nil {
		return "", fmt.Errorf("rejecting submission: %w", err)
	}

	r := &run{
		id:        id,
		graph:     graph,
		tracker:   tracker,
		results:   results,
		engine:    eng,
		createdAt: time.Now(),
	}

	logger := ctxlog.FromContext(ctx)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", errors.New("dispatch: dispatcher is shut down")
	}
	d.runs[id] = r
	d.wg.Add(1)
	d.mu.Unlock()

	logger.Info("▶️ Dispatch admitted.", "dispatch", id, "tasks", graph.Len())
	go func() {
		defer d.wg.Done()
		eng.Run(ctxlog.WithLogger(d.rootCtx, logger))
	}()

	return id, nil
}

// SubmitAndWait submits the task set and blocks until the run finishes or the
// context is cancelled. On context cancellation the run keeps going; only the
// wait is abandoned.
func (d *Dispatcher) SubmitAndWait(ctx context.Context, tasks []*workflow.Task, opts *engine.Options) (RunStatus, error) {
	id, err := d.Submit(ctx, tasks, opts)
	if err != nil {
		return RunStatus{}, err
	}
	if err := d.Wait(ctx, id); err != nil {
		return RunStatus{}, err
	}
	return d.Status(id)
}

// Wait blocks until the run reaches a terminal aggregate status or the
// context is cancelled.
func (d *Dispatcher) Wait(ctx context.Context, dispatchID string) error {
	r, err := d.get(dispatchID)
	if err != nil {
		return err
	}
	select {
	case <-r.engine.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel requests cancellation of a run. Cancelling a finished run is a
// harmless no-op; cancelling an unknown one is an error.
func (d *Dispatcher) Cancel(dispatchID string) error {
	r, err := d.get(dispatchID)
	if err != nil {
		return err
	}
	r.engine.Cancel()
	return nil
}

// Status reports the aggregate state and per-task snapshots of a run.
func (d *Dispatcher) Status(dispatchID string) (RunStatus, error) {
	r, err := d.get(dispatchID)
	if err != nil {
		return RunStatus{}, err
	}
	return RunStatus{
		DispatchID: r.id,
		State:      r.tracker.RunState(),
		Tasks:      r.tracker.Snapshots(),
		CreatedAt:  r.createdAt,
	}, nil
}

// TaskStatus reports the snapshot of one task within a run.
func (d *Dispatcher) TaskStatus(dispatchID, taskID string) (status.TaskSnapshot, error) {
	r, err := d.get(dispatchID)
	if err != nil {
		return status.TaskSnapshot{}, err
	}
	snap, ok := r.tracker.Snapshot(taskID)
	if !ok {
		return status.TaskSnapshot{}, fmt.Errorf("%w: task '%s'", ErrNotFound, taskID)
	}
	return snap, nil
}

// Result returns a task's result without blocking. store.ErrNotReady is
// returned while the task is still in flight.
func (d *Dispatcher) Result(dispatchID, taskID string) (store.Result, error) {
	r, err := d.get(dispatchID)
	if err != nil {
		return store.Result{}, err
	}
	return r.results.Get(taskID)
}

// AwaitResult blocks until a task's result is published, the timeout elapses,
// or the context is cancelled. A zero timeout waits indefinitely.
func (d *Dispatcher) AwaitResult(ctx context.Context, dispatchID, taskID string, timeout time.Duration) (store.Result, error) {
	r, err := d.get(dispatchID)
	if err != nil {
		return store.Result{}, err
	}
	return r.results.Await(ctx, taskID, timeout)
}

// Record returns the run's status together with every result published so
// far. Unfinished tasks are simply absent from the result map.
func (d *Dispatcher) Record(dispatchID string) (Record, error) {
	r, err := d.get(dispatchID)
	if err != nil {
		return Record{}, err
	}
	results := make(map[string]store.Result)
	for _, t := range r.graph.Tasks() {
		if res, err := r.results.Get(t.ID); err == nil {
			results[t.ID] = res
		}
	}
	return Record{
		Status: RunStatus{
			DispatchID: r.id,
			State:      r.tracker.RunState(),
			Tasks:      r.tracker.Snapshots(),
			CreatedAt:  r.createdAt,
		},
		Results: results,
	}, nil
}

// Purge drops a finished run from the dispatcher. Live runs cannot be purged;
// cancel them first and wait for them to finish.
func (d *Dispatcher) Purge(dispatchID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.runs[dispatchID]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrNotFound, dispatchID)
	}
	if !r.tracker.RunState().Terminal() {
		return fmt.Errorf("%w: '%s'", ErrNotTerminal, dispatchID)
	}
	delete(d.runs, dispatchID)
	return nil
}

// List returns the IDs of every run the dispatcher still holds.
func (d *Dispatcher) List() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.runs))
	for id := range d.runs {
		ids = append(ids, id)
	}
	return ids
}

// Close rejects further submissions, cancels every live run, and waits for
// them to finalize.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	runs := make([]*run, 0, len(d.runs))
	for _, r := range d.runs {
		runs = append(runs, r)
	}
	d.mu.Unlock()

	for _, r := range runs {
		if !r.tracker.RunState().Terminal() {
			r.engine.Cancel()
		}
	}
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) get(dispatchID string) (*run, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.runs[dispatchID]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, dispatchID)
	}
	return r, nil
}
