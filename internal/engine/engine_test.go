package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/executor"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/status"
	"github.com/vk/flowgridgo/internal/store"
	"github.com/vk/flowgridgo/internal/testutil"
	"github.com/vk/flowgridgo/internal/workflow"
	"github.com/zclconf/go-cty/cty"
)

// testRun bundles everything needed to drive one engine run in a test.
type testRun struct {
	engine  *engine.Engine
	tracker *status.Tracker
	results *store.ResultSet
}

func newTestRun(t *testing.T, tasks []*workflow.Task, opts engine.Options, modules ...registry.Module) *testRun {
	t.Helper()

	units := registry.New()
	for _, mod := range modules {
		mod.Register(units)
	}

	backends := executor.NewRegistry()
	backends.Register("local", func(_ map[string]cty.Value) (executor.Executor, error) {
		return executor.NewLocal(), nil
	})

	graph, err := workflow.Build(tasks)
	require.NoError(t, err)

	ids := make([]string, 0, graph.Len())
	for _, task := range graph.Tasks() {
		ids = append(ids, task.ID)
	}
	tracker := status.NewTracker(ids)
	results := store.NewResultSet(ids)

	eng, err := engine.New("test-dispatch", graph, opts, units, backends, tracker, results, nil)
	require.NoError(t, err)

	return &testRun{engine: eng, tracker: tracker, results: results}
}

func (r *testRun) state(t *testing.T, taskID string) status.TaskState {
	t.Helper()
	st, ok := r.tracker.TaskState(taskID)
	require.True(t, ok)
	return st
}

func task(id, unit string, deps ...string) *workflow.Task {
	return &workflow.Task{ID: id, Unit: unit, DependsOn: deps}
}

func TestEngine_DiamondRespectsDependencyOrder(t *testing.T) {
	sleeper := &testutil.SleeperModule{Sleep: 10 * time.Millisecond}
	run := newTestRun(t, []*workflow.Task{
		task("a", "sleeper"),
		task("b", "sleeper", "a"),
		task("c", "sleeper", "a"),
		task("d", "sleeper", "b", "c"),
	}, engine.Options{}, sleeper)

	ctx, _ := testutil.Context()
	run.engine.Run(ctx)

	assert.Equal(t, status.RunCompleted, run.tracker.RunState())
	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, status.TaskCompleted, run.state(t, id), "task %s", id)
	}

	a, b, c, d := sleeper.Record("a"), sleeper.Record("b"), sleeper.Record("c"), sleeper.Record("d")
	require.NotNil(t, a)
	require.NotNil(t, d)
	assert.False(t, b.Start.Before(a.End), "b started before a finished")
	assert.False(t, c.Start.Before(a.End), "c started before a finished")
	assert.False(t, d.Start.Before(b.End), "d started before b finished")
	assert.False(t, d.Start.Before(c.End), "d started before c finished")
}

func TestEngine_DependencyResultsFlowDownstream(t *testing.T) {
	run := newTestRun(t, []*workflow.Task{
		task("up1", "sleeper"),
		task("up2", "sleeper"),
		task("down", "echo", "up1", "up2"),
	}, engine.Options{}, &testutil.SleeperModule{Sleep: time.Millisecond}, &testutil.EchoModule{})

	ctx, _ := testutil.Context()
	run.engine.Run(ctx)

	res, err := run.results.Get("down")
	require.NoError(t, err)
	inputs, ok := res.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "up1", inputs["up1"])
	assert.Equal(t, "up2", inputs["up2"])
}

func TestEngine_ConcurrencyBound(t *testing.T) {
	sleep := 50 * time.Millisecond
	sleeper := &testutil.SleeperModule{Sleep: sleep}
	run := newTestRun(t, []*workflow.Task{
		task("t1", "sleeper"),
		task("t2", "sleeper"),
		task("t3", "sleeper"),
		task("t4", "sleeper"),
	}, engine.Options{MaxConcurrency: 2}, sleeper)

	ctx, _ := testutil.Context()
	start := time.Now()
	run.engine.Run(ctx)
	elapsed := time.Since(start)

	assert.Equal(t, status.RunCompleted, run.tracker.RunState())
	// Four 50ms tasks on two workers cannot finish in under two batches.
	assert.GreaterOrEqual(t, elapsed, 2*sleep)
}

func TestEngine_FailFastAbortsPendingButFinishesRunning(t *testing.T) {
	started := make(chan string, 1)
	release := make(chan struct{})
	badGate := make(chan struct{})

	blocking := &testutil.BlockingModule{Release: release, Started: started}
	bad := &testutil.HandlerModule{Name: "gated_failure", Fn: func(ctx context.Context, call registry.Call) (any, error) {
		<-badGate
		return nil, errors.New("deliberate failure")
	}}

	run := newTestRun(t, []*workflow.Task{
		task("bad", "gated_failure"),
		task("slow", "blocking"),
		task("after_slow", "sleeper", "slow"),
	}, engine.Options{FailurePolicy: engine.FailFast},
		blocking, bad, &testutil.SleeperModule{Sleep: time.Millisecond})

	ctx, _ := testutil.Context()
	go run.engine.Run(ctx)

	// Wait for the in-flight task, then let the failure land while it is
	// still running.
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("blocking task never started")
	}
	close(badGate)

	require.Eventually(t, func() bool {
		st, _ := run.tracker.TaskState("after_slow")
		return st == status.TaskCancelled
	}, 5*time.Second, time.Millisecond, "abort never cancelled the pending task")

	// The in-flight task is allowed to finish normally.
	close(release)
	select {
	case <-run.engine.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not finish")
	}

	assert.Equal(t, status.RunFailed, run.tracker.RunState())
	assert.Equal(t, status.TaskFailed, run.state(t, "bad"))
	assert.Equal(t, status.TaskCompleted, run.state(t, "slow"))
	assert.Equal(t, status.TaskCancelled, run.state(t, "after_slow"))

	snap, _ := run.tracker.Snapshot("after_slow")
	assert.Contains(t, snap.Reason, "aborted")
}

func TestEngine_ContinuePolicyKeepsIndependentBranches(t *testing.T) {
	sleeper := &testutil.SleeperModule{Sleep: 10 * time.Millisecond}
	run := newTestRun(t, []*workflow.Task{
		task("bad", "failing"),
		task("down", "sleeper", "bad"),
		task("indep", "sleeper"),
		task("indep_child", "sleeper", "indep"),
	}, engine.Options{FailurePolicy: engine.ContinueOnFailure}, sleeper, &testutil.FailingModule{})

	ctx, _ := testutil.Context()
	run.engine.Run(ctx)

	assert.Equal(t, status.RunFailed, run.tracker.RunState())
	assert.Equal(t, status.TaskFailed, run.state(t, "bad"))
	assert.Equal(t, status.TaskCancelled, run.state(t, "down"))
	assert.Equal(t, status.TaskCompleted, run.state(t, "indep"))
	assert.Equal(t, status.TaskCompleted, run.state(t, "indep_child"))

	snap, _ := run.tracker.Snapshot("down")
	assert.Contains(t, snap.Reason, "upstream failure of 'bad'")

	// Downstream of a failure, the published result carries the skip error.
	res, err := run.results.Get("down")
	require.NoError(t, err)
	assert.Error(t, res.Err)
}

func TestEngine_RetrySucceedsWithinBudget(t *testing.T) {
	flaky := &testutil.FlakyModule{FailuresBeforeSuccess: 2}
	tasks := []*workflow.Task{{
		ID:   "a",
		Unit: "flaky",
		Retry: &workflow.RetryPolicy{
			MaxAttempts: 3,
			Backoff:     5 * time.Millisecond,
		},
	}}
	run := newTestRun(t, tasks, engine.Options{}, flaky)

	ctx, _ := testutil.Context()
	run.engine.Run(ctx)

	assert.Equal(t, status.RunCompleted, run.tracker.RunState())
	assert.Equal(t, status.TaskCompleted, run.state(t, "a"))
	assert.Equal(t, 3, flaky.Attempts("a"))
	assert.Equal(t, 3, run.tracker.Attempts("a"))
}

func TestEngine_RetryBudgetExhausted(t *testing.T) {
	flaky := &testutil.FlakyModule{FailuresBeforeSuccess: 10}
	tasks := []*workflow.Task{{
		ID:   "a",
		Unit: "flaky",
		Retry: &workflow.RetryPolicy{
			MaxAttempts: 2,
			Backoff:     5 * time.Millisecond,
		},
	}}
	run := newTestRun(t, tasks, engine.Options{}, flaky)

	ctx, _ := testutil.Context()
	run.engine.Run(ctx)

	assert.Equal(t, status.RunFailed, run.tracker.RunState())
	assert.Equal(t, status.TaskFailed, run.state(t, "a"))
	assert.Equal(t, 2, flaky.Attempts("a"))

	res, err := run.results.Get("a")
	require.NoError(t, err)
	var taskErr *executor.TaskError
	require.ErrorAs(t, res.Err, &taskErr)
	assert.Equal(t, "a", taskErr.TaskID)
	assert.Equal(t, 2, taskErr.Attempt)
}

func TestEngine_DefaultRetryFromOptions(t *testing.T) {
	flaky := &testutil.FlakyModule{FailuresBeforeSuccess: 1}
	run := newTestRun(t, []*workflow.Task{task("a", "flaky")}, engine.Options{
		DefaultRetry: &workflow.RetryPolicy{MaxAttempts: 2, Backoff: 5 * time.Millisecond},
	}, flaky)

	ctx, _ := testutil.Context()
	run.engine.Run(ctx)

	assert.Equal(t, status.RunCompleted, run.tracker.RunState())
	assert.Equal(t, 2, flaky.Attempts("a"))
}

func TestEngine_CancelStopsEverything(t *testing.T) {
	started := make(chan string, 1)
	blocking := &testutil.BlockingModule{Release: make(chan struct{}), Started: started}
	run := newTestRun(t, []*workflow.Task{
		task("stuck", "blocking"),
		task("never", "blocking", "stuck"),
	}, engine.Options{}, blocking)

	ctx, _ := testutil.Context()
	go run.engine.Run(ctx)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("task never started")
	}
	run.engine.Cancel()

	select {
	case <-run.engine.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not finish after cancel")
	}

	assert.Equal(t, status.RunCancelled, run.tracker.RunState())
	assert.Equal(t, status.TaskCancelled, run.state(t, "stuck"))
	assert.Equal(t, status.TaskCancelled, run.state(t, "never"))

	res, err := run.results.Get("stuck")
	require.NoError(t, err)
	assert.Error(t, res.Err)

	// Cancelling again must be harmless.
	run.engine.Cancel()
}

func TestEngine_CancelBeforeRun(t *testing.T) {
	run := newTestRun(t, []*workflow.Task{
		task("a", "sleeper"),
	}, engine.Options{}, &testutil.SleeperModule{Sleep: time.Millisecond})

	run.engine.Cancel()

	ctx, _ := testutil.Context()
	run.engine.Run(ctx)

	assert.Equal(t, status.RunCancelled, run.tracker.RunState())
	assert.Equal(t, status.TaskCancelled, run.state(t, "a"))
}

func TestEngine_EmptyGraphCompletesImmediately(t *testing.T) {
	run := newTestRun(t, nil, engine.Options{})

	ctx, _ := testutil.Context()
	run.engine.Run(ctx)

	assert.Equal(t, status.RunCompleted, run.tracker.RunState())
	select {
	case <-run.engine.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
}

func TestEngine_UnknownUnitRejectedAtSubmission(t *testing.T) {
	units := registry.New()
	backends := executor.NewRegistry()
	backends.Register("local", func(_ map[string]cty.Value) (executor.Executor, error) {
		return executor.NewLocal(), nil
	})

	graph, err := workflow.Build([]*workflow.Task{task("a", "ghost_unit")})
	require.NoError(t, err)

	_, err = engine.New("d", graph, engine.Options{}, units, backends,
		status.NewTracker([]string{"a"}), store.NewResultSet([]string{"a"}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown unit 'ghost_unit'")
}

func TestEngine_UnknownBackendRejectedAtSubmission(t *testing.T) {
	units := registry.New()
	(&testutil.EchoModule{}).Register(units)
	backends := executor.NewRegistry()

	tasks := []*workflow.Task{{
		ID:       "a",
		Unit:     "echo",
		Executor: workflow.ExecutorDescriptor{Name: "warp_drive"},
	}}
	graph, err := workflow.Build(tasks)
	require.NoError(t, err)

	_, err = engine.New("d", graph, engine.Options{}, units, backends,
		status.NewTracker([]string{"a"}), store.NewResultSet([]string{"a"}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown executor backend 'warp_drive'")
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := engine.ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, engine.FailFast, p)

	p, err = engine.ParseFailurePolicy("continue")
	require.NoError(t, err)
	assert.Equal(t, engine.ContinueOnFailure, p)

	_, err = engine.ParseFailurePolicy("explode")
	assert.Error(t, err)
}
