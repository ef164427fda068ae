package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/api"
	"github.com/vk/flowgridgo/internal/dispatch"
	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/executor"
	"github.com/vk/flowgridgo/internal/metrics"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func newTestServer(t *testing.T, modules ...registry.Module) *httptest.Server {
	t.Helper()

	units := registry.New()
	for _, mod := range modules {
		mod.Register(units)
	}
	backends := executor.NewRegistry()
	backends.Register("local", func(_ map[string]cty.Value) (executor.Executor, error) {
		return executor.NewLocal(), nil
	})

	d := dispatch.New(units, backends, nil, engine.Options{MaxConcurrency: 4})
	t.Cleanup(d.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := api.NewServer(0, d, metrics.New(), logger)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func submitWorkflow(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := postJSON(t, ts, "/api/v1/dispatches", map[string]any{
		"tasks": []map[string]any{
			{"id": "a", "unit": "sleeper"},
			{"id": "b", "unit": "sleeper", "depends_on": []string{"a"}},
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	require.NotEmpty(t, body["dispatch_id"])
	return body["dispatch_id"]
}

func TestAPI_Health(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Metrics(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_SubmitAndFetchResult(t *testing.T) {
	ts := newTestServer(t, &testutil.SleeperModule{Sleep: time.Millisecond})
	id := submitWorkflow(t, ts)

	// Blocking result fetch returns once the task finishes.
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/dispatches/%s/results/b?wait=true&timeout=5s", ts.URL, id))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[map[string]any](t, resp)
	assert.Equal(t, "b", result["task_id"])
	assert.Equal(t, "b", result["value"])

	// Status reflects the finished run.
	resp, err = http.Get(fmt.Sprintf("%s/api/v1/dispatches/%s", ts.URL, id))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[map[string]any](t, resp)
	assert.Equal(t, id, status["dispatch_id"])
	assert.Len(t, status["tasks"], 2)
}

func TestAPI_TaskStatus(t *testing.T) {
	ts := newTestServer(t, &testutil.SleeperModule{Sleep: time.Millisecond})
	id := submitWorkflow(t, ts)

	// Wait for the run to finish first.
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/dispatches/%s/results/b?wait=true&timeout=5s", ts.URL, id))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(fmt.Sprintf("%s/api/v1/dispatches/%s/tasks/a", ts.URL, id))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[map[string]any](t, resp)
	assert.Equal(t, "a", snap["id"])
	assert.Equal(t, "completed", snap["state"])
}

func TestAPI_SubmitValidationErrors(t *testing.T) {
	ts := newTestServer(t, &testutil.SleeperModule{Sleep: time.Millisecond})

	// Malformed body.
	resp, err := http.Post(ts.URL+"/api/v1/dispatches", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Structurally invalid workflow.
	resp = postJSON(t, ts, "/api/v1/dispatches", map[string]any{
		"tasks": []map[string]any{
			{"id": "a", "unit": "sleeper", "depends_on": []string{"ghost"}},
		},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Invalid options.
	resp = postJSON(t, ts, "/api/v1/dispatches", map[string]any{
		"tasks":   []map[string]any{{"id": "a", "unit": "sleeper"}},
		"options": map[string]any{"failure_policy": "explode"},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_UnknownDispatch(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/dispatches/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, ts, "/api/v1/dispatches/nope/cancel", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ResultNotReady(t *testing.T) {
	started := make(chan string, 1)
	blocking := &testutil.BlockingModule{Release: make(chan struct{}), Started: started}
	ts := newTestServer(t, blocking)

	resp := postJSON(t, ts, "/api/v1/dispatches", map[string]any{
		"tasks": []map[string]any{{"id": "stuck", "unit": "blocking"}},
	})
	body := decode[map[string]string](t, resp)
	id := body["dispatch_id"]
	<-started

	// Non-blocking fetch while the task is running.
	res, err := http.Get(fmt.Sprintf("%s/api/v1/dispatches/%s/results/stuck", ts.URL, id))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	// A short blocking wait times out.
	res, err = http.Get(fmt.Sprintf("%s/api/v1/dispatches/%s/results/stuck?wait=true&timeout=50ms", ts.URL, id))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusRequestTimeout, res.StatusCode)

	close(blocking.Release)
}

func TestAPI_CancelAndPurge(t *testing.T) {
	started := make(chan string, 1)
	blocking := &testutil.BlockingModule{Release: make(chan struct{}), Started: started}
	ts := newTestServer(t, blocking)

	resp := postJSON(t, ts, "/api/v1/dispatches", map[string]any{
		"tasks": []map[string]any{{"id": "stuck", "unit": "blocking"}},
	})
	body := decode[map[string]string](t, resp)
	id := body["dispatch_id"]
	<-started

	// A live run cannot be purged.
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/v1/dispatches/%s", ts.URL, id), nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	// Cancel, wait for it to land, then purge.
	res = postJSON(t, ts, fmt.Sprintf("/api/v1/dispatches/%s/cancel", id), nil)
	res.Body.Close()
	assert.Equal(t, http.StatusAccepted, res.StatusCode)

	waitRes, err := http.Get(fmt.Sprintf("%s/api/v1/dispatches/%s/results/stuck?wait=true&timeout=5s", ts.URL, id))
	require.NoError(t, err)
	waitRes.Body.Close()

	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	// The purged dispatch is gone.
	statusRes, err := http.Get(fmt.Sprintf("%s/api/v1/dispatches/%s", ts.URL, id))
	require.NoError(t, err)
	statusRes.Body.Close()
	assert.Equal(t, http.StatusNotFound, statusRes.StatusCode)
}
