package api

import (
	"fmt"
	"time"

	"github.com/vk/flowgridgo/internal/ctyutil"
	"github.com/vk/flowgridgo/internal/dispatch"
	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/status"
	"github.com/vk/flowgridgo/internal/store"
	"github.com/vk/flowgridgo/internal/workflow"
)

// taskRequest is the wire form of one task in a submission.
type taskRequest struct {
	ID        string           `json:"id" binding:"required"`
	Unit      string           `json:"unit" binding:"required"`
	DependsOn []string         `json:"depends_on"`
	Args      map[string]any   `json:"args"`
	Executor  *executorRequest `json:"executor"`
	Retry     *retryRequest    `json:"retry"`
}

type executorRequest struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

type retryRequest struct {
	MaxAttempts int     `json:"max_attempts"`
	Backoff     string  `json:"backoff"`
	Factor      float64 `json:"factor"`
	MaxBackoff  string  `json:"max_backoff"`
}

type optionsRequest struct {
	MaxConcurrency int    `json:"max_concurrency"`
	FailurePolicy  string `json:"failure_policy"`
}

// submitRequest is the body of POST /api/v1/dispatches.
type submitRequest struct {
	Tasks   []taskRequest   `json:"tasks" binding:"required"`
	Options *optionsRequest `json:"options"`
}

func (r *submitRequest) toTasks() ([]*workflow.Task, error) {
	tasks := make([]*workflow.Task, 0, len(r.Tasks))
	for _, tr := range r.Tasks {
		task := &workflow.Task{
			ID:        tr.ID,
			Unit:      tr.Unit,
			DependsOn: tr.DependsOn,
		}
		if len(tr.Args) > 0 {
			args, err := ctyutil.MapFromGo(tr.Args)
			if err != nil {
				return nil, fmt.Errorf("task '%s': decoding args: %w", tr.ID, err)
			}
			task.Args = args
		}
		if tr.Executor != nil {
			config, err := ctyutil.MapFromGo(tr.Executor.Config)
			if err != nil {
				return nil, fmt.Errorf("task '%s': decoding executor config: %w", tr.ID, err)
			}
			task.Executor = workflow.ExecutorDescriptor{Name: tr.Executor.Name, Config: config}
		}
		if tr.Retry != nil {
			retry, err := tr.Retry.toPolicy()
			if err != nil {
				return nil, fmt.Errorf("task '%s': %w", tr.ID, err)
			}
			task.Retry = retry
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (r *retryRequest) toPolicy() (*workflow.RetryPolicy, error) {
	if r.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max_attempts must be at least 1, got %d", r.MaxAttempts)
	}
	policy := &workflow.RetryPolicy{MaxAttempts: r.MaxAttempts, Factor: r.Factor}
	if r.Backoff != "" {
		d, err := time.ParseDuration(r.Backoff)
		if err != nil {
			return nil, fmt.Errorf("invalid retry backoff %q: %w", r.Backoff, err)
		}
		policy.Backoff = d
	}
	if r.MaxBackoff != "" {
		d, err := time.ParseDuration(r.MaxBackoff)
		if err != nil {
			return nil, fmt.Errorf("invalid retry max_backoff %q: %w", r.MaxBackoff, err)
		}
		policy.MaxBackoff = d
	}
	return policy, nil
}

func (r *submitRequest) toOptions() (*engine.Options, error) {
	if r.Options == nil {
		return nil, nil
	}
	policy, err := engine.ParseFailurePolicy(r.Options.FailurePolicy)
	if err != nil {
		return nil, err
	}
	return &engine.Options{
		MaxConcurrency: r.Options.MaxConcurrency,
		FailurePolicy:  policy,
	}, nil
}

// submitResponse acknowledges an admitted dispatch.
type submitResponse struct {
	DispatchID string `json:"dispatch_id"`
}

// taskStatusResponse is the wire form of a task snapshot.
type taskStatusResponse struct {
	ID        string     `json:"id"`
	State     string     `json:"state"`
	Attempts  int        `json:"attempts"`
	Error     string     `json:"error,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func toTaskStatus(s status.TaskSnapshot) taskStatusResponse {
	out := taskStatusResponse{
		ID:       s.TaskID,
		State:    s.State.String(),
		Attempts: s.Attempts,
		Reason:   s.Reason,
	}
	if s.Error != nil {
		out.Error = s.Error.Error()
	}
	if !s.StartedAt.IsZero() {
		t := s.StartedAt
		out.StartedAt = &t
	}
	if !s.EndedAt.IsZero() {
		t := s.EndedAt
		out.EndedAt = &t
	}
	return out
}

// dispatchStatusResponse is the wire form of a run's status.
type dispatchStatusResponse struct {
	DispatchID string               `json:"dispatch_id"`
	State      string               `json:"state"`
	CreatedAt  time.Time            `json:"created_at"`
	Tasks      []taskStatusResponse `json:"tasks"`
}

func toDispatchStatus(rs dispatch.RunStatus) dispatchStatusResponse {
	tasks := make([]taskStatusResponse, 0, len(rs.Tasks))
	for _, s := range rs.Tasks {
		tasks = append(tasks, toTaskStatus(s))
	}
	return dispatchStatusResponse{
		DispatchID: rs.DispatchID,
		State:      rs.State.String(),
		CreatedAt:  rs.CreatedAt,
		Tasks:      tasks,
	}
}

// resultResponse is the wire form of a task result.
type resultResponse struct {
	TaskID    string     `json:"task_id"`
	Value     any        `json:"value,omitempty"`
	Error     string     `json:"error,omitempty"`
	Attempts  int        `json:"attempts"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func toResult(res store.Result) resultResponse {
	out := resultResponse{
		TaskID:   res.TaskID,
		Value:    res.Value,
		Attempts: res.Attempts,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if !res.StartedAt.IsZero() {
		t := res.StartedAt
		out.StartedAt = &t
	}
	if !res.EndedAt.IsZero() {
		t := res.EndedAt
		out.EndedAt = &t
	}
	return out
}

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error string `json:"error"`
}
