package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/ctyutil"
	"github.com/zclconf/go-cty/cty"
	"resty.dev/v3"
)

// remoteRequest is the wire form of an invocation sent to a remote agent.
type remoteRequest struct {
	DispatchID string         `json:"dispatch_id"`
	TaskID     string         `json:"task_id"`
	Unit       string         `json:"unit"`
	Attempt    int            `json:"attempt"`
	Args       map[string]any `json:"args,omitempty"`
	Inputs     map[string]any `json:"inputs,omitempty"`
}

// remoteResponse is the agent's reply.
type remoteResponse struct {
	Output any    `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Remote forwards invocations to an external agent over HTTP. The agent is
// expected to know the unit by name; the handler compiled into this process
// is not used.
//
// Descriptor configuration: endpoint (required URL), request_timeout
// (optional duration, default 5m).
type Remote struct {
	client   *resty.Client
	endpoint string
}

// NewRemote builds the HTTP agent backend from descriptor configuration.
func NewRemote(config map[string]cty.Value) (*Remote, error) {
	endpoint, err := ctyutil.StringArg(config, "endpoint")
	if err != nil {
		return nil, err
	}
	timeout, err := ctyutil.DurationArgDefault(config, "request_timeout", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	client := resty.New().SetTimeout(timeout)
	return &Remote{client: client, endpoint: endpoint}, nil
}

// Name implements Executor.
func (r *Remote) Name() string { return "http" }

// Execute implements Executor.
func (r *Remote) Execute(ctx context.Context, inv *Invocation) (any, error) {
	logger := ctxlog.FromContext(ctx).With("task", inv.TaskID, "endpoint", r.endpoint)

	args, err := ctyutil.MapToGo(inv.Call.Args)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments for remote agent: %w", err)
	}

	body := remoteRequest{
		DispatchID: inv.DispatchID,
		TaskID:     inv.TaskID,
		Unit:       inv.Unit,
		Attempt:    inv.Attempt,
		Args:       args,
		Inputs:     inv.Call.Inputs,
	}

	var reply remoteResponse
	logger.Debug("Forwarding invocation to remote agent.")
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&reply).
		Post(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("calling remote agent: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote agent returned status %d", resp.StatusCode())
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("remote agent reported failure: %s", reply.Error)
	}

	logger.Debug("Remote agent finished invocation.")
	return reply.Output, nil
}
