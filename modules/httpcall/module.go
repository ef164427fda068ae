// Package httpcall provides the 'http_call' unit: a single HTTP request with
// configurable method, headers, and body.
package httpcall

import (
	"context"
	"fmt"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/ctyutil"
	"github.com/vk/flowgridgo/internal/registry"
	"resty.dev/v3"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// client is shared across executions to reuse TCP connections.
var client = resty.New()

func onRunHTTPCall(ctx context.Context, call registry.Call) (any, error) {
	url, err := ctyutil.StringArg(call.Args, "url")
	if err != nil {
		return nil, err
	}
	method, err := ctyutil.StringArgDefault(call.Args, "method", "GET")
	if err != nil {
		return nil, err
	}
	body, err := ctyutil.StringArgDefault(call.Args, "body", "")
	if err != nil {
		return nil, err
	}
	headers, err := ctyutil.StringMapArg(call.Args, "headers")
	if err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx).With("task", call.TaskID)
	logger.Info("Making HTTP request.", "method", method, "url", url)

	req := client.R().SetContext(ctx).SetHeaders(headers)
	if body != "" {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("executing http request: %w", err)
	}

	logger.Info("Received HTTP response.", "status", resp.Status())
	return map[string]any{
		"status_code": resp.StatusCode(),
		"body":        resp.String(),
	}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("http_call", onRunHTTPCall)
}
