package loader

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/fsutil"
	"github.com/vk/flowgridgo/internal/workflow"
	"github.com/zclconf/go-cty/cty"
)

// Extension is the suffix identifying workflow definition files.
const Extension = ".flow.hcl"

// Definition is a parsed, validated workflow ready to dispatch.
type Definition struct {
	Tasks   []*workflow.Task
	Options engine.Options
	// Schedule is an optional cron expression; empty means run once on
	// demand.
	Schedule string
}

// LoadPath loads a definition from a single file, or from every definition
// file found under a directory. Multiple files form one definition; their
// task blocks are merged and at most one of them may carry a settings block.
func LoadPath(path string) (*Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow path: %w", err)
	}
	if !info.IsDir() {
		return LoadFiles([]string{path})
	}
	files, err := fsutil.FindFilesByExtension(path, Extension)
	if err != nil {
		return nil, fmt.Errorf("scanning '%s' for workflow files: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found under '%s'", Extension, path)
	}
	return LoadFiles(files)
}

// LoadFiles parses and merges the given definition files.
func LoadFiles(paths []string) (*Definition, error) {
	parser := hclparse.NewParser()
	def := &Definition{}
	var settings *settingsBlock

	for _, path := range paths {
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing '%s': %w", path, diags)
		}

		var schema fileSchema
		if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
			return nil, fmt.Errorf("decoding '%s': %w", path, diags)
		}

		if schema.Settings != nil {
			if settings != nil {
				return nil, fmt.Errorf("decoding '%s': duplicate settings block, only one is allowed per definition", path)
			}
			settings = schema.Settings
		}

		for _, tb := range schema.Tasks {
			task, err := buildTask(tb)
			if err != nil {
				return nil, fmt.Errorf("decoding '%s': %w", path, err)
			}
			def.Tasks = append(def.Tasks, task)
		}
	}

	if settings != nil {
		policy, err := engine.ParseFailurePolicy(settings.FailurePolicy)
		if err != nil {
			return nil, err
		}
		def.Options = engine.Options{
			MaxConcurrency: settings.MaxConcurrency,
			FailurePolicy:  policy,
		}
		def.Schedule = settings.Schedule
	}

	// Build eagerly so structural problems surface at load time, with the
	// offending file in hand, rather than at submission.
	if _, err := workflow.Build(def.Tasks); err != nil {
		return nil, err
	}

	return def, nil
}

func buildTask(tb *taskBlock) (*workflow.Task, error) {
	task := &workflow.Task{
		ID:        tb.ID,
		Unit:      tb.Unit,
		DependsOn: tb.DependsOn,
	}

	if tb.Arguments != nil {
		args, err := attributesToMap(tb.Arguments.Body)
		if err != nil {
			return nil, fmt.Errorf("task '%s': %w", tb.ID, err)
		}
		task.Args = args
	}

	if tb.Executor != nil {
		config, err := attributesToMap(tb.Executor.Body)
		if err != nil {
			return nil, fmt.Errorf("task '%s' executor: %w", tb.ID, err)
		}
		task.Executor = workflow.ExecutorDescriptor{Name: tb.Executor.Name, Config: config}
	}

	if tb.Retry != nil {
		retry, err := buildRetry(tb.Retry)
		if err != nil {
			return nil, fmt.Errorf("task '%s' retry: %w", tb.ID, err)
		}
		task.Retry = retry
	}

	return task, nil
}

func buildRetry(rb *retryBlock) (*workflow.RetryPolicy, error) {
	if rb.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be at least 1, got %d", rb.MaxAttempts)
	}
	policy := &workflow.RetryPolicy{
		MaxAttempts: rb.MaxAttempts,
		Factor:      rb.Factor,
	}
	if rb.Backoff != "" {
		d, err := time.ParseDuration(rb.Backoff)
		if err != nil {
			return nil, fmt.Errorf("invalid backoff duration %q: %w", rb.Backoff, err)
		}
		policy.Backoff = d
	}
	if rb.MaxBackoff != "" {
		d, err := time.ParseDuration(rb.MaxBackoff)
		if err != nil {
			return nil, fmt.Errorf("invalid max_backoff duration %q: %w", rb.MaxBackoff, err)
		}
		policy.MaxBackoff = d
	}
	return policy, nil
}

// attributesToMap evaluates a block's attributes as literal values. Workflow
// definitions are static documents; there is no expression context to
// evaluate against.
func attributesToMap(body hcl.Body) (map[string]cty.Value, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("reading attributes: %w", diags)
	}
	out := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("evaluating attribute '%s': %w", name, diags)
		}
		out[name] = val
	}
	return out, nil
}
