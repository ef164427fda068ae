package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/workflow"
	"github.com/zclconf/go-cty/cty"
)

// Invocation is one attempt at running a task's unit on a backend.
type Invocation struct {
	DispatchID string
	TaskID     string
	Unit       string
	// Attempt counts from 1.
	Attempt int
	// Handler is the compiled unit of work, resolved from the unit registry.
	Handler registry.Handler
	// Call carries the arguments and upstream inputs for the handler.
	Call registry.Call
	// Config is the backend-specific configuration from the task's executor
	// descriptor. The core never inspects it.
	Config map[string]cty.Value
}

// Executor runs task invocations on some backend: in-process, a remote host,
// or anything else that can honour the contract.
type Executor interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Execute runs the invocation and returns its output value. Errors are
	// wrapped by the engine into a TaskError attributed to the attempt.
	Execute(ctx context.Context, inv *Invocation) (any, error)
}

// Canceler is optionally implemented by backends that can interrupt in-flight
// work. Cancellation is best-effort; the engine never waits on it.
type Canceler interface {
	Cancel(dispatchID, taskID string)
}

// TaskError attributes a backend failure to a specific task attempt.
type TaskError struct {
	DispatchID string
	TaskID     string
	Attempt    int
	Err        error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q attempt %d failed: %v", e.TaskID, e.Attempt, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Factory builds an executor from descriptor configuration. Factories are
// invoked at dispatch time, once per task descriptor resolution.
type Factory func(config map[string]cty.Value) (Executor, error)

// Registry maps backend names to factories. Backends are registered
// explicitly at startup; an unknown name fails at submission, not mid-run.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a backend factory. Registering a name twice panics.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("executor backend with name '%s' already registered", name))
	}
	r.factories[name] = f
}

// Resolve turns a task's executor descriptor into a concrete backend.
func (r *Registry) Resolve(desc workflow.ExecutorDescriptor) (Executor, error) {
	name := desc.Name
	if name == "" {
		name = workflow.DefaultExecutor
	}
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown executor backend '%s'", name)
	}
	exec, err := f(desc.Config)
	if err != nil {
		return nil, fmt.Errorf("configuring executor backend '%s': %w", name, err)
	}
	return exec, nil
}

// List returns the sorted names of all registered backends.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
