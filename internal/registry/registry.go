package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// Call carries everything a handler needs for one invocation of a unit.
type Call struct {
	// DispatchID identifies the run the call belongs to.
	DispatchID string
	// TaskID is the identity of the task being executed.
	TaskID string
	// Args holds the static arguments declared for the task.
	Args map[string]cty.Value
	// Inputs holds the outputs of the task's dependencies, keyed by the
	// upstream task ID. Values are only ever read from completed tasks.
	Inputs map[string]any
}

// Handler is the callable unit of work behind a task. It returns the task's
// output value or an error. Handlers must honour context cancellation where
// they can; the engine treats cancellation as advisory.
type Handler func(ctx context.Context, call Call) (any, error)

// Module is implemented by packages that contribute handlers. All core
// modules are registered at application startup.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered unit handlers for one application instance.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// RegisterHandler registers a handler under a unit name. Registering the same
// name twice is a programmer error and panics.
func (r *Registry) RegisterHandler(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("unit handler with name '%s' already registered", name))
	}
	r.handlers[name] = h
}

// Handler returns the handler registered under the given unit name.
func (r *Registry) Handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// List returns the sorted names of all registered units.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
