// Package trigger re-dispatches loaded workflows on a time schedule. Each
// trigger binds a cron expression to a fire function; the scheduler runs them
// until stopped.
package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/vk/flowgridgo/internal/ctxlog"
)

// Scheduler owns the cron runner and the registered triggers.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a stopped Scheduler. Cron expressions use the standard five
// fields (minute granularity).
func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers a trigger under a unique name. The fire function receives a
// context carrying the scheduler's logger and must not block for long; long
// work belongs in the dispatched run itself.
func (s *Scheduler) Add(ctx context.Context, name, spec string, fire func(context.Context)) error {
	logger := ctxlog.FromContext(ctx).With("trigger", name, "schedule", spec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("trigger '%s' already registered", name)
	}

	id, err := s.cron.AddFunc(spec, func() {
		logger.Info("⏰ Trigger fired.")
		fire(ctxlog.WithLogger(context.Background(), logger))
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for trigger '%s': %w", spec, name, err)
	}
	s.entries[name] = id
	logger.Debug("Trigger registered.")
	return nil
}

// Remove unregisters a trigger. Removing an unknown name is a no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Len reports how many triggers are registered.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start begins firing triggers on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that is done once all running
// fire functions have returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
