package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/flowgridgo/internal/registry"
)

// ExecutionRecord holds the start and end times of a single task attempt.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// SleeperModule registers a 'sleeper' unit that sleeps for a fixed duration
// and records the execution window of every task that used it. Concurrency
// tests derive overlap and ordering assertions from the records.
type SleeperModule struct {
	Sleep time.Duration
	// CompletionChan, when set, receives each task ID as it finishes.
	CompletionChan chan<- string

	mu      sync.Mutex
	records map[string]*ExecutionRecord
}

// Register implements registry.Module.
func (m *SleeperModule) Register(r *registry.Registry) {
	r.RegisterHandler("sleeper", func(ctx context.Context, call registry.Call) (any, error) {
		start := time.Now()
		select {
		case <-time.After(m.Sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		m.mu.Lock()
		if m.records == nil {
			m.records = make(map[string]*ExecutionRecord)
		}
		m.records[call.TaskID] = &ExecutionRecord{Start: start, End: time.Now()}
		m.mu.Unlock()

		if m.CompletionChan != nil {
			m.CompletionChan <- call.TaskID
		}
		return call.TaskID, nil
	})
}

// Record returns the execution record for a task, or nil if it never ran.
func (m *SleeperModule) Record(taskID string) *ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[taskID]
}

// Ran reports whether the task executed at least once.
func (m *SleeperModule) Ran(taskID string) bool {
	return m.Record(taskID) != nil
}

// FlakyModule registers a 'flaky' unit that fails a fixed number of times per
// task before succeeding. Retry tests read the observed attempt counts.
type FlakyModule struct {
	// FailuresBeforeSuccess is how many attempts fail before one succeeds.
	FailuresBeforeSuccess int

	mu       sync.Mutex
	attempts map[string]int
}

// Register implements registry.Module.
func (m *FlakyModule) Register(r *registry.Registry) {
	r.RegisterHandler("flaky", func(ctx context.Context, call registry.Call) (any, error) {
		m.mu.Lock()
		if m.attempts == nil {
			m.attempts = make(map[string]int)
		}
		m.attempts[call.TaskID]++
		n := m.attempts[call.TaskID]
		m.mu.Unlock()

		if n <= m.FailuresBeforeSuccess {
			return nil, fmt.Errorf("transient failure on attempt %d", n)
		}
		return fmt.Sprintf("succeeded on attempt %d", n), nil
	})
}

// Attempts returns how many times the task's handler was invoked.
func (m *FlakyModule) Attempts(taskID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[taskID]
}

// FailingModule registers a 'failing' unit that always returns an error.
type FailingModule struct{}

// Register implements registry.Module.
func (m *FailingModule) Register(r *registry.Registry) {
	r.RegisterHandler("failing", func(ctx context.Context, call registry.Call) (any, error) {
		return nil, fmt.Errorf("unit 'failing' always fails")
	})
}

// BlockingModule registers a 'blocking' unit that holds until released or the
// context ends. Cancellation tests use it to pin tasks in the running state.
type BlockingModule struct {
	// Release unblocks every waiting handler when closed.
	Release chan struct{}
	// Started receives each task ID as its handler begins, when set.
	Started chan<- string
}

// Register implements registry.Module.
func (m *BlockingModule) Register(r *registry.Registry) {
	r.RegisterHandler("blocking", func(ctx context.Context, call registry.Call) (any, error) {
		if m.Started != nil {
			m.Started <- call.TaskID
		}
		select {
		case <-m.Release:
			return "released", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// HandlerModule registers a single handler under Name, for tests that need
// one-off behaviour without declaring a module type.
type HandlerModule struct {
	Name string
	Fn   registry.Handler
}

// Register implements registry.Module.
func (m *HandlerModule) Register(r *registry.Registry) {
	r.RegisterHandler(m.Name, m.Fn)
}

// EchoModule registers an 'echo' unit that returns its upstream inputs,
// letting tests assert on result propagation.
type EchoModule struct{}

// Register implements registry.Module.
func (m *EchoModule) Register(r *registry.Registry) {
	r.RegisterHandler("echo", func(ctx context.Context, call registry.Call) (any, error) {
		return call.Inputs, nil
	})
}
