package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound means the task ID is not part of the dispatch.
	ErrNotFound = errors.New("store: task not found")
	// ErrNotReady means the task has not produced a result yet.
	ErrNotReady = errors.New("store: result not ready")
	// ErrTimeout means a blocking wait gave up before the result arrived.
	// The underlying run is not affected.
	ErrTimeout = errors.New("store: timed out waiting for result")
)

// Result is the recorded outcome of one task.
type Result struct {
	TaskID    string
	Value     any
	Err       error
	Attempts  int
	StartedAt time.Time
	EndedAt   time.Time
}

// entry pairs a result slot with a channel that is closed on publication.
// Waiters block on the channel; the close gives the happens-before edge that
// makes the result safe to read without further locking.
type entry struct {
	done   chan struct{}
	result Result
}

// ResultSet holds the results of a single dispatch, keyed by task ID. The
// engine is the only writer; any number of readers may poll or wait.
type ResultSet struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewResultSet creates a set with an empty slot for each task ID.
func NewResultSet(taskIDs []string) *ResultSet {
	s := &ResultSet{entries: make(map[string]*entry, len(taskIDs))}
	for _, id := range taskIDs {
		s.entries[id] = &entry{done: make(chan struct{})}
	}
	return s
}

// Publish records the result for a task and wakes all waiters. Publishing
// twice for the same task is a no-op; the first result wins.
func (s *ResultSet) Publish(res Result) {
	s.mu.RLock()
	e, ok := s.entries[res.TaskID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case <-e.done:
		return
	default:
	}
	e.result = res
	close(e.done)
}

// Published reports whether the task already has a recorded result.
func (s *ResultSet) Published(taskID string) bool {
	s.mu.RLock()
	e, ok := s.entries[taskID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Get returns the task's result without blocking. It fails with ErrNotFound
// for unknown tasks and ErrNotReady when the task has not finished.
func (s *ResultSet) Get(taskID string) (Result, error) {
	s.mu.RLock()
	e, ok := s.entries[taskID]
	s.mu.RUnlock()
	if !ok {
		return Result{}, ErrNotFound
	}
	select {
	case <-e.done:
		return e.result, nil
	default:
		return Result{}, ErrNotReady
	}
}

// Await blocks until the task's result is published, the timeout elapses, or
// the context is cancelled. A zero timeout waits indefinitely (bounded only
// by the context).
func (s *ResultSet) Await(ctx context.Context, taskID string, timeout time.Duration) (Result, error) {
	s.mu.RLock()
	e, ok := s.entries[taskID]
	s.mu.RUnlock()
	if !ok {
		return Result{}, ErrNotFound
	}

	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}

	select {
	case <-e.done:
		return e.result, nil
	case <-timer:
		return Result{}, ErrTimeout
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
