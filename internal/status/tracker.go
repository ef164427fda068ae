package status

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TaskSnapshot is a point-in-time copy of a task's execution record. Readers
// never observe a half-written record.
type TaskSnapshot struct {
	TaskID    string
	State     TaskState
	Attempts  int
	Error     error
	Reason    string
	StartedAt time.Time
	EndedAt   time.Time
}

// taskRecord is the mutable execution record for one task. Only the engine
// driving the run writes to it; concurrent readers take the mutex for a
// consistent snapshot.
type taskRecord struct {
	mu        sync.Mutex
	taskID    string
	state     TaskState
	attempts  int
	err       error
	reason    string
	startedAt time.Time
	endedAt   time.Time
}

// Tracker maintains the per-task records and the aggregate state of a single
// dispatch. One Tracker belongs to exactly one run.
type Tracker struct {
	records map[string]*taskRecord
	run     atomic.Int32
}

// NewTracker creates a Tracker with a pending record for each task ID.
func NewTracker(taskIDs []string) *Tracker {
	t := &Tracker{records: make(map[string]*taskRecord, len(taskIDs))}
	for _, id := range taskIDs {
		t.records[id] = &taskRecord{taskID: id, state: TaskPending}
	}
	t.run.Store(int32(RunRunning))
	return t
}

// Transition moves a task to the given state, validating the move against the
// state machine. An invalid transition is a programming error in the engine
// and is reported, never applied.
func (t *Tracker) Transition(taskID string, to TaskState) error {
	rec, ok := t.records[taskID]
	if !ok {
		return fmt.Errorf("status: unknown task %q", taskID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !allowedTransition(rec.state, to) {
		return fmt.Errorf("status: disallowed transition for %q: %s -> %s", taskID, rec.state, to)
	}
	rec.state = to
	switch to {
	case TaskRunning:
		rec.attempts++
		if rec.startedAt.IsZero() {
			rec.startedAt = time.Now()
		}
	case TaskCompleted, TaskFailed, TaskCancelled:
		rec.endedAt = time.Now()
	}
	return nil
}

// RecordError attaches the failure of the most recent attempt to the task.
func (t *Tracker) RecordError(taskID string, err error) {
	if rec, ok := t.records[taskID]; ok {
		rec.mu.Lock()
		rec.err = err
		rec.mu.Unlock()
	}
}

// RecordReason attaches a human-readable explanation for a cancellation or
// skip, distinguishing "cancelled by request" from "skipped due to upstream
// failure".
func (t *Tracker) RecordReason(taskID string, reason string) {
	if rec, ok := t.records[taskID]; ok {
		rec.mu.Lock()
		rec.reason = reason
		rec.mu.Unlock()
	}
}

// TaskState returns the current state of a task.
func (t *Tracker) TaskState(taskID string) (TaskState, bool) {
	rec, ok := t.records[taskID]
	if !ok {
		return 0, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state, true
}

// Attempts returns how many attempts the task has started.
func (t *Tracker) Attempts(taskID string) int {
	rec, ok := t.records[taskID]
	if !ok {
		return 0
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.attempts
}

// Snapshot returns a consistent copy of one task's record.
func (t *Tracker) Snapshot(taskID string) (TaskSnapshot, bool) {
	rec, ok := t.records[taskID]
	if !ok {
		return TaskSnapshot{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot(), true
}

// Snapshots returns consistent copies of every task record.
func (t *Tracker) Snapshots() []TaskSnapshot {
	out := make([]TaskSnapshot, 0, len(t.records))
	for _, rec := range t.records {
		rec.mu.Lock()
		out = append(out, rec.snapshot())
		rec.mu.Unlock()
	}
	return out
}

func (r *taskRecord) snapshot() TaskSnapshot {
	return TaskSnapshot{
		TaskID:    r.taskID,
		State:     r.state,
		Attempts:  r.attempts,
		Error:     r.err,
		Reason:    r.reason,
		StartedAt: r.startedAt,
		EndedAt:   r.endedAt,
	}
}

// RunState returns the aggregate state of the dispatch.
func (t *Tracker) RunState() RunState {
	return RunState(t.run.Load())
}

// SetRunState publishes a new aggregate state. A terminal aggregate state is
// never overwritten.
func (t *Tracker) SetRunState(s RunState) {
	for {
		cur := t.run.Load()
		if RunState(cur).Terminal() {
			return
		}
		if t.run.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Failed lists the snapshots of tasks that reached terminal failure.
func (t *Tracker) Failed() []TaskSnapshot {
	var out []TaskSnapshot
	for _, rec := range t.records {
		rec.mu.Lock()
		if rec.state == TaskFailed {
			out = append(out, rec.snapshot())
		}
		rec.mu.Unlock()
	}
	return out
}
