package workflow

import (
	"fmt"
	"strings"
)

// GraphErrorKind classifies why a graph failed validation.
type GraphErrorKind int

const (
	// Cycle means the dependency relation is not acyclic.
	Cycle GraphErrorKind = iota
	// UnknownReference means a task depends on an ID that does not exist in
	// the graph.
	UnknownReference
	// DuplicateTask means two tasks share the same ID.
	DuplicateTask
)

func (k GraphErrorKind) String() string {
	switch k {
	case Cycle:
		return "cycle"
	case UnknownReference:
		return "unknown reference"
	case DuplicateTask:
		return "duplicate task"
	default:
		return "unknown"
	}
}

// GraphError is returned by Build when a set of tasks does not form a valid
// graph. Tasks lists the offending task IDs. Validation happens entirely
// before execution, so a GraphError never leaves anything partially started.
type GraphError struct {
	Kind  GraphErrorKind
	Tasks []string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("invalid graph: %s involving task(s) '%s'", e.Kind, strings.Join(e.Tasks, ", "))
}
