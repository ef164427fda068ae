package workflow

import "sort"

// Graph is a validated, immutable collection of tasks and their dependency
// edges. It is safe for concurrent use by multiple dispatches.
type Graph struct {
	tasks      []*Task
	byID       map[string]*Task
	dependents map[string][]string
}

// Build validates the given tasks and assembles them into a Graph.
//
// Validation, in order: no duplicate IDs, every dependency reference resolves
// to a task in the same set, and the edge relation is acyclic. The first
// failing check is reported as a *GraphError naming the offending tasks.
func Build(tasks []*Task) (*Graph, error) {
	g := &Graph{
		tasks:      make([]*Task, 0, len(tasks)),
		byID:       make(map[string]*Task, len(tasks)),
		dependents: make(map[string][]string),
	}

	var dups []string
	for _, t := range tasks {
		if _, exists := g.byID[t.ID]; exists {
			dups = append(dups, t.ID)
			continue
		}
		if t.Executor.Name == "" {
			t.Executor.Name = DefaultExecutor
		}
		g.byID[t.ID] = t
		g.tasks = append(g.tasks, t)
	}
	if len(dups) > 0 {
		return nil, &GraphError{Kind: DuplicateTask, Tasks: dedupe(dups)}
	}

	var unknown []string
	for _, t := range g.tasks {
		for _, dep := range t.DependsOn {
			if _, ok := g.byID[dep]; !ok {
				unknown = append(unknown, dep)
				continue
			}
			g.dependents[dep] = append(g.dependents[dep], t.ID)
		}
	}
	if len(unknown) > 0 {
		return nil, &GraphError{Kind: UnknownReference, Tasks: dedupe(unknown)}
	}

	if cyclic := g.detectCycle(); len(cyclic) > 0 {
		return nil, &GraphError{Kind: Cycle, Tasks: cyclic}
	}

	return g, nil
}

// detectCycle runs a depth-first search with the classic three-set node
// marking. It returns the IDs that were on the recursion stack when a cycle
// closed, or nil for an acyclic graph.
func (g *Graph) detectCycle() []string {
	permanent := make(map[string]bool, len(g.tasks))
	temporary := make(map[string]bool)

	var visit func(id string) bool
	visit = func(id string) bool {
		if permanent[id] {
			return false
		}
		if temporary[id] {
			return true
		}
		temporary[id] = true
		for _, dep := range g.dependents[id] {
			if visit(dep) {
				return true
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return false
	}

	for _, t := range g.tasks {
		if !permanent[t.ID] {
			if visit(t.ID) {
				// Everything still marked temporary sits on the path that
				// closed the cycle.
				var cycle []string
				for id := range temporary {
					cycle = append(cycle, id)
				}
				sort.Strings(cycle)
				return cycle
			}
		}
	}
	return nil
}

// Task returns the task with the given ID.
func (g *Graph) Task(id string) (*Task, bool) {
	t, ok := g.byID[id]
	return t, ok
}

// Tasks returns all tasks in insertion order. Callers must not mutate the
// returned slice or its elements.
func (g *Graph) Tasks() []*Task {
	return g.tasks
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	return len(g.tasks)
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// Roots returns the IDs of tasks with no dependencies. These are immediately
// ready when a dispatch starts.
func (g *Graph) Roots() []string {
	var roots []string
	for _, t := range g.tasks {
		if len(t.DependsOn) == 0 {
			roots = append(roots, t.ID)
		}
	}
	return roots
}

// Descendants returns every task ID reachable downstream of the given task.
func (g *Graph) Descendants(id string) []string {
	seen := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		for _, dep := range g.dependents[id] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
