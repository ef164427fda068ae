package loader

import (
	"github.com/hashicorp/hcl/v2"
)

// argumentsBlock holds the free-form `arguments` block of a task. Attribute
// names and types are the unit's business, not the loader's.
type argumentsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// executorBlock selects and configures the backend a task runs on.
type executorBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// retryBlock declares a task's retry policy. Durations use Go syntax, e.g.
// "500ms" or "2s".
type retryBlock struct {
	MaxAttempts int     `hcl:"max_attempts"`
	Backoff     string  `hcl:"backoff,optional"`
	Factor      float64 `hcl:"factor,optional"`
	MaxBackoff  string  `hcl:"max_backoff,optional"`
}

// taskBlock is one `task "<unit>" "<id>"` block from a definition file.
type taskBlock struct {
	Unit      string          `hcl:"unit_name,label"`
	ID        string          `hcl:"task_id,label"`
	Arguments *argumentsBlock `hcl:"arguments,block"`
	Executor  *executorBlock  `hcl:"executor,block"`
	DependsOn []string        `hcl:"depends_on,optional"`
	Retry     *retryBlock     `hcl:"retry,block"`
}

// settingsBlock carries per-definition run options.
type settingsBlock struct {
	MaxConcurrency int    `hcl:"max_concurrency,optional"`
	FailurePolicy  string `hcl:"failure_policy,optional"`
	Schedule       string `hcl:"schedule,optional"`
}

// fileSchema is the top level of a definition file.
type fileSchema struct {
	Settings *settingsBlock `hcl:"settings,block"`
	Tasks    []*taskBlock   `hcl:"task,block"`
}
