package app

import "errors"

// Config holds everything an App instance needs to run. It is the merged
// result of CLI flags layered over the optional service configuration file.
type Config struct {
	// WorkflowPath points at a .flow.hcl file or a directory of them.
	// Required in one-shot mode, optional in serve mode.
	WorkflowPath string
	// ConfigPath points at the optional YAML service configuration.
	ConfigPath string

	// Serve switches from one-shot execution to long-running service mode.
	Serve bool
	// APIPort overrides the configured API listener port when non-zero.
	APIPort int

	LogFormat string
	LogLevel  string

	// Workers overrides the configured engine concurrency when non-zero.
	Workers int
	// FailurePolicy overrides the configured policy when non-empty.
	FailurePolicy string
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" && !cfg.Serve {
		return nil, errors.New("a workflow path is required unless running with -serve")
	}
	return &cfg, nil
}
