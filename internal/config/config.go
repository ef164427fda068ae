// Package config loads the optional service configuration file. The file is
// YAML and covers everything that is not part of a workflow definition: the
// API listener, engine defaults, logging, and named executor instances.
// Every field has a sensible default, so running without a file works.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the service configuration.
type Config struct {
	Log       LogConfig        `yaml:"log"`
	API       APIConfig        `yaml:"api"`
	Engine    EngineConfig     `yaml:"engine"`
	Executors []ExecutorConfig `yaml:"executors"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// APIConfig configures the HTTP API listener.
type APIConfig struct {
	Port int `yaml:"port"`
}

// EngineConfig carries the run defaults applied to every dispatch that does
// not override them.
type EngineConfig struct {
	MaxConcurrency int          `yaml:"max_concurrency"`
	FailurePolicy  string       `yaml:"failure_policy"`
	DefaultRetry   *RetryConfig `yaml:"default_retry"`
}

// RetryConfig is the YAML form of a retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	Factor      float64       `yaml:"factor"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// ExecutorConfig declares a named executor instance: a backend plus its
// connection settings, referenced from workflow files by name.
type ExecutorConfig struct {
	Name    string            `yaml:"name"`
	Backend string            `yaml:"backend"`
	Config  map[string]string `yaml:"config"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		API: APIConfig{Port: 8048},
	}
}

// Load reads and validates a configuration file, layered over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file '%s': %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file '%s': %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot be wired.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", c.API.Port)
	}
	if c.Engine.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must not be negative, got %d", c.Engine.MaxConcurrency)
	}
	switch c.Engine.FailurePolicy {
	case "", "fail_fast", "continue":
	default:
		return fmt.Errorf("invalid failure policy %q", c.Engine.FailurePolicy)
	}
	if r := c.Engine.DefaultRetry; r != nil && r.MaxAttempts < 1 {
		return fmt.Errorf("default_retry.max_attempts must be at least 1, got %d", r.MaxAttempts)
	}
	seen := make(map[string]struct{}, len(c.Executors))
	for _, e := range c.Executors {
		if e.Name == "" {
			return fmt.Errorf("executor instance without a name")
		}
		if e.Backend == "" {
			return fmt.Errorf("executor instance '%s' without a backend", e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("duplicate executor instance '%s'", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}
