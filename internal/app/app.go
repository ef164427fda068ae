package app

import (
	"io"
	"log/slog"

	"github.com/vk/flowgridgo/internal/config"
	"github.com/vk/flowgridgo/internal/dispatch"
	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/executor"
	"github.com/vk/flowgridgo/internal/metrics"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/trigger"
	"github.com/vk/flowgridgo/internal/workflow"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	appConfig  *Config
	svcConfig  *config.Config
	units      *registry.Registry
	backends   *executor.Registry
	metrics    *metrics.Metrics
	dispatcher *dispatch.Dispatcher
	scheduler  *trigger.Scheduler
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and registries, or an
// error if configuration cannot be wired.
func NewApp(outW io.Writer, appConfig *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	svcConfig := config.Default()
	if appConfig.ConfigPath != "" {
		loaded, err := config.Load(appConfig.ConfigPath)
		if err != nil {
			return nil, err
		}
		svcConfig = loaded
		logger.Debug("Service configuration loaded.", "path", appConfig.ConfigPath)
	}

	units := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(units)
	}
	logger.Debug("All unit modules registered.", "units", units.List())

	backends := executor.NewRegistry()
	if err := registerBackends(backends, svcConfig); err != nil {
		return nil, err
	}
	logger.Debug("Executor backends registered.", "backends", backends.List())

	opts, err := defaultOptions(appConfig, svcConfig)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	return &App{
		outW:       outW,
		logger:     logger,
		appConfig:  appConfig,
		svcConfig:  svcConfig,
		units:      units,
		backends:   backends,
		metrics:    m,
		dispatcher: dispatch.New(units, backends, m, opts),
		scheduler:  trigger.New(),
	}, nil
}

// defaultOptions layers CLI overrides on top of the service configuration.
func defaultOptions(appConfig *Config, svcConfig *config.Config) (engine.Options, error) {
	policyStr := svcConfig.Engine.FailurePolicy
	if appConfig.FailurePolicy != "" {
		policyStr = appConfig.FailurePolicy
	}
	policy, err := engine.ParseFailurePolicy(policyStr)
	if err != nil {
		return engine.Options{}, err
	}

	workers := svcConfig.Engine.MaxConcurrency
	if appConfig.Workers > 0 {
		workers = appConfig.Workers
	}

	var retry *workflow.RetryPolicy
	if r := svcConfig.Engine.DefaultRetry; r != nil {
		retry = &workflow.RetryPolicy{
			MaxAttempts: r.MaxAttempts,
			Backoff:     r.Backoff,
			Factor:      r.Factor,
			MaxBackoff:  r.MaxBackoff,
		}
	}

	return engine.Options{
		MaxConcurrency: workers,
		FailurePolicy:  policy,
		DefaultRetry:   retry,
	}, nil
}

// Dispatcher returns the application's dispatcher. This is primarily for
// testing.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// apiPort resolves the listener port, with the CLI flag winning.
func (a *App) apiPort() int {
	if a.appConfig.APIPort > 0 {
		return a.appConfig.APIPort
	}
	return a.svcConfig.API.Port
}
