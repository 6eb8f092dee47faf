package acceptor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/servicelab/svc-acceptor/discovery"
	"github.com/servicelab/svc-acceptor/exitcodes"
	"github.com/servicelab/svc-acceptor/runner"
	"github.com/servicelab/svc-acceptor/service"
	"github.com/servicelab/svc-acceptor/types"
)

// Acceptor is the top-level service: it owns the runner, the optional status
// server, and the run schedule (run-once or periodic).
type Acceptor struct {
	ctx     context.Context
	config  *Config
	version string
	runner  *runner.Runner
	status  *service.StatusServer
	result  *runner.RunReport

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates an Acceptor from the given config. Modules come from the
// scenario directory plus any explicitly registered source.
func New(ctx context.Context, cfg *Config, version string, source *discovery.Source, shutdownCallback func(error)) (*Acceptor, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	cfg.Log.Debug("Creating acceptor with config",
		"services", len(cfg.Services),
		"scenarioDir", cfg.ScenarioDir,
		"runInterval", cfg.RunInterval,
		"runOnce", cfg.RunOnce,
		"parallelism", cfg.Parallelism)

	var sources []discovery.ModuleSource
	if source != nil {
		sources = append(sources, source)
	}
	if cfg.ScenarioDir != "" {
		sources = append(sources, discovery.NewScenarioSource(cfg.ScenarioDir, cfg.Log))
	}
	if len(sources) == 0 {
		return nil, errors.New("no module sources: provide a scenario directory or a registered source")
	}

	r, err := runner.NewRunner(runner.Config{
		Services:      cfg.Services,
		Discoverer:    discovery.NewDiscoverer(cfg.Log, sources...),
		Parallelism:   cfg.Parallelism,
		FailFast:      cfg.FailFast,
		DryRun:        cfg.DryRun,
		ServiceFilter: cfg.ServiceFilter,
		ModuleFilter:  cfg.ModuleFilter,
		ModuleTimeout: cfg.ModuleTimeout,
		Log:           cfg.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	return &Acceptor{
		ctx:              ctx,
		config:           cfg,
		version:          version,
		runner:           r,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the acceptance modules, once or periodically at the configured
// interval.
func (a *Acceptor) Start(ctx context.Context) error {
	// Panic here is a runtime error, not a module failure.
	defer func() {
		if r := recover(); r != nil {
			a.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	a.ctx = ctx
	a.done = make(chan struct{})
	a.running.Store(true)

	if a.config.StatusAddr != "" {
		a.status = service.NewStatusServer(a.runner, a.config.Log)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.status.Start(a.config.StatusAddr); err != nil && !errors.Is(err, context.Canceled) {
				a.config.Log.Warn("Status server stopped", "error", err)
			}
		}()
	}

	if a.config.RunOnce {
		a.config.Log.Info("Starting svc-acceptor in run-once mode")
	} else {
		a.config.Log.Info("Starting svc-acceptor in continuous mode", "interval", a.config.RunInterval)
	}

	err := a.runModules()
	if err != nil {
		a.config.Log.Error("Runtime error running modules", "error", err)
		return NewRuntimeError("run", err)
	}

	if a.config.RunOnce {
		a.config.Log.Info("Run completed, exiting (run-once mode)")

		if a.result != nil && !a.result.AllPassed() {
			a.config.Log.Warn("Run-once completed with failures, returning exit code 1")
			return NewTestFailureError(a.result.RunID, statsLine(a.result))
		}

		if a.shutdownCallback != nil {
			go func() {
				a.shutdownCallback(nil)
			}()
		}
		return nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.config.Log.Debug("Starting periodic runner goroutine", "interval", a.config.RunInterval)

		for {
			select {
			case <-time.After(a.config.RunInterval):
				if !a.running.Load() {
					a.config.Log.Debug("Service stopped, exiting periodic runner")
					return
				}

				a.config.Log.Info("Running periodic acceptance modules")
				if err := a.runModules(); err != nil {
					a.config.Log.Error("Error running periodic modules", "error", err)
				}

			case <-a.done:
				a.config.Log.Debug("Done signal received, stopping periodic runner")
				return

			case <-ctx.Done():
				a.config.Log.Debug("Context canceled, stopping periodic runner")
				a.running.Store(false)
				return
			}
		}
	}()
	a.config.Log.Debug("svc-acceptor started successfully")
	return nil
}

// runModules runs one complete pass and prints the results
func (a *Acceptor) runModules() error {
	a.config.Log.Info("Running acceptance modules...")
	result, err := a.runner.Run(a.ctx)
	if err != nil {
		return err
	}
	a.result = result

	if err := a.printResults(result); err != nil {
		a.config.Log.Error("Error printing results", "error", err)
	}
	a.config.Log.Info("Run completed", "run_id", result.RunID, "status", result.Status)
	return nil
}

// Stop stops the acceptor service.
func (a *Acceptor) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping svc-acceptor")

	if !a.running.Load() {
		return nil
	}
	a.running.Store(false)
	a.runner.Cancel()
	close(a.done)

	if a.status != nil {
		if err := a.status.Shutdown(ctx); err != nil {
			a.config.Log.Warn("Status server shutdown", "error", err)
		}
	}

	stopped := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.config.Log.Info("svc-acceptor stopped")
	return nil
}

// Stopped reports whether the service has been stopped.
func (a *Acceptor) Stopped() bool {
	return !a.running.Load()
}

// Result returns the most recent run's report, nil before the first run
// completes.
func (a *Acceptor) Result() *runner.RunReport {
	return a.result
}

// ExitCode maps the most recent result onto the process exit code.
func (a *Acceptor) ExitCode() int {
	if a.result == nil {
		return exitcodes.RuntimeErr
	}
	if a.result.AllPassed() {
		return exitcodes.Success
	}
	if a.result.Status == types.TestStatusError {
		return exitcodes.RuntimeErr
	}
	return exitcodes.TestFailure
}
