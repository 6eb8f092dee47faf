package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/servicelab/svc-acceptor/discovery"
	"github.com/servicelab/svc-acceptor/engine"
	"github.com/servicelab/svc-acceptor/metrics"
	"github.com/servicelab/svc-acceptor/types"
)

// Skip reasons recorded for modules that were scheduled but never invoked.
const (
	ReasonDryRun      = "dry-run"
	ReasonCancelled   = "cancelled"
	ReasonNotReached  = "not reached (fail-fast)"
	ReasonUnavailable = "service unavailable"
)

const defaultModuleTimeout = 2 * time.Minute

// OrchestratorConfig holds configuration for one service's orchestrator.
type OrchestratorConfig struct {
	Service       types.ServiceDescriptor
	Modules       []discovery.Module
	Context       *engine.Context
	RunID         string
	FailFast      bool
	DryRun        bool
	ModuleTimeout time.Duration // per-module wall-clock ceiling
	Cancelled     *atomic.Bool  // run-wide cancellation flag, polled between modules
	Log           log.Logger
	Tracer        trace.Tracer
}

// Orchestrator drives one service's ordered module sequence against one
// execution context. Modules execute strictly in (ordinal, name) order;
// every error raised inside a module is captured at this boundary and
// converted into a TestResult, never propagated to sibling modules or the
// worker.
type Orchestrator struct {
	cfg       OrchestratorConfig
	log       log.Logger
	cancelled *atomic.Bool
}

// NewOrchestrator creates an orchestrator for one service run.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.ModuleTimeout <= 0 {
		cfg.ModuleTimeout = defaultModuleTimeout
	}
	cancelled := cfg.Cancelled
	if cancelled == nil {
		cancelled = new(atomic.Bool)
	}
	return &Orchestrator{
		cfg:       cfg,
		log:       cfg.Log.New("component", "orchestrator", "service", cfg.Service.Name),
		cancelled: cancelled,
	}
}

// Run executes the module sequence, emitting exactly one TestResult per
// module through emit. Cancellation is cooperative: the flag is checked
// between module invocations only, so an in-flight module always finishes.
func (o *Orchestrator) Run(ctx context.Context, emit func(*types.TestResult)) {
	if o.cfg.DryRun {
		for _, mod := range o.cfg.Modules {
			emit(o.skipResult(mod, ReasonDryRun))
		}
		return
	}

	if err := o.checkHealth(ctx); err != nil {
		o.log.Warn("Health check failed", "error", err, "required", o.cfg.Service.Required)
		metrics.RecordErrorDetails("health_check", err)
		for _, mod := range o.cfg.Modules {
			if o.cfg.Service.Required {
				res := o.skipResult(mod, "")
				res.Status = types.TestStatusError
				res.Reason = ""
				res.Error = fmt.Errorf("%s: %w", ReasonUnavailable, err)
				emit(res)
			} else {
				emit(o.skipResult(mod, ReasonUnavailable))
			}
		}
		return
	}

	halted := false
	haltReason := ""
	for _, mod := range o.cfg.Modules {
		if !halted && (o.cancelled.Load() || ctx.Err() != nil) {
			halted = true
			haltReason = ReasonCancelled
		}
		if halted {
			emit(o.skipResult(mod, haltReason))
			continue
		}

		result := o.invoke(ctx, mod)
		metrics.RecordModule(o.cfg.Service.Name, o.cfg.RunID, mod.Meta.Name, result.Status)
		emit(result)

		if o.cfg.FailFast && (result.Status == types.TestStatusFail || result.Status == types.TestStatusError) {
			o.log.Info("Halting service run",
				"module", mod.Meta.Name,
				"status", result.Status)
			halted = true
			haltReason = ReasonNotReached
		}
	}
}

// invoke runs a single module inside its isolation boundary: a wall-clock
// ceiling independent of any per-request timeout, and panic capture.
func (o *Orchestrator) invoke(ctx context.Context, mod discovery.Module) *types.TestResult {
	if o.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = o.cfg.Tracer.Start(ctx, fmt.Sprintf("module %s", mod.Meta.ID()))
		defer span.End()
	}

	o.log.Info("Running module", "module", mod.Meta.Name)
	start := time.Now()

	attemptsBefore := 0
	if c := o.cfg.Context.Client(); c != nil {
		attemptsBefore = c.AttemptCount()
	}

	mctx, cancel := context.WithTimeout(ctx, o.cfg.ModuleTimeout)
	defer cancel()
	o.cfg.Context.Bind(mctx)
	defer o.cfg.Context.Bind(context.Background())

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("module panic: %v\n%s", rec, debug.Stack())
			}
		}()
		done <- mod.Entry(o.cfg.Context)
	}()

	var err error
	select {
	case err = <-done:
	case <-mctx.Done():
		// The module goroutine unwinds at its next request; requests issued
		// through the bound context fail once the deadline passes.
		err = fmt.Errorf("module exceeded wall-clock ceiling of %s", o.cfg.ModuleTimeout)
	}

	result := classify(mod.Meta, err)
	result.Start = start
	result.Duration = time.Since(start)
	if c := o.cfg.Context.Client(); c != nil {
		result.Attempts = c.AttemptCount() - attemptsBefore
	}

	o.log.Info("Module finished",
		"module", mod.Meta.Name,
		"status", result.Status,
		"duration", result.Duration)
	return result
}

// classify maps a module invocation outcome onto the explicit result
// variants: nil return is Passed, the skip signal is Skipped, an unmet
// expectation is Failed, and anything else is Error.
func classify(meta types.ModuleDescriptor, err error) *types.TestResult {
	result := &types.TestResult{Metadata: meta}
	var skipErr *types.SkipError
	switch {
	case err == nil:
		result.Status = types.TestStatusPass
	case errors.As(err, &skipErr):
		result.Status = types.TestStatusSkip
		result.Reason = skipErr.Reason
	case types.IsAssertionFailure(err):
		result.Status = types.TestStatusFail
		result.Error = err
	default:
		result.Status = types.TestStatusError
		result.Error = err
	}
	return result
}

func (o *Orchestrator) skipResult(mod discovery.Module, reason string) *types.TestResult {
	return &types.TestResult{
		Metadata: mod.Meta,
		Status:   types.TestStatusSkip,
		Reason:   reason,
		Start:    time.Now(),
	}
}

// checkHealth probes the service's health endpoint before any module runs.
// Services without a configured endpoint are assumed reachable.
func (o *Orchestrator) checkHealth(ctx context.Context) error {
	endpoint := o.cfg.Service.HealthEndpoint
	if endpoint == "" || o.cfg.Context.Client() == nil {
		return nil
	}

	resp, err := o.cfg.Context.Client().Get(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.Status < http.StatusOK || resp.Status >= http.StatusMultipleChoices {
		return fmt.Errorf("health check returned status %d", resp.Status)
	}
	return nil
}
