package runner

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/servicelab/svc-acceptor/client"
	"github.com/servicelab/svc-acceptor/discovery"
	"github.com/servicelab/svc-acceptor/metrics"
	"github.com/servicelab/svc-acceptor/types"
)

const defaultParallelism = 1

// Config holds configuration for a Runner.
type Config struct {
	Services      []types.ServiceDescriptor
	Discoverer    *discovery.Discoverer
	Parallelism   int  // concurrent service runs, defaulted to 1
	FailFast      bool // halt a service's sequence on its first fail/error
	DryRun        bool
	ServiceFilter string // run only the named service when non-empty
	ModuleFilter  string // run only modules whose name contains this substring
	ModuleTimeout time.Duration
	Log           log.Logger

	// NewClient builds the request client for one service run. Tests swap in
	// clients backed by a stub transport.
	NewClient func(svc types.ServiceDescriptor, logger log.Logger) (*client.Client, error)
}

// Runner executes one run: it discovers every configured service's modules,
// dispatches whole service runs onto a bounded worker pool, and aggregates
// results. Parallelism applies across services only; within a service the
// module sequence stays strictly ordered.
type Runner struct {
	cfg       Config
	log       log.Logger
	tracer    trace.Tracer
	cancelled atomic.Bool
	agg       atomic.Pointer[Aggregator]
}

// serviceRun is one unit of work for the pool: a service with its discovered
// module sequence, or the discovery failure that prevented it.
type serviceRun struct {
	service types.ServiceDescriptor
	modules []discovery.Module
}

// NewRunner creates a runner from the given config.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Discoverer == nil {
		return nil, fmt.Errorf("runner requires a discoverer")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.NewClient == nil {
		cfg.NewClient = func(svc types.ServiceDescriptor, logger log.Logger) (*client.Client, error) {
			return client.New(client.Config{Service: svc, Log: logger})
		}
	}
	return &Runner{
		cfg:    cfg,
		log:    cfg.Log.New("component", "runner"),
		tracer: otel.Tracer("acceptor"),
	}, nil
}

// Cancel requests cooperative cancellation of the current run. In-flight
// modules complete; everything not yet started is reported as skipped.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
}

// Snapshot returns the current run's partial report, or nil when no run has
// started. The status server serves this mid-run.
func (r *Runner) Snapshot() *RunReport {
	agg := r.agg.Load()
	if agg == nil {
		return nil
	}
	return agg.Snapshot()
}

// Run executes one complete run and returns the aggregated report. The
// returned error reflects runner-level failures only; module failures are
// reported through the report's statuses.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	runID := uuid.New().String()
	start := time.Now()
	r.cancelled.Store(false)

	ctx, span := r.tracer.Start(ctx, "acceptance run")
	defer span.End()

	services := r.filterServices()
	logger := r.log.New("run_id", runID)
	logger.Info("Starting run",
		"services", len(services),
		"parallelism", r.cfg.Parallelism,
		"fail_fast", r.cfg.FailFast,
		"dry_run", r.cfg.DryRun)

	agg := NewAggregator(runID, services, start, logger)
	agg.Start()
	r.agg.Store(agg)

	// Discovery happens up front so a malformed module set surfaces before
	// any module runs. A per-service discovery failure sidelines that service
	// without blocking the rest.
	var runs []serviceRun
	for _, svc := range services {
		modules, err := r.cfg.Discoverer.Discover(svc.Name)
		if err != nil {
			metrics.RecordErrorDetails("discovery", err)
			agg.MarkUnavailable(svc.Name, err)
			continue
		}
		modules = r.filterModules(modules)
		runs = append(runs, serviceRun{service: svc, modules: modules})
	}

	r.dispatch(ctx, logger, runID, runs, agg)

	agg.Close()
	report := agg.Wait()

	metrics.RecordRun(runID, report.Status, report.Stats.Total, report.Stats.Passed, report.Stats.Failed, report.Duration)
	logger.Info("Run complete",
		"status", report.Status,
		"total", report.Stats.Total,
		"passed", report.Stats.Passed,
		"failed", report.Stats.Failed,
		"skipped", report.Stats.Skipped,
		"errored", report.Stats.Errored,
		"duration", report.Duration)
	return report, nil
}

func (r *Runner) filterServices() []types.ServiceDescriptor {
	if r.cfg.ServiceFilter == "" {
		return r.cfg.Services
	}
	var out []types.ServiceDescriptor
	for _, svc := range r.cfg.Services {
		if svc.Name == r.cfg.ServiceFilter {
			out = append(out, svc)
		}
	}
	return out
}

func (r *Runner) filterModules(modules []discovery.Module) []discovery.Module {
	if r.cfg.ModuleFilter == "" {
		return modules
	}
	var out []discovery.Module
	for _, mod := range modules {
		if strings.Contains(mod.Meta.Name, r.cfg.ModuleFilter) {
			out = append(out, mod)
		}
	}
	return out
}
