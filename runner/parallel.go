package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/servicelab/svc-acceptor/engine"
	"github.com/servicelab/svc-acceptor/metrics"
	"github.com/servicelab/svc-acceptor/types"
)

// dispatch feeds service runs to a pool of worker goroutines and blocks until
// every dispatched run has finished.
func (r *Runner) dispatch(ctx context.Context, logger log.Logger, runID string, runs []serviceRun, agg *Aggregator) {
	work := make(chan serviceRun)

	var group errgroup.Group
	for i := 0; i < r.cfg.Parallelism; i++ {
		worker := logger.New("worker", i)
		group.Go(func() error {
			for run := range work {
				r.runService(ctx, worker, runID, run, agg)
			}
			return nil
		})
	}

	// The feeder stops handing out work once cancellation is observed;
	// services never dispatched still get one skipped result per module.
	for _, run := range runs {
		if r.cancelled.Load() || ctx.Err() != nil {
			for _, mod := range run.modules {
				agg.Ingest(&types.TestResult{
					Metadata: mod.Meta,
					Status:   types.TestStatusSkip,
					Reason:   ReasonCancelled,
					Start:    time.Now(),
				})
			}
			continue
		}
		work <- run
	}
	close(work)

	// Workers never return errors; panics are recovered in runService.
	_ = group.Wait()
}

// runService executes one service's module sequence on the calling worker.
// A panic escaping the orchestrator is the runner's bug, not the module's,
// but it still must not take down sibling workers.
func (r *Runner) runService(ctx context.Context, logger log.Logger, runID string, run serviceRun, agg *Aggregator) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Service run panicked", "service", run.service.Name, "panic", rec)
			metrics.RecordError("service_run_panic")
			agg.MarkUnavailable(run.service.Name, fmt.Errorf("service run panicked: %v", rec))
		}
	}()

	c, err := r.cfg.NewClient(run.service, logger)
	if err != nil {
		metrics.RecordErrorDetails("client_setup", err)
		agg.MarkUnavailable(run.service.Name, fmt.Errorf("creating client: %w", err))
		return
	}

	ectx := engine.NewContext(run.service, c, logger.New("service", run.service.Name))
	orch := NewOrchestrator(OrchestratorConfig{
		Service:       run.service,
		Modules:       run.modules,
		Context:       ectx,
		RunID:         runID,
		FailFast:      r.cfg.FailFast,
		DryRun:        r.cfg.DryRun,
		ModuleTimeout: r.cfg.ModuleTimeout,
		Cancelled:     &r.cancelled,
		Log:           logger,
		Tracer:        r.tracer,
	})
	orch.Run(ctx, agg.Ingest)
}
