package runner

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/servicelab/svc-acceptor/types"
)

// resultEvent carries one module outcome, or a service-level failure, from a
// worker to the aggregation goroutine.
type resultEvent struct {
	service        string
	result         *types.TestResult
	unavailableErr error
}

// Aggregator is the single ingestion point for results. Workers are
// concurrent producers on its channel; one goroutine consumes events and
// mutates the report, making the single-writer invariant structural rather
// than a locking convention. Snapshot provides the mid-run partial view.
type Aggregator struct {
	mu     sync.RWMutex
	ch     chan resultEvent
	report *RunReport
	done   chan struct{}
	log    log.Logger
}

// NewAggregator creates an aggregator with a ServiceReport slot pre-created
// for every scheduled service, so the final report accounts for services
// even when no result ever arrives for them.
func NewAggregator(runID string, services []types.ServiceDescriptor, start time.Time, logger log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New()
	}
	report := &RunReport{
		RunID:    runID,
		Services: make(map[string]*ServiceReport, len(services)),
		Start:    start,
	}
	for _, svc := range services {
		report.Services[svc.Name] = &ServiceReport{Name: svc.Name}
	}
	return &Aggregator{
		ch:     make(chan resultEvent, 2*len(services)+16),
		report: report,
		done:   make(chan struct{}),
		log:    logger.New("component", "aggregator"),
	}
}

// Start launches the aggregation goroutine.
func (a *Aggregator) Start() {
	go func() {
		defer close(a.done)
		for ev := range a.ch {
			a.apply(ev)
		}
	}()
}

func (a *Aggregator) apply(ev resultEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	svc := a.report.Services[ev.service]
	if svc == nil {
		svc = &ServiceReport{Name: ev.service}
		a.report.Services[ev.service] = svc
	}

	if ev.unavailableErr != nil {
		svc.Unavailable = true
		svc.Err = ev.unavailableErr
		return
	}

	svc.Results = append(svc.Results, ev.result)
	svc.Stats.record(ev.result.Status)
	svc.Duration += ev.result.Duration
	a.report.Stats.record(ev.result.Status)
}

// Ingest submits one module result. Safe for concurrent use by workers.
func (a *Aggregator) Ingest(result *types.TestResult) {
	a.ch <- resultEvent{service: result.Metadata.Service, result: result}
}

// MarkUnavailable records a service-level failure (discovery error, client
// construction failure). The service keeps zero module results.
func (a *Aggregator) MarkUnavailable(service string, err error) {
	a.log.Warn("Service marked unavailable", "service", service, "error", err)
	a.ch <- resultEvent{service: service, unavailableErr: err}
}

// Close signals that no further events will be produced. Callers must not
// Ingest after Close.
func (a *Aggregator) Close() {
	close(a.ch)
}

// Wait blocks until every submitted event has been applied, then finalizes
// and returns the report. Call after Close.
func (a *Aggregator) Wait() *RunReport {
	<-a.done

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, svc := range a.report.Services {
		svc.Status = determineServiceStatus(svc)
	}
	a.report.Status = determineRunStatus(a.report)
	a.report.Duration = time.Since(a.report.Start)
	a.report.Complete = true
	return a.report
}

// Snapshot returns a copy of the report as currently aggregated. It is safe
// to call while the run is in flight; the returned report is partial until
// Complete is set.
func (a *Aggregator) Snapshot() *RunReport {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := &RunReport{
		RunID:    a.report.RunID,
		Services: make(map[string]*ServiceReport, len(a.report.Services)),
		Stats:    a.report.Stats,
		Status:   a.report.Status,
		Duration: a.report.Duration,
		Start:    a.report.Start,
		Complete: a.report.Complete,
	}
	if !snap.Complete {
		snap.Duration = time.Since(a.report.Start)
	}
	for name, svc := range a.report.Services {
		results := make([]*types.TestResult, len(svc.Results))
		copy(results, svc.Results)
		status := svc.Status
		if !snap.Complete {
			status = determineServiceStatus(svc)
		}
		snap.Services[name] = &ServiceReport{
			Name:        svc.Name,
			Results:     results,
			Stats:       svc.Stats,
			Status:      status,
			Duration:    svc.Duration,
			Unavailable: svc.Unavailable,
			Err:         svc.Err,
		}
	}
	if !snap.Complete {
		snap.Status = determineRunStatus(snap)
	}
	return snap
}
