package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/servicelab/svc-acceptor/reporting"
	"github.com/servicelab/svc-acceptor/runner"
)

// ReportProvider exposes the current run's report, partial while the run is
// in flight. A nil report means no run has started.
type ReportProvider interface {
	Snapshot() *runner.RunReport
}

// StatusServer serves run status, the latest report and Prometheus metrics
// over HTTP while the acceptor runs.
type StatusServer struct {
	provider ReportProvider
	server   *http.Server
	log      log.Logger
}

// NewStatusServer creates a status server bound to the given provider.
func NewStatusServer(provider ReportProvider, logger log.Logger) *StatusServer {
	if logger == nil {
		logger = log.New()
	}
	return &StatusServer{
		provider: provider,
		log:      logger.New("component", "status_server"),
	}
}

// Start begins listening on addr. It blocks until the server stops.
func (s *StatusServer) Start(addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	s.server = &http.Server{
		Handler:           c.Handler(r),
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("Status server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("OK")) //nolint:errcheck
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	report := s.provider.Snapshot()
	status := map[string]any{"running": false}
	if report != nil {
		status = map[string]any{
			"running":  !report.Complete,
			"run_id":   report.RunID,
			"status":   string(report.Status),
			"total":    report.Stats.Total,
			"passed":   report.Stats.Passed,
			"failed":   report.Stats.Failed,
			"skipped":  report.Stats.Skipped,
			"errored":  report.Stats.Errored,
			"duration": report.Duration.String(),
		}
	}
	s.writeJSON(w, status)
}

func (s *StatusServer) handleReport(w http.ResponseWriter, _ *http.Request) {
	report := s.provider.Snapshot()
	if report == nil {
		http.Error(w, `{"error":"no run has started"}`, http.StatusNotFound)
		return
	}

	formatter := reporting.JSONFormatter{Indent: true}
	out, err := formatter.Format(report)
	if err != nil {
		s.log.Error("Formatting report failed", "error", err)
		http.Error(w, `{"error":"formatting report failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(out)) //nolint:errcheck
}

func (s *StatusServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Encoding response failed", "error", err)
	}
}
