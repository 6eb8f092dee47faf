package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/servicelab/svc-acceptor/types"
)

const (
	MetricsNamespace = "acceptor"
)

var (
	Debug                bool = false
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	modulesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "modules_total",
		Help:      "Count of module executions",
	}, []string{
		"service",
		"run_id",
		"module",
		"result",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "http_requests_total",
		Help:      "Count of HTTP request attempts issued by request clients",
	}, []string{
		"service",
		"method",
		"status",
	})

	requestRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "http_request_retries_total",
		Help:      "Count of HTTP request retries",
	}, []string{
		"service",
	})

	rateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "rate_limit_waits_total",
		Help:      "Count of bounded waits that exhausted the rate limiter budget",
	}, []string{
		"service",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of acceptance runs",
	}, []string{
		"run_id",
		"result",
	})

	runModulesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_modules_total",
		Help:      "Total number of modules scheduled in a run",
	}, []string{
		"run_id",
	})

	runModulesPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_modules_passed",
		Help:      "Number of passed modules in a run",
	}, []string{
		"run_id",
	})

	runModulesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_modules_failed",
		Help:      "Number of failed modules in a run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of acceptance runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordModule records the outcome of a single module execution.
func RecordModule(service, runID, module string, result types.TestStatus) {
	if !isValidResult(result) {
		log.Error("RecordModule - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "modules_total",
			"service", service,
			"run_id", runID,
			"module", module,
			"result", result)
	}
	modulesTotal.WithLabelValues(service, runID, module, string(result)).Inc()
}

// RecordRequest records one HTTP attempt. A status of zero means the attempt
// failed before a response was received.
func RecordRequest(service, method string, status int) {
	label := "none"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	requestsTotal.WithLabelValues(service, method, label).Inc()
}

// RecordRetry records a retry of a request against a service.
func RecordRetry(service string) {
	requestRetriesTotal.WithLabelValues(service).Inc()
}

// RecordRateLimitExceeded records an exhausted bounded wait for a token.
func RecordRateLimitExceeded(service string) {
	rateLimitWaitsTotal.WithLabelValues(service).Inc()
}

// RecordRun records the aggregate outcome of a whole run.
func RecordRun(runID string, result types.TestStatus, total, passed, failed int, duration time.Duration) {
	runResults.WithLabelValues(runID, string(result)).Set(1)
	runModulesTotal.WithLabelValues(runID).Add(float64(total))
	runModulesPassed.WithLabelValues(runID).Add(float64(passed))
	runModulesFailed.WithLabelValues(runID).Add(float64(failed))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
