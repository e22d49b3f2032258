package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	casesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cases_created_total",
			Help: "Total number of cases created",
		},
		[]string{"encounter_type", "payer"},
	)

	caseStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_status_changed_total",
			Help: "Total number of case status changes",
		},
		[]string{"from_status", "to_status"},
	)

	agentTasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tasks_completed_total",
			Help: "Total number of completed agent tasks",
		},
		[]string{"kind", "tier"},
	)

	agentTasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tasks_failed_total",
			Help: "Total number of failed agent tasks",
		},
		[]string{"kind", "reason"},
	)

	agentTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_task_duration_seconds",
			Help:    "Agent task duration from start to terminal state",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	slaBreaches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_breaches_total",
			Help: "Total number of SLA breaches flagged",
		},
		[]string{"payer"},
	)

	reconciliationRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_records_total",
			Help: "Total number of reconciliation records by classification",
		},
		[]string{"classification"},
	)

	reconciliationEntryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_entry_errors_total",
			Help: "Total number of per-entry reconciliation failures",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordCaseCreated records a case creation
func RecordCaseCreated(encounterType, payerCode string) {
	casesCreated.WithLabelValues(encounterType, payerCode).Inc()
}

// RecordCaseStatusChange records a case status change
func RecordCaseStatusChange(fromStatus, toStatus string) {
	caseStatusChanged.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordTaskCompleted records an agent task completion and its confidence tier
func RecordTaskCompleted(kind, tier string, duration time.Duration) {
	agentTasksCompleted.WithLabelValues(kind, tier).Inc()
	agentTaskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordTaskFailed records an agent task failure
func RecordTaskFailed(kind, reason string, duration time.Duration) {
	agentTasksFailed.WithLabelValues(kind, reason).Inc()
	agentTaskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSLABreach records an SLA breach flag
func RecordSLABreach(payerCode string) {
	slaBreaches.WithLabelValues(payerCode).Inc()
}

// RecordReconciliation records a classified reconciliation record
func RecordReconciliation(classification string) {
	reconciliationRecords.WithLabelValues(classification).Inc()
}

// RecordReconciliationEntryError records a per-entry batch failure
func RecordReconciliationEntryError() {
	reconciliationEntryErrors.Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
