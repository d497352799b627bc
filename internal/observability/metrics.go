package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	adminRequestsTotal      *prometheus.CounterVec
	adminLatencySeconds     *prometheus.HistogramVec
	adminErrorsTotal        *prometheus.CounterVec
	statusTransitionsTotal  *prometheus.CounterVec
	tokensIssuedTotal       prometheus.Counter
	assessmentOutcomesTotal *prometheus.CounterVec
	oracleFallbacksTotal    *prometheus.CounterVec
	notificationsTotal      *prometheus.CounterVec
	followupActionsTotal    *prometheus.CounterVec
	queueTasksTotal         *prometheus.CounterVec
	uploadRejectedTotal     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the pipeline workers.
func RegisterMetrics() {
	registerOnce.Do(func() {
		adminRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_requests_total",
			Help: "Total number of admin API requests served.",
		}, []string{"method", "route", "status"})

		adminLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "admin_latency_seconds",
			Help:    "Latency distribution for admin API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		adminErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_errors_total",
			Help: "Total number of error responses returned by admin endpoints.",
		}, []string{"method", "route", "status"})

		statusTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_application_transitions_total",
			Help: "Application status transitions applied, by target status.",
		}, []string{"to"})

		tokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screening_test_tokens_issued_total",
			Help: "Test access tokens issued by the matching engine.",
		})

		assessmentOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_assessment_outcomes_total",
			Help: "Routing outcomes of prescreens and test assessments.",
		}, []string{"stage", "outcome"})

		oracleFallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_oracle_fallbacks_total",
			Help: "Scoring requests that exhausted their retry and fell back to human review.",
		}, []string{"kind"})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_notifications_total",
			Help: "Notification attempts by template and result.",
		}, []string{"template", "result"})

		followupActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_followup_actions_total",
			Help: "Rows acted upon by the follow-up scheduler, by stage.",
		}, []string{"stage"})

		queueTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_queue_tasks_total",
			Help: "Pipeline tasks handled by queue workers.",
		}, []string{"driver", "kind", "result"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_upload_rejected_total",
			Help: "Test file uploads rejected, by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(
			adminRequestsTotal, adminLatencySeconds, adminErrorsTotal,
			statusTransitionsTotal, tokensIssuedTotal, assessmentOutcomesTotal,
			oracleFallbacksTotal, notificationsTotal, followupActionsTotal,
			queueTasksTotal, uploadRejectedTotal,
		)
	})
}

// AdminRequests exposes the counter for admin requests.
func AdminRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return adminRequestsTotal
}

// AdminLatency exposes the latency histogram for admin requests.
func AdminLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return adminLatencySeconds
}

// AdminErrors exposes the counter for admin error responses.
func AdminErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return adminErrorsTotal
}

// StatusTransitions counts application status changes.
func StatusTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return statusTransitionsTotal
}

// TokensIssued counts issued test tokens.
func TokensIssued() prometheus.Counter {
	RegisterMetrics()
	return tokensIssuedTotal
}

// AssessmentOutcomes counts routing decisions taken from judgments.
func AssessmentOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return assessmentOutcomesTotal
}

// OracleFallbacks counts fallback judgments.
func OracleFallbacks() *prometheus.CounterVec {
	RegisterMetrics()
	return oracleFallbacksTotal
}

// Notifications counts notification attempts.
func Notifications() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

// FollowupActions counts scheduler side effects.
func FollowupActions() *prometheus.CounterVec {
	RegisterMetrics()
	return followupActionsTotal
}

// QueueTasks counts tasks processed by queue workers.
func QueueTasks() *prometheus.CounterVec {
	RegisterMetrics()
	return queueTasksTotal
}

// UploadRejected counts rejected uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}
