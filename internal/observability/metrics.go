package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spec-kit/msp-sla/internal/domain"
)

const namespace = "msp_sla"

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	scanTickets     *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	scanErrors      prometheus.Counter
	notifications   *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP error responses by route, method and error code.",
		}, []string{"path", "method", "code"}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "escalation_scan_duration_seconds",
			Help:      "Duration of escalation scans.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}),
		scanTickets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_scan_tickets_total",
			Help:      "Tickets handled by escalation scans by outcome.",
		}, []string{"outcome"}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalations by reason.",
		}, []string{"reason"}),
		scanErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_scan_failures_total",
			Help:      "Escalation scans that failed before evaluating tickets.",
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Notification publish attempts by topic and result.",
		}, []string{"topic", "result"}),
	}
}

// RecordRequest counts a request and observes its latency.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// ObserveScan records one finished escalation scan.
func (m *Metrics) ObserveScan(duration time.Duration, checked, escalated, skipped, failed int) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(duration.Seconds())
	m.scanTickets.WithLabelValues("checked").Add(float64(checked))
	m.scanTickets.WithLabelValues("escalated").Add(float64(escalated))
	m.scanTickets.WithLabelValues("skipped").Add(float64(skipped))
	m.scanTickets.WithLabelValues("failed").Add(float64(failed))
}

// RecordEscalation counts an escalation claimed by this process.
func (m *Metrics) RecordEscalation(reason domain.EscalationReason) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(string(reason)).Inc()
}

// RecordScanFailure counts scans that could not load candidates.
func (m *Metrics) RecordScanFailure() {
	if m == nil {
		return
	}
	m.scanErrors.Inc()
}

// RecordNotification counts a publish attempt.
func (m *Metrics) RecordNotification(topic string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(topic, result).Inc()
}
