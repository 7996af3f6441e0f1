package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcome labels.
const (
	OutcomeArchived  = "archived"
	OutcomeTransient = "transient_error"
	OutcomePermanent = "permanent_error"
)

// MetricsService encapsulates Prometheus instrumentation for the
// archival pipeline and the HTTP surface.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	submissionTotal    *prometheus.CounterVec
	submissionDuration prometheus.Observer
	sweepRuns          prometheus.Counter
	sweepRequeued      prometheus.Counter
	leaseRefused       prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	submissionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_submissions_total",
		Help: "Archive submissions by outcome",
	}, []string{"outcome"})

	submissionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_submission_duration_seconds",
		Help:    "Duration of archive service submissions",
		Buckets: prometheus.DefBuckets,
	})

	sweepRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archive_sweep_runs_total",
		Help: "Repair sweep executions",
	})

	sweepRequeued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archive_sweep_requeued_total",
		Help: "Media re-queued by the repair sweep",
	})

	leaseRefused := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archive_lease_refused_total",
		Help: "Submissions refused because the per-asset lease was held",
	})

	registry.MustRegister(requestDuration, requestTotal, submissionTotal,
		submissionDuration, sweepRuns, sweepRequeued, leaseRefused)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		submissionTotal:    submissionTotal,
		submissionDuration: submissionDuration,
		sweepRuns:          sweepRuns,
		sweepRequeued:      sweepRequeued,
		leaseRefused:       leaseRefused,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if s == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveSubmission records one archive submission attempt.
func (s *MetricsService) ObserveSubmission(outcome string, duration time.Duration) {
	if s == nil {
		return
	}
	s.submissionTotal.WithLabelValues(outcome).Inc()
	s.submissionDuration.Observe(duration.Seconds())
}

// ObserveSweep records one repair sweep run.
func (s *MetricsService) ObserveSweep(requeued int) {
	if s == nil {
		return
	}
	s.sweepRuns.Inc()
	s.sweepRequeued.Add(float64(requeued))
}

// ObserveLeaseRefused records a submission skipped because the asset
// was already in progress.
func (s *MetricsService) ObserveLeaseRefused() {
	if s == nil {
		return
	}
	s.leaseRefused.Inc()
}
