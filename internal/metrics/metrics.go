package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for relaydesk
type Metrics struct {
	// Delivery
	SendsTotal          *prometheus.CounterVec
	SendDurationSeconds *prometheus.HistogramVec
	PreviewsTotal       prometheus.Counter

	// Attachments
	AttachmentsUploadedTotal *prometheus.CounterVec
	AttachmentsDroppedTotal  *prometheus.CounterVec

	// SMTP configuration
	SMTPConfigOpsTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	// System metrics
	UptimeSeconds prometheus.Gauge
	Goroutines    prometheus.Gauge

	registry  *prometheus.Registry
	startTime time.Time
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaydesk_sends_total",
				Help: "Send attempts forwarded to the relay, by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		SendDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relaydesk_send_duration_seconds",
				Help:    "Relay send latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		PreviewsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relaydesk_previews_total",
				Help: "Total number of rendered previews",
			},
		),
		AttachmentsUploadedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaydesk_attachments_uploaded_total",
				Help: "Uploaded attachment files, by result",
			},
			[]string{"result"},
		),
		AttachmentsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaydesk_attachments_dropped_total",
				Help: "Attachments dropped while resolving a send, by reason",
			},
			[]string{"reason"},
		),
		SMTPConfigOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaydesk_smtp_config_operations_total",
				Help: "SMTP configuration operations, by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaydesk_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relaydesk_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaydesk_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),
		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaydesk_ratelimit_exceeded_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"level"},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relaydesk_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relaydesk_goroutines",
				Help: "Number of active goroutines",
			},
		),
		registry:  reg,
		startTime: time.Now(),
	}

	reg.MustRegister(
		m.SendsTotal,
		m.SendDurationSeconds,
		m.PreviewsTotal,
		m.AttachmentsUploadedTotal,
		m.AttachmentsDroppedTotal,
		m.SMTPConfigOpsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.RateLimitExceededTotal,
		m.UptimeSeconds,
		m.Goroutines,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// UpdateSystem refreshes uptime and goroutine gauges
func (m *Metrics) UpdateSystem() {
	m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
	m.Goroutines.Set(float64(runtime.NumGoroutine()))
}

// Run updates system gauges every interval until ctx is done
func (m *Metrics) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.UpdateSystem()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateSystem()
		}
	}
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// ObserveSend records a relay send outcome
func ObserveSend(mode, outcome string, d time.Duration) {
	m := Global()
	if m != nil {
		m.SendsTotal.WithLabelValues(mode, outcome).Inc()
		m.SendDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// IncPreviews increments the preview counter
func IncPreviews() {
	m := Global()
	if m != nil {
		m.PreviewsTotal.Inc()
	}
}

// IncAttachmentsUploaded counts an uploaded or failed file
func IncAttachmentsUploaded(result string) {
	m := Global()
	if m != nil {
		m.AttachmentsUploadedTotal.WithLabelValues(result).Inc()
	}
}

// IncAttachmentsDropped counts an attachment dropped during resolution
func IncAttachmentsDropped(reason string) {
	m := Global()
	if m != nil {
		m.AttachmentsDroppedTotal.WithLabelValues(reason).Inc()
	}
}

// IncSMTPConfigOp counts an SMTP configuration operation
func IncSMTPConfigOp(operation, outcome string) {
	m := Global()
	if m != nil {
		m.SMTPConfigOpsTotal.WithLabelValues(operation, outcome).Inc()
	}
}

// IncRateLimitExceeded increments rate limit exceeded counter
func IncRateLimitExceeded(level string) {
	m := Global()
	if m != nil {
		m.RateLimitExceededTotal.WithLabelValues(level).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
