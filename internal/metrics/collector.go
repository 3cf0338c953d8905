package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Collector holds the Prometheus series for the guardrail service. The
// series names and labels are contractual: dashboards and recording rules
// depend on them.
type Collector struct {
	registry *prometheus.Registry

	IngestRequests     *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	DriftDetections    *prometheus.CounterVec
	AnomalyDetections  *prometheus.CounterVec
	AlertsTotal        *prometheus.CounterVec
	RecordsProcessed   prometheus.Counter
	ProcessingErrors   *prometheus.CounterVec

	ValidationPassRate prometheus.Gauge
	DriftScorePrice    prometheus.Gauge
	DriftScoreStock    prometheus.Gauge
	ActiveAlerts       *prometheus.GaugeVec
	RecordsPerSecond   prometheus.Gauge

	IngestLatency prometheus.Histogram
	AnomalyScore  prometheus.Histogram
	AlertLatency  prometheus.Histogram

	passed, validated atomic.Uint64
}

// NewCollector creates a collector with all series registered on a private
// registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		IngestRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_requests_total",
				Help: "Total number of ingest requests by outcome",
			},
			[]string{"status"},
		),
		ValidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_failures_total",
				Help: "Total contract validation failures by violation type",
			},
			[]string{"violation_type"},
		),
		DriftDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drift_detections_total",
				Help: "Total drift detections by metric and severity",
			},
			[]string{"metric_type", "severity"},
		),
		AnomalyDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anomaly_detections_total",
				Help: "Total anomaly detections by severity",
			},
			[]string{"severity"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_total",
				Help: "Total alerts created by severity and type",
			},
			[]string{"severity", "alert_type"},
		),
		RecordsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "records_processed_total",
				Help: "Total telemetry records processed",
			},
		),
		ProcessingErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processing_errors_total",
				Help: "Total unexpected processing errors by type",
			},
			[]string{"error_type"},
		),

		ValidationPassRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "validation_pass_rate",
				Help: "Fraction of records passing contract validation (0-1)",
			},
		),
		DriftScorePrice: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "drift_score_price",
				Help: "Most recent price drift PSI score",
			},
		),
		DriftScoreStock: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "drift_score_stock",
				Help: "Most recent stock drift PSI score",
			},
		),
		ActiveAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_alerts",
				Help: "Unresolved alerts by severity and type",
			},
			[]string{"severity", "alert_type"},
		),
		RecordsPerSecond: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "records_per_second",
				Help: "Processing rate sampled over the last interval",
			},
		),

		IngestLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_latency_seconds",
				Help:    "Ingest request latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
		),
		AnomalyScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "anomaly_score",
				Help:    "Raw anomaly scores (lower means more anomalous)",
				Buckets: []float64{-1.0, -0.5, -0.3, -0.1, 0.0, 0.1, 0.3, 0.5, 1.0},
			},
		),
		AlertLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alert_latency_seconds",
				Help:    "Time from event to alert creation in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
		),
	}

	c.registry.MustRegister(
		c.IngestRequests,
		c.ValidationFailures,
		c.DriftDetections,
		c.AnomalyDetections,
		c.AlertsTotal,
		c.RecordsProcessed,
		c.ProcessingErrors,
		c.ValidationPassRate,
		c.DriftScorePrice,
		c.DriftScoreStock,
		c.ActiveAlerts,
		c.RecordsPerSecond,
		c.IngestLatency,
		c.AnomalyScore,
		c.AlertLatency,
	)

	return c
}

// Handler returns the Prometheus text exposition handler for this registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordIngest records one ingest request and its latency.
func (c *Collector) RecordIngest(status string, latency time.Duration) {
	c.IngestRequests.WithLabelValues(status).Inc()
	c.IngestLatency.Observe(latency.Seconds())
}

// RecordValidation updates the running pass-rate gauge and, on failure, the
// per-type failure counter. The pass rate counts records once; a record
// carrying several violations increments one counter per type.
func (c *Collector) RecordValidation(passed bool, violationTypes ...string) {
	total := c.validated.Add(1)
	ok := c.passed.Load()
	if passed {
		ok = c.passed.Add(1)
	} else {
		for _, vt := range violationTypes {
			if vt != "" {
				c.ValidationFailures.WithLabelValues(vt).Inc()
			}
		}
	}
	c.ValidationPassRate.Set(float64(ok) / float64(total))
}

// RecordDrift updates the PSI gauge for the metric and, when drift was
// detected, the detection counter.
func (c *Collector) RecordDrift(metricType string, psi float64, detected bool, severity string) {
	switch metricType {
	case "price":
		c.DriftScorePrice.Set(psi)
	case "stock":
		c.DriftScoreStock.Set(psi)
	}
	if detected {
		c.DriftDetections.WithLabelValues(metricType, severity).Inc()
	}
}

// RecordAnomaly observes a raw anomaly score and counts detections.
func (c *Collector) RecordAnomaly(score float64, detected bool, severity string) {
	c.AnomalyScore.Observe(score)
	if detected {
		c.AnomalyDetections.WithLabelValues(severity).Inc()
	}
}

// RecordAlert counts a created alert and its event-to-alert latency.
func (c *Collector) RecordAlert(severity, alertType string, latency time.Duration) {
	c.AlertsTotal.WithLabelValues(severity, alertType).Inc()
	c.AlertLatency.Observe(latency.Seconds())
}

// SetActiveAlerts replaces the active-alert gauge with fresh counts. All
// known label combinations are zeroed first so resolved alerts disappear.
func (c *Collector) SetActiveAlerts(counts map[string]map[string]int) {
	severities := []string{"low", "medium", "high", "critical"}
	types := []string{"contract_violation", "drift", "anomaly", "conversion_deviation"}
	for _, sev := range severities {
		for _, at := range types {
			c.ActiveAlerts.WithLabelValues(sev, at).Set(0)
		}
	}
	for sev, byType := range counts {
		for at, n := range byType {
			c.ActiveAlerts.WithLabelValues(sev, at).Set(float64(n))
		}
	}
}

// RecordsProcessedValue reads the current value of records_processed_total
// back out of the counter.
func (c *Collector) RecordsProcessedValue() float64 {
	var m dto.Metric
	if err := c.RecordsProcessed.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// StartRateSampler launches a goroutine that updates the records_per_second
// gauge every interval by sampling the processed counter, keeping rate
// computation off the request path. It stops when ctx is cancelled.
func (c *Collector) StartRateSampler(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := c.RecordsProcessedValue()
		lastAt := time.Now()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				current := c.RecordsProcessedValue()
				elapsed := now.Sub(lastAt).Seconds()
				if elapsed > 0 {
					c.RecordsPerSecond.Set((current - last) / elapsed)
				}
				last = current
				lastAt = now
			}
		}
	}()
	log.Debug().Dur("interval", interval).Msg("records-per-second sampler started")
}
