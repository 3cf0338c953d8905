package metrics

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordIngest(t *testing.T) {
	c := NewCollector()

	c.RecordIngest("success", 5*time.Millisecond)
	c.RecordIngest("success", 2*time.Millisecond)
	c.RecordIngest("validation_error", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.IngestRequests.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.IngestRequests.WithLabelValues("validation_error")))
}

func TestCollector_ValidationPassRate(t *testing.T) {
	c := NewCollector()

	c.RecordValidation(true)
	c.RecordValidation(true)
	c.RecordValidation(true)
	c.RecordValidation(false, "negative_stock")

	assert.InDelta(t, 0.75, testutil.ToFloat64(c.ValidationPassRate), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ValidationFailures.WithLabelValues("negative_stock")))
}

func TestCollector_ValidationCountsEveryViolationType(t *testing.T) {
	c := NewCollector()

	c.RecordValidation(false, "negative_stock", "invalid_timestamp")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ValidationFailures.WithLabelValues("negative_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ValidationFailures.WithLabelValues("invalid_timestamp")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ValidationPassRate),
		"one record, one failure against the pass rate")
}

func TestCollector_RecordDrift(t *testing.T) {
	c := NewCollector()

	c.RecordDrift("price", 0.42, true, "high")
	c.RecordDrift("stock", 0.05, false, "medium")

	assert.Equal(t, 0.42, testutil.ToFloat64(c.DriftScorePrice))
	assert.Equal(t, 0.05, testutil.ToFloat64(c.DriftScoreStock))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DriftDetections.WithLabelValues("price", "high")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.DriftDetections.WithLabelValues("stock", "medium")),
		"undetected comparisons only move the gauge")
}

func TestCollector_RecordAnomalyAndAlert(t *testing.T) {
	c := NewCollector()

	c.RecordAnomaly(-0.6, true, "critical")
	c.RecordAnomaly(-0.05, false, "medium")
	c.RecordAlert("critical", "anomaly", 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.AnomalyDetections.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AlertsTotal.WithLabelValues("critical", "anomaly")))
}

func TestCollector_SetActiveAlertsZeroesStaleCombos(t *testing.T) {
	c := NewCollector()

	c.SetActiveAlerts(map[string]map[string]int{
		"critical": {"drift": 2},
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ActiveAlerts.WithLabelValues("critical", "drift")))

	c.SetActiveAlerts(map[string]map[string]int{
		"high": {"anomaly": 1},
	})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ActiveAlerts.WithLabelValues("critical", "drift")),
		"resolved combinations drop back to zero")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActiveAlerts.WithLabelValues("high", "anomaly")))
}

func TestCollector_RecordsProcessedValue(t *testing.T) {
	c := NewCollector()

	assert.Equal(t, 0.0, c.RecordsProcessedValue())
	c.RecordsProcessed.Inc()
	c.RecordsProcessed.Inc()
	assert.Equal(t, 2.0, c.RecordsProcessedValue())
}

func TestCollector_HandlerExposesContractualNames(t *testing.T) {
	c := NewCollector()
	c.RecordIngest("success", time.Millisecond)
	c.RecordValidation(true)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	require.Equal(t, 200, rr.Code)
	for _, name := range []string{
		"ingest_requests_total",
		"validation_pass_rate",
		"ingest_latency_seconds",
		"records_processed_total",
	} {
		assert.Contains(t, body, name)
	}
}

func TestCollector_RateSamplerUpdatesGauge(t *testing.T) {
	c := NewCollector()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.StartRateSampler(ctx, 20*time.Millisecond)
	for i := 0; i < 10; i++ {
		c.RecordsProcessed.Inc()
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(c.RecordsPerSecond) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestCollector_ConcurrentValidation(t *testing.T) {
	c := NewCollector()

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				c.RecordValidation(i%2 == 0, "unit_error")
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	assert.InDelta(t, 0.5, testutil.ToFloat64(c.ValidationPassRate), 0.02)
}
