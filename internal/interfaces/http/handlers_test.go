package http

import (
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wijeratne-a/PriceCanary/internal/alerts"
	"github.com/wijeratne-a/PriceCanary/internal/anomaly"
	"github.com/wijeratne-a/PriceCanary/internal/archive"
	"github.com/wijeratne-a/PriceCanary/internal/config"
	"github.com/wijeratne-a/PriceCanary/internal/contracts"
	"github.com/wijeratne-a/PriceCanary/internal/drift"
	"github.com/wijeratne-a/PriceCanary/internal/kalman"
	"github.com/wijeratne-a/PriceCanary/internal/metrics"
	"github.com/wijeratne-a/PriceCanary/internal/pipeline"
)

func testServer(t *testing.T, mutate func(*config.ServerConfig)) *Server {
	t.Helper()

	arch, err := archive.NewWriter(filepath.Join(t.TempDir(), "violations.csv"))
	require.NoError(t, err)

	collector := metrics.NewCollector()
	pipe := &pipeline.Pipeline{
		Validator: contracts.NewValidator(10.0, 100000.0),
		Drift:     drift.NewDetector(0.2, 0.05, 1000),
		Anomaly:   anomaly.NewDetector(anomaly.Params{Contamination: 0.1, NEstimators: 20, RandomSeed: 42}),
		Kalman:    kalman.NewFilter(kalman.DefaultParams()),
		Alerts:    alerts.NewManager(time.Hour),
		Metrics:   collector,
		Archive:   arch,
	}

	cfg := config.Default().Server
	cfg.Port = 0 // ephemeral; the probe listener picks a free port
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := NewServer(cfg, NewHandlers(pipe, collector))
	require.NoError(t, err)
	return s
}

func ingestBody(sku string, price float64) string {
	return fmt.Sprintf(`{
		"timestamp": %q,
		"sku": %q,
		"price": %g,
		"stock": 100,
		"views": 200,
		"add_to_cart": 30,
		"purchases": 10,
		"referrer": "organic"
	}`, time.Now().Format(time.RFC3339), sku, price)
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *nethttp.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func TestIngest_ValidRecord(t *testing.T) {
	s := testServer(t, nil)

	rr := doJSON(s, "POST", "/ingest", ingestBody("SKU-0001", 49.99))
	require.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Empty(t, res.Violations)
}

func TestIngest_MalformedJSON(t *testing.T) {
	s := testServer(t, nil)

	rr := doJSON(s, "POST", "/ingest", `{"sku": `)
	assert.Equal(t, nethttp.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid JSON body")
}

func TestIngest_SchemaErrorIs422(t *testing.T) {
	s := testServer(t, nil)

	rr := doJSON(s, "POST", "/ingest", ingestBody("", 49.99))
	require.Equal(t, nethttp.StatusUnprocessableEntity, rr.Code)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.False(t, res.Success)
	require.NotEmpty(t, res.Violations)
}

func TestIngest_RateLimit(t *testing.T) {
	s := testServer(t, func(cfg *config.ServerConfig) {
		cfg.IngestRateLimit = 0.001
		cfg.IngestBurst = 1
	})

	first := doJSON(s, "POST", "/ingest", ingestBody("SKU-0001", 49.99))
	assert.Equal(t, nethttp.StatusOK, first.Code)

	second := doJSON(s, "POST", "/ingest", ingestBody("SKU-0001", 49.99))
	assert.Equal(t, nethttp.StatusTooManyRequests, second.Code)
}

func TestAlerts_ListAndFilter(t *testing.T) {
	s := testServer(t, nil)

	// Negative stock creates one contract_violation alert.
	body := strings.Replace(ingestBody("SKU-0002", 49.99), `"stock": 100`, `"stock": -10`, 1)
	rr := doJSON(s, "POST", "/ingest", body)
	require.Equal(t, nethttp.StatusUnprocessableEntity, rr.Code)

	rr = doJSON(s, "GET", "/alerts", "")
	require.Equal(t, nethttp.StatusOK, rr.Code)

	var listing struct {
		Alerts []alerts.Alert `json:"alerts"`
		Total  int            `json:"total"`
		Stats  alerts.Stats   `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	require.Equal(t, 1, listing.Total)
	assert.Equal(t, alerts.TypeContractViolation, listing.Alerts[0].Type)
	assert.Equal(t, "SKU-0002", listing.Alerts[0].SKU)
	assert.Equal(t, 1, listing.Stats.Total)
	assert.Equal(t, 1, listing.Stats.Unresolved)

	rr = doJSON(s, "GET", "/alerts?severity=critical", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	assert.Equal(t, 0, listing.Total, "the negative-stock alert is high, not critical")
	assert.Equal(t, 1, listing.Stats.Total, "stats cover the whole table even when the filter matches nothing")

	rr = doJSON(s, "GET", "/alerts?alert_type=contract_violation", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Total)

	rr = doJSON(s, "GET", "/alerts?alert_type=drift", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	assert.Equal(t, 0, listing.Total)

	rr = doJSON(s, "GET", "/alerts?sku=SKU-0002&resolved=false", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Total)
}

func TestAlerts_AcknowledgeAndResolve(t *testing.T) {
	s := testServer(t, nil)

	body := strings.Replace(ingestBody("SKU-0003", 49.99), `"stock": 100`, `"stock": -1`, 1)
	doJSON(s, "POST", "/ingest", body)

	var listing struct {
		Alerts []alerts.Alert `json:"alerts"`
	}
	rr := doJSON(s, "GET", "/alerts", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	require.NotEmpty(t, listing.Alerts)
	id := listing.Alerts[0].ID

	rr = doJSON(s, "POST", "/alerts/"+id+"/acknowledge", "")
	assert.Equal(t, nethttp.StatusOK, rr.Code)

	rr = doJSON(s, "POST", "/alerts/"+id+"/resolve", "")
	assert.Equal(t, nethttp.StatusOK, rr.Code)

	rr = doJSON(s, "GET", "/alerts", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	require.NotEmpty(t, listing.Alerts)
	assert.True(t, listing.Alerts[0].Acknowledged)
	assert.True(t, listing.Alerts[0].Resolved)
}

func TestAlerts_UnknownIDIs404(t *testing.T) {
	s := testServer(t, nil)

	rr := doJSON(s, "POST", "/alerts/ALERT-20260101-000001/acknowledge", "")
	assert.Equal(t, nethttp.StatusNotFound, rr.Code)

	rr = doJSON(s, "POST", "/alerts/ALERT-20260101-000001/resolve", "")
	assert.Equal(t, nethttp.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "alert not found")
}

func TestAlertStats(t *testing.T) {
	s := testServer(t, nil)

	body := strings.Replace(ingestBody("SKU-0004", 49.99), `"stock": 100`, `"stock": -2`, 1)
	doJSON(s, "POST", "/ingest", body)

	rr := doJSON(s, "GET", "/alerts/stats", "")
	require.Equal(t, nethttp.StatusOK, rr.Code)

	var stats alerts.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Unresolved)
}

func TestHealth(t *testing.T) {
	s := testServer(t, nil)

	rr := doJSON(s, "GET", "/health", "")
	require.Equal(t, nethttp.StatusOK, rr.Code)

	var health struct {
		Status  string `json:"status"`
		Engines struct {
			DriftBaselineReady  bool `json:"drift_baseline_ready"`
			AnomalyModelTrained bool `json:"anomaly_model_trained"`
		} `json:"engines"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.Engines.DriftBaselineReady)
	assert.False(t, health.Engines.AnomalyModelTrained)
}

func TestEstimates(t *testing.T) {
	s := testServer(t, nil)

	doJSON(s, "POST", "/ingest", ingestBody("SKU-0005", 49.99))

	rr := doJSON(s, "GET", "/estimates", "")
	require.Equal(t, nethttp.StatusOK, rr.Code)

	var res struct {
		Estimates map[string]kalman.State `json:"estimates"`
		Count     int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Count)
	assert.Contains(t, res.Estimates, "SKU-0005")
}

func TestViolations_ReadBack(t *testing.T) {
	s := testServer(t, nil)

	body := strings.Replace(ingestBody("SKU-0006", 49.99), `"stock": 100`, `"stock": -3`, 1)
	doJSON(s, "POST", "/ingest", body)

	rr := doJSON(s, "GET", "/violations?sku=SKU-0006", "")
	require.Equal(t, nethttp.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "negative_stock")

	rr = doJSON(s, "GET", "/violations/stats", "")
	require.Equal(t, nethttp.StatusOK, rr.Code)

	var stats archive.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t, nil)

	doJSON(s, "POST", "/ingest", ingestBody("SKU-0007", 49.99))

	rr := doJSON(s, "GET", "/metrics", "")
	require.Equal(t, nethttp.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ingest_requests_total")
	assert.Contains(t, rr.Body.String(), "records_processed_total")
}

func TestNotFound(t *testing.T) {
	s := testServer(t, nil)

	rr := doJSON(s, "GET", "/nope", "")
	assert.Equal(t, nethttp.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "endpoint not found")
}
