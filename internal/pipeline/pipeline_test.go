package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wijeratne-a/PriceCanary/internal/alerts"
	"github.com/wijeratne-a/PriceCanary/internal/anomaly"
	"github.com/wijeratne-a/PriceCanary/internal/archive"
	"github.com/wijeratne-a/PriceCanary/internal/contracts"
	"github.com/wijeratne-a/PriceCanary/internal/drift"
	"github.com/wijeratne-a/PriceCanary/internal/generator"
	"github.com/wijeratne-a/PriceCanary/internal/kalman"
	"github.com/wijeratne-a/PriceCanary/internal/metrics"
	"github.com/wijeratne-a/PriceCanary/internal/telemetry"
)

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	arch, err := archive.NewWriter(filepath.Join(t.TempDir(), "violations.csv"))
	require.NoError(t, err)

	return &Pipeline{
		Validator: contracts.NewValidator(10.0, 100000.0),
		Drift:     drift.NewDetector(0.2, 0.05, 20),
		Anomaly:   anomaly.NewDetector(anomaly.Params{Contamination: 0.1, NEstimators: 50, RandomSeed: 42}),
		Kalman:    kalman.NewFilter(kalman.DefaultParams()),
		Alerts:    alerts.NewManager(time.Hour),
		Metrics:   metrics.NewCollector(),
		Archive:   arch,
	}
}

func cleanRecord() telemetry.Record {
	return telemetry.Record{
		Timestamp: time.Now(),
		SKU:       "SKU-0001",
		Price:     49.99,
		Stock:     120,
		Views:     200,
		AddToCart: 30,
		Purchases: 10,
		Referrer:  "organic",
	}
}

func TestPipeline_Warmup(t *testing.T) {
	p := testPipeline(t)

	opts := generator.DefaultOptions()
	opts.FaultProbability = 0
	opts.Seed = 42
	batch := generator.New(opts).Batch(100, time.Now().Add(-100*time.Second), time.Second)

	require.NoError(t, p.Warmup(batch))
	assert.True(t, p.Anomaly.Trained())
	assert.True(t, p.Drift.BaselineReady())
}

func TestPipeline_WarmupTooSmall(t *testing.T) {
	p := testPipeline(t)

	opts := generator.DefaultOptions()
	opts.Seed = 42
	batch := generator.New(opts).Batch(5, time.Now(), time.Second)
	assert.Error(t, p.Warmup(batch))
}

func TestPipeline_CleanRecord(t *testing.T) {
	p := testPipeline(t)

	res, err := p.Process(context.Background(), cleanRecord())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Violations)
	assert.Equal(t, 0, res.AlertsCreated)
	assert.Equal(t, "Record processed successfully", res.Message)
	assert.Equal(t, 1.0, p.Metrics.RecordsProcessedValue())
}

func TestPipeline_SchemaErrorShortCircuits(t *testing.T) {
	p := testPipeline(t)

	rec := cleanRecord()
	rec.SKU = ""
	res, err := p.Process(context.Background(), rec)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, "Record rejected: schema violation", res.Message)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, telemetry.ViolationSchemaError, res.Violations[0].Type)
	assert.Equal(t, 1, res.AlertsCreated)

	// Detector state must be untouched by dropped records.
	assert.Equal(t, 0.0, p.Metrics.RecordsProcessedValue())
	assert.Equal(t, 0, p.Validator.HistoryLen("SKU-0001"))
}

func TestPipeline_ViolatingRecordStillProcessed(t *testing.T) {
	p := testPipeline(t)

	rec := cleanRecord()
	rec.Stock = -10
	res, err := p.Process(context.Background(), rec)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, "Record processed with violations", res.Message)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, telemetry.ViolationNegativeStock, res.Violations[0].Type)
	assert.GreaterOrEqual(t, res.AlertsCreated, 1)
	assert.Equal(t, 1.0, p.Metrics.RecordsProcessedValue(), "range violations do not drop the record")

	// The violation lands in the archive.
	archived, err := p.Archive.Read(archive.ReadFilter{})
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, telemetry.ViolationNegativeStock, archived[0].Type)

	// And produces a contract_violation alert.
	list := p.Alerts.Get(alerts.Filter{Type: alerts.TypeContractViolation})
	require.Len(t, list, 1)
	assert.Equal(t, telemetry.SeverityHigh, list[0].Severity)
}

func TestPipeline_MultipleViolationsAllCounted(t *testing.T) {
	p := testPipeline(t)

	rec := cleanRecord()
	rec.Stock = -10
	rec.Timestamp = time.Now().Add(-48 * time.Hour)
	res, err := p.Process(context.Background(), rec)
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.Len(t, res.Violations, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.ValidationFailures.WithLabelValues("negative_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.ValidationFailures.WithLabelValues("invalid_timestamp")))
}

func TestPipeline_PriceJumpProducesAlert(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	rec := cleanRecord()
	rec.Price = 19.99
	_, err := p.Process(ctx, rec)
	require.NoError(t, err)

	rec.Price = 1999.99
	res, err := p.Process(ctx, rec)
	require.NoError(t, err)
	assert.False(t, res.Success)

	list := p.Alerts.Get(alerts.Filter{Type: alerts.TypeContractViolation})
	require.NotEmpty(t, list)
	assert.Equal(t, telemetry.SeverityCritical, list[0].Severity)
}

func TestPipeline_OnAlertHook(t *testing.T) {
	p := testPipeline(t)

	var seen []alerts.Alert
	p.OnAlert = func(a alerts.Alert) { seen = append(seen, a) }

	rec := cleanRecord()
	rec.Stock = -5
	_, err := p.Process(context.Background(), rec)
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, alerts.TypeContractViolation, seen[0].Type)
}

func TestPipeline_CancelledContext(t *testing.T) {
	p := testPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, cleanRecord())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_KalmanDeviationAfterWarmStream(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	rec := cleanRecord()
	rec.Views = 100
	rec.AddToCart = 10
	rec.Purchases = 5
	for i := 0; i < 20; i++ {
		_, err := p.Process(ctx, rec)
		require.NoError(t, err)
	}

	spike := rec
	spike.AddToCart = 60
	spike.Purchases = 50
	res, err := p.Process(ctx, spike)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.AlertsCreated, 1)

	list := p.Alerts.Get(alerts.Filter{Type: alerts.TypeConversionDeviation})
	require.NotEmpty(t, list)
	assert.Equal(t, "SKU-0001", list[0].SKU)
}

func TestPipeline_DriftAlertAfterDistributionShift(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	rec := cleanRecord()
	// Fill the baseline with stable prices; jitter stays inside the jump
	// threshold.
	for i := 0; i < 20; i++ {
		rec.Price = 50 + float64(i%10)*0.5
		_, err := p.Process(ctx, rec)
		require.NoError(t, err)
	}
	// Shift the distribution 4x upward, one step at a time so no single
	// record trips the price-jump contract.
	rec.Price = 145
	for i := 0; i < 10; i++ {
		rec.Price += 10
		_, err := p.Process(ctx, rec)
		require.NoError(t, err)
	}

	list := p.Alerts.Get(alerts.Filter{Type: alerts.TypeDrift})
	assert.NotEmpty(t, list, "a 4x price shift must raise a drift alert")
}
