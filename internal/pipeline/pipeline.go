package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wijeratne-a/PriceCanary/internal/alerts"
	"github.com/wijeratne-a/PriceCanary/internal/anomaly"
	"github.com/wijeratne-a/PriceCanary/internal/archive"
	"github.com/wijeratne-a/PriceCanary/internal/contracts"
	"github.com/wijeratne-a/PriceCanary/internal/drift"
	"github.com/wijeratne-a/PriceCanary/internal/kalman"
	"github.com/wijeratne-a/PriceCanary/internal/metrics"
	"github.com/wijeratne-a/PriceCanary/internal/telemetry"
)

// Result is the outcome of processing one record through every engine.
type Result struct {
	Success       bool                  `json:"success"`
	Message       string                `json:"message"`
	Violations    []telemetry.Violation `json:"violations"`
	AlertsCreated int                   `json:"alerts_created"`
}

// Pipeline fans one record out to the validator, drift detector, anomaly
// detector, and Kalman filter in a fixed order, funneling findings into the
// alert manager. Each engine guards its own state, so concurrent Process
// calls are safe; per-SKU state reflects strict arrival order.
type Pipeline struct {
	Validator *contracts.Validator
	Drift     *drift.Detector
	Anomaly   *anomaly.Detector
	Kalman    *kalman.Filter
	Alerts    *alerts.Manager
	Metrics   *metrics.Collector
	Archive   *archive.Writer

	// OnAlert, when set, is invoked for every created alert (after engine
	// locks are released). The HTTP layer uses it to feed the WebSocket
	// stream.
	OnAlert func(alerts.Alert)
}

// Warmup feeds a fault-free baseline batch: it trains the isolation forest
// and seeds the drift baseline without creating alerts.
func (p *Pipeline) Warmup(records []telemetry.Record) error {
	if err := p.Anomaly.Train(records); err != nil {
		return err
	}
	for _, rec := range records {
		p.Drift.Observe(rec)
	}
	log.Info().Int("records", len(records)).Msg("detector warm-up complete")
	return nil
}

// Process runs one record through the full guardrail pipeline. A cancelled
// context aborts before engines that have not yet run; engines that already
// ran keep their updates.
func (p *Pipeline) Process(ctx context.Context, rec telemetry.Record) (Result, error) {
	start := time.Now()
	var created []alerts.Alert

	// Validator first: schema failures drop the record before any detector
	// state is touched.
	vres := p.Validator.Validate(rec)
	if len(vres.Violations) > 0 {
		types := make([]string, len(vres.Violations))
		for i, v := range vres.Violations {
			types[i] = string(v.Type)
		}
		p.Metrics.RecordValidation(false, types...)
		if p.Archive != nil {
			if err := p.Archive.Append(vres.Violations); err != nil {
				log.Warn().Err(err).Msg("failed to archive violations")
				p.Metrics.ProcessingErrors.WithLabelValues("archive_write").Inc()
			}
		}
		for _, v := range vres.Violations {
			created = append(created, p.Alerts.FromViolation(v, rec))
		}
	} else {
		p.Metrics.RecordValidation(true)
	}

	if vres.HasSchemaError() {
		p.finish(start, "validation_error", created)
		return Result{
			Success:       false,
			Message:       "Record rejected: schema violation",
			Violations:    vres.Violations,
			AlertsCreated: len(created),
		}, nil
	}

	norm := *vres.Normalized

	if err := ctx.Err(); err != nil {
		p.finish(start, "cancelled", created)
		return Result{}, err
	}

	// Drift: route the record into the appropriate window, then compare.
	p.Drift.Observe(norm)
	pd := p.Drift.PriceDrift()
	p.Metrics.RecordDrift("price", pd.PSI, pd.Detected, string(alerts.DriftSeverity(pd.PSI, pd.KSPValue)))
	if a, ok := p.Alerts.FromDrift(pd, "price"); ok {
		created = append(created, a)
	}
	sd := p.Drift.StockDrift()
	p.Metrics.RecordDrift("stock", sd.PSI, sd.Detected, string(alerts.DriftSeverity(sd.PSI, sd.KSPValue)))
	if a, ok := p.Alerts.FromDrift(sd, "stock"); ok {
		created = append(created, a)
	}
	if norm.Views > 0 {
		cd := p.Drift.ConversionDrift(norm.SKU, norm.ConversionRate())
		if cd.Detected {
			sev := string(alerts.DriftSeverity(0, cd.PValue))
			p.Metrics.DriftDetections.WithLabelValues("conversion", sev).Inc()
		}
		if a, ok := p.Alerts.FromConversionDrift(cd, norm.SKU); ok {
			created = append(created, a)
		}
	}

	if err := ctx.Err(); err != nil {
		p.finish(start, "cancelled", created)
		return Result{}, err
	}

	// Anomaly: score against pre-record history, then absorb the record.
	if p.Anomaly.Trained() {
		ares := p.Anomaly.Predict(norm)
		p.Metrics.RecordAnomaly(ares.Score, ares.IsAnomaly, string(alerts.AnomalySeverity(ares.Score)))
		if a, ok := p.Alerts.FromAnomaly(ares, norm); ok {
			created = append(created, a)
		}
	}

	if err := ctx.Err(); err != nil {
		p.finish(start, "cancelled", created)
		return Result{}, err
	}

	// Kalman: score the observation, then let the filter learn from it.
	if norm.Views > 0 {
		dres := p.Kalman.DetectDeviation(norm.SKU, norm.Views, norm.Purchases)
		if a, ok := p.Alerts.FromDeviation(dres, norm.SKU); ok {
			created = append(created, a)
		}
	}

	status := "success"
	message := "Record processed successfully"
	if !vres.IsValid {
		status = "validation_error"
		message = "Record processed with violations"
	}
	p.finish(start, status, created)
	p.Metrics.RecordsProcessed.Inc()

	return Result{
		Success:       vres.IsValid,
		Message:       message,
		Violations:    vres.Violations,
		AlertsCreated: len(created),
	}, nil
}

// finish records ingest metrics and per-alert accounting, and fans created
// alerts out to the stream hook.
func (p *Pipeline) finish(start time.Time, status string, created []alerts.Alert) {
	elapsed := time.Since(start)
	p.Metrics.RecordIngest(status, elapsed)
	for _, a := range created {
		p.Metrics.RecordAlert(string(a.Severity), string(a.Type), elapsed)
		if p.OnAlert != nil {
			p.OnAlert(a)
		}
	}
}
