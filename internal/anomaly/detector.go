package anomaly

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wijeratne-a/PriceCanary/internal/telemetry"
)

const minTrainingRecords = 10

// Params holds the detector tunables.
type Params struct {
	Contamination float64
	NEstimators   int
	RandomSeed    int64
}

// DefaultParams returns the standard anomaly detector configuration.
func DefaultParams() Params {
	return Params{
		Contamination: 0.1,
		NEstimators:   100,
		RandomSeed:    42,
	}
}

// Result reports the verdict on a single record.
type Result struct {
	IsAnomaly   bool               `json:"is_anomaly"`
	Score       float64            `json:"anomaly_score"`
	Prediction  int                `json:"prediction"`
	Features    map[string]float64 `json:"features,omitempty"`
	Explanation string             `json:"explanation,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

// Detector scores records against an isolation forest trained on a baseline
// batch, over streaming per-SKU features. The model is immutable after
// Train; the feature history is guarded by the detector lock.
type Detector struct {
	mu      sync.RWMutex
	params  Params
	hist    *history
	model   *forest
	trained bool
}

// NewDetector creates an untrained detector.
func NewDetector(params Params) *Detector {
	return &Detector{
		params: params,
		hist:   newHistory(),
	}
}

// Trained reports whether the model has been fit.
func (d *Detector) Trained() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.trained
}

// Train fits the isolation forest on a baseline batch. Each record updates
// the history before its features are extracted, so every row sees the
// state left by its predecessors.
func (d *Detector) Train(records []telemetry.Record) error {
	if len(records) < minTrainingRecords {
		return fmt.Errorf("need at least %d records for training, got %d", minTrainingRecords, len(records))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	X := make([][NumFeatures]float64, 0, len(records))
	for _, rec := range records {
		d.hist.update(rec)
		X = append(X, d.hist.extract(rec))
	}

	d.model = fitForest(X, d.params.NEstimators, d.params.Contamination, d.params.RandomSeed)
	d.trained = true

	log.Info().
		Int("records", len(records)).
		Int("estimators", d.params.NEstimators).
		Float64("contamination", d.params.Contamination).
		Msg("isolation forest trained")
	return nil
}

// Predict extracts features for the record against the history as it stood
// before the record arrived, scores it, and only then folds the record into
// the history. A record is anomalous when the forest decision is negative or
// a scale feature (price delta, stock change, price or stock magnitude)
// crosses its explanation threshold; the guard keeps out-of-range values on
// features that were constant during training from slipping past the
// path-length score.
func (d *Detector) Predict(rec telemetry.Record) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.trained {
		return Result{Prediction: 1, Reason: "Model not trained"}
	}

	features := d.hist.extract(rec)
	score := d.model.score(features)
	isAnomaly := d.model.decision(features) < 0 || overThreshold(features)

	d.hist.update(rec)

	prediction := 1
	if isAnomaly {
		prediction = -1
	}

	return Result{
		IsAnomaly:  isAnomaly,
		Score:      score,
		Prediction: prediction,
		Features: map[string]float64{
			"price_delta_pct":       features[featPriceDelta],
			"stock_change":          features[featStockChange] * 100,
			"referrer_irregularity": features[featReferrerIrregularity],
			"conversion_deviation":  features[featConversionDeviation],
			"cart_irregularity":     features[featCartIrregularity],
			"price_magnitude":       features[featPriceMagnitude],
			"stock_magnitude":       features[featStockMagnitude],
		},
		Explanation: Explain(features, isAnomaly),
	}
}
