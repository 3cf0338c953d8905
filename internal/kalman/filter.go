package kalman

import (
	"math"
	"sync"
)

// Params holds the filter tunables.
type Params struct {
	ProcessVariance     float64
	MeasurementVariance float64
	InitialEstimate     float64
	InitialUncertainty  float64
	ThresholdSigma      float64
}

// DefaultParams returns the standard conversion-tracking configuration.
func DefaultParams() Params {
	return Params{
		ProcessVariance:     0.01,
		MeasurementVariance: 0.05,
		InitialEstimate:     0.05,
		InitialUncertainty:  1.0,
		ThresholdSigma:      2.0,
	}
}

// State is a per-SKU estimate/uncertainty pair.
type State struct {
	Estimate    float64 `json:"estimate"`
	Uncertainty float64 `json:"uncertainty"`
}

// DeviationResult reports whether an observation deviated from the filtered
// conversion estimate before the filter absorbed it.
type DeviationResult struct {
	Detected           bool    `json:"deviation_detected"`
	ExpectedConversion float64 `json:"expected_conversion"`
	ObservedConversion float64 `json:"observed_conversion"`
	UpdatedConversion  float64 `json:"updated_conversion"`
	ZScore             float64 `json:"z_score"`
	ThresholdSigma     float64 `json:"threshold_sigma"`
	Uncertainty        float64 `json:"uncertainty"`
	UpdatedUncertainty float64 `json:"updated_uncertainty"`
	DeviationPct       float64 `json:"deviation_pct"`
	Reason             string  `json:"reason,omitempty"`
}

// Filter maintains an independent scalar Kalman filter per SKU over the
// observed conversion rate. The measurement variance shrinks with the square
// root of the view count, so high-traffic observations pull the estimate
// harder.
type Filter struct {
	mu     sync.RWMutex
	params Params
	states map[string]*State
}

// NewFilter creates a filter with the given parameters.
func NewFilter(params Params) *Filter {
	return &Filter{
		params: params,
		states: make(map[string]*State),
	}
}

func (f *Filter) state(sku string) *State {
	s, ok := f.states[sku]
	if !ok {
		s = &State{
			Estimate:    f.params.InitialEstimate,
			Uncertainty: f.params.InitialUncertainty,
		}
		f.states[sku] = s
	}
	return s
}

// Update absorbs one observation into the SKU's filter and returns the new
// estimate and uncertainty. Zero views leaves the state untouched.
func (f *Filter) Update(sku string, views, purchases int) (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateLocked(sku, views, purchases)
}

func (f *Filter) updateLocked(sku string, views, purchases int) (float64, float64) {
	s := f.state(sku)
	if views <= 0 {
		return s.Estimate, s.Uncertainty
	}

	z := float64(purchases) / float64(views)

	// Predict.
	predicted := s.Estimate
	predictedP := s.Uncertainty + f.params.ProcessVariance

	// Measurement confidence grows with sample size.
	r := f.params.MeasurementVariance / math.Sqrt(float64(views))

	gain := predictedP / (predictedP + r)
	estimate := predicted + gain*(z-predicted)
	if estimate < 0 {
		estimate = 0
	} else if estimate > 1 {
		estimate = 1
	}

	s.Estimate = estimate
	s.Uncertainty = (1 - gain) * predictedP
	return s.Estimate, s.Uncertainty
}

// Predict returns the current estimate and uncertainty without updating.
func (f *Filter) Predict(sku string) (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.state(sku)
	return s.Estimate, s.Uncertainty
}

// DetectDeviation scores the observation against the current estimate, then
// updates the filter so it learns from the observation regardless of the
// verdict. The z-score denominator is floored at sigma=0.1 to damp false
// positives while the uncertainty is still wide.
func (f *Filter) DetectDeviation(sku string, views, purchases int) DeviationResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if views <= 0 {
		return DeviationResult{Reason: "No views"}
	}

	s := f.state(sku)
	estimate, uncertainty := s.Estimate, s.Uncertainty
	observed := float64(purchases) / float64(views)

	sigma := math.Sqrt(uncertainty)
	if sigma < 0.1 {
		sigma = 0.1
	}
	zScore := math.Abs(observed-estimate) / sigma

	updatedEstimate, updatedUncertainty := f.updateLocked(sku, views, purchases)

	deviationPct := 0.0
	if estimate > 0 {
		deviationPct = (observed - estimate) / estimate * 100
	}

	return DeviationResult{
		Detected:           zScore > f.params.ThresholdSigma,
		ExpectedConversion: estimate,
		ObservedConversion: observed,
		UpdatedConversion:  updatedEstimate,
		ZScore:             zScore,
		ThresholdSigma:     f.params.ThresholdSigma,
		Uncertainty:        uncertainty,
		UpdatedUncertainty: updatedUncertainty,
		DeviationPct:       deviationPct,
	}
}

// Estimates returns a snapshot of all per-SKU states.
func (f *Filter) Estimates() map[string]State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]State, len(f.states))
	for sku, s := range f.states {
		out[sku] = *s
	}
	return out
}

// Reset reinitializes the state for one SKU.
func (f *Filter) Reset(sku string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[sku] = &State{
		Estimate:    f.params.InitialEstimate,
		Uncertainty: f.params.InitialUncertainty,
	}
}
