package drift

import (
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/wijeratne-a/PriceCanary/internal/telemetry"
)

const (
	// Minimum sample guards before a comparison is meaningful.
	minBaselineSamples = 10
	minRecentSamples   = 5

	conversionHistoryCap = 100
	conversionWindow     = 100
)

// Result reports a single distribution comparison.
type Result struct {
	Detected     bool    `json:"drift_detected"`
	PSI          float64 `json:"psi"`
	KSStatistic  float64 `json:"ks_statistic"`
	KSPValue     float64 `json:"ks_pvalue"`
	BaselineMean float64 `json:"baseline_mean"`
	RecentMean   float64 `json:"recent_mean"`
	BaselineStd  float64 `json:"baseline_std"`
	RecentStd    float64 `json:"recent_std"`
	Reason       string  `json:"reason,omitempty"`
}

// ConversionResult reports a per-SKU conversion-rate comparison.
type ConversionResult struct {
	Detected           bool    `json:"drift_detected"`
	BaselineConversion float64 `json:"baseline_conversion"`
	RecentConversion   float64 `json:"recent_conversion"`
	CurrentConversion  float64 `json:"current_conversion"`
	ChangePct          float64 `json:"change_pct"`
	PValue             float64 `json:"pvalue"`
	Reason             string  `json:"reason,omitempty"`
}

// Detector compares a frozen baseline distribution against a sliding recent
// window for price and stock, and tracks per-SKU conversion-rate history.
// The baseline reservoir grows until baselineWindow price observations and
// is frozen from then on; the recent window is a FIFO capped at half that.
type Detector struct {
	mu sync.RWMutex

	psiThreshold   float64
	ksThreshold    float64
	baselineWindow int

	baselinePrice []float64
	baselineStock []float64
	recentPrice   []float64
	recentStock   []float64
	baselineReady bool

	conversionHistory map[string][]float64
}

// NewDetector creates a drift detector with the given thresholds and
// baseline reservoir size.
func NewDetector(psiThreshold, ksThreshold float64, baselineWindow int) *Detector {
	return &Detector{
		psiThreshold:      psiThreshold,
		ksThreshold:       ksThreshold,
		baselineWindow:    baselineWindow,
		conversionHistory: make(map[string][]float64),
	}
}

// Observe routes a record into the baseline reservoir until it is full, and
// into the recent window afterwards. Conversion history accrues in both
// phases. Returns true once the baseline is frozen.
func (d *Detector) Observe(rec telemetry.Record) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.baselineReady {
		d.baselinePrice = append(d.baselinePrice, rec.Price)
		d.baselineStock = append(d.baselineStock, float64(rec.Stock))
		if len(d.baselinePrice) >= d.baselineWindow {
			d.baselineReady = true
			log.Info().
				Int("baseline_window", d.baselineWindow).
				Msg("drift baseline frozen")
		}
	} else {
		max := d.baselineWindow / 2
		d.recentPrice = appendCapped(d.recentPrice, rec.Price, max)
		d.recentStock = appendCapped(d.recentStock, float64(rec.Stock), max)
	}

	if rec.Views > 0 {
		h := appendCapped(d.conversionHistory[rec.SKU], rec.ConversionRate(), conversionHistoryCap)
		d.conversionHistory[rec.SKU] = h
	}

	return d.baselineReady
}

func appendCapped(xs []float64, x float64, max int) []float64 {
	xs = append(xs, x)
	if len(xs) > max {
		xs = xs[len(xs)-max:]
	}
	return xs
}

// BaselineReady reports whether the baseline reservoir has been frozen.
func (d *Detector) BaselineReady() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.baselineReady
}

// PriceDrift compares the recent price window against the baseline.
func (d *Detector) PriceDrift() Result {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.compare(d.baselinePrice, d.recentPrice)
}

// StockDrift compares the recent stock window against the baseline.
func (d *Detector) StockDrift() Result {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.compare(d.baselineStock, d.recentStock)
}

func (d *Detector) compare(baseline, recent []float64) Result {
	if len(baseline) < minBaselineSamples || len(recent) < minRecentSamples {
		return Result{KSPValue: 1, Reason: "Insufficient data"}
	}

	psi := PSI(baseline, recent)
	ksStat, ksP := KSTest(baseline, recent)

	bMean, bVar := stat.MeanVariance(baseline, nil)
	rMean, rVar := stat.MeanVariance(recent, nil)

	return Result{
		Detected:     psi > d.psiThreshold || ksP < d.ksThreshold,
		PSI:          psi,
		KSStatistic:  ksStat,
		KSPValue:     ksP,
		BaselineMean: bMean,
		RecentMean:   rMean,
		BaselineStd:  math.Sqrt(bVar),
		RecentStd:    math.Sqrt(rVar),
	}
}

// ConversionRate returns the rolling mean conversion rate for a SKU over its
// retained history, and false when no history exists.
func (d *Detector) ConversionRate(sku string) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h := d.conversionHistory[sku]
	if len(h) == 0 {
		return 0, false
	}
	return stat.Mean(h, nil), true
}

// ConversionDrift splits the last conversionWindow observations for the SKU
// into an older half and a newer half and applies Welch's two-sample t-test.
// Drift requires p < 0.05 and an absolute mean shift above 2 percentage
// points; with fewer than two points per side the test degrades to a plain
// 5-point mean-difference rule.
func (d *Detector) ConversionDrift(sku string, currentConversion float64) ConversionResult {
	d.mu.RLock()
	defer d.mu.RUnlock()

	history := d.conversionHistory[sku]
	if len(history) < minBaselineSamples {
		return ConversionResult{PValue: 1, Reason: "Insufficient historical data"}
	}

	if len(history) > conversionWindow {
		history = history[len(history)-conversionWindow:]
	}
	half := len(history) / 2
	older := history[:half]
	newer := history[half:]

	baseMean := stat.Mean(older, nil)
	recentMean := stat.Mean(newer, nil)

	var detected bool
	pvalue := 1.0
	if len(older) > 1 && len(newer) > 1 {
		_, pvalue = WelchTTest(older, newer)
		detected = pvalue < 0.05 && math.Abs(recentMean-baseMean) > 0.02
	} else {
		detected = math.Abs(recentMean-baseMean) > 0.05
	}

	changePct := 0.0
	if baseMean > 0 {
		changePct = (recentMean - baseMean) / baseMean * 100
	}

	return ConversionResult{
		Detected:           detected,
		BaselineConversion: baseMean,
		RecentConversion:   recentMean,
		CurrentConversion:  currentConversion,
		ChangePct:          changePct,
		PValue:             pvalue,
	}
}
