package anomaly

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/wijeratne-a/PriceCanary/internal/telemetry"
)

// NumFeatures is the fixed length of the extracted feature vector.
const NumFeatures = 7

// Feature vector indices.
const (
	featPriceDelta = iota
	featStockChange
	featReferrerIrregularity
	featConversionDeviation
	featCartIrregularity
	featPriceMagnitude
	featStockMagnitude
)

const historyCap = 100

// history holds the streaming per-SKU and process-wide state behind feature
// extraction. Callers hold the detector lock.
type history struct {
	prices      map[string][]float64
	stocks      map[string][]float64
	conversions map[string][]float64
	lastPrice   map[string]float64
	lastStock   map[string]int
	referrers   map[string]int
	refTotal    int
}

func newHistory() *history {
	return &history{
		prices:      make(map[string][]float64),
		stocks:      make(map[string][]float64),
		conversions: make(map[string][]float64),
		lastPrice:   make(map[string]float64),
		lastStock:   make(map[string]int),
		referrers:   make(map[string]int),
	}
}

func (h *history) update(rec telemetry.Record) {
	h.prices[rec.SKU] = appendCapped(h.prices[rec.SKU], rec.Price)
	h.stocks[rec.SKU] = appendCapped(h.stocks[rec.SKU], float64(rec.Stock))
	if rec.Views > 0 {
		h.conversions[rec.SKU] = appendCapped(h.conversions[rec.SKU], rec.ConversionRate())
	}
	h.referrers[referrerKey(rec.Referrer)]++
	h.refTotal++
	h.lastPrice[rec.SKU] = rec.Price
	h.lastStock[rec.SKU] = rec.Stock
}

func appendCapped(xs []float64, x float64) []float64 {
	xs = append(xs, x)
	if len(xs) > historyCap {
		xs = xs[len(xs)-historyCap:]
	}
	return xs
}

func referrerKey(ref string) string {
	if ref == "" {
		return "unknown"
	}
	return ref
}

// extract builds the 7-entry feature vector for a record against the current
// history, without mutating it.
func (h *history) extract(rec telemetry.Record) [NumFeatures]float64 {
	var f [NumFeatures]float64

	if last, ok := h.lastPrice[rec.SKU]; ok && last > 0 {
		f[featPriceDelta] = math.Abs(rec.Price-last) / last
	}

	if last, ok := h.lastStock[rec.SKU]; ok {
		f[featStockChange] = math.Abs(float64(rec.Stock-last)) / 100.0
	}

	if h.refTotal > 0 {
		freq := float64(h.referrers[referrerKey(rec.Referrer)]) / float64(h.refTotal)
		f[featReferrerIrregularity] = 1.0 - freq
	} else {
		f[featReferrerIrregularity] = 0.5
	}

	if rec.Views > 0 {
		current := rec.ConversionRate()
		if hist := h.conversions[rec.SKU]; len(hist) > 0 {
			avg := stat.Mean(hist, nil)
			switch {
			case avg > 0:
				f[featConversionDeviation] = math.Abs(current-avg) / avg
			case current > 0:
				f[featConversionDeviation] = 1.0
			}
		} else {
			f[featConversionDeviation] = 0.5
		}
	}

	if rec.Views > 0 {
		cartRate := rec.CartRate()
		if cartRate > 0.5 || cartRate < 0.01 {
			f[featCartIrregularity] = 1.0
		}
	}

	f[featPriceMagnitude] = math.Min(rec.Price/1000.0, 10.0)
	f[featStockMagnitude] = math.Min(float64(rec.Stock)/1000.0, 10.0)

	return f
}

// explainThresholds are the per-feature levels above which a component is
// considered to contribute to an anomaly verdict.
var explainThresholds = [NumFeatures]float64{0.5, 5.0, 0.7, 0.5, 0.5, 5.0, 5.0}

// Explain renders human-readable reasons for each feature component above
// its threshold. When an anomalous record has no component over threshold it
// reports a generic multi-factor message.
func Explain(features [NumFeatures]float64, isAnomaly bool) string {
	if !isAnomaly {
		return "No significant anomalies detected"
	}

	var reasons []string
	if features[featPriceDelta] > explainThresholds[featPriceDelta] {
		reasons = append(reasons, fmt.Sprintf("Large price change (%.1f%%)", features[featPriceDelta]*100))
	}
	if features[featStockChange] > explainThresholds[featStockChange] {
		reasons = append(reasons, fmt.Sprintf("Significant stock change (%.0f units)", features[featStockChange]*100))
	}
	if features[featReferrerIrregularity] > explainThresholds[featReferrerIrregularity] {
		reasons = append(reasons, "Unusual referrer pattern")
	}
	if features[featConversionDeviation] > explainThresholds[featConversionDeviation] {
		reasons = append(reasons, "Conversion rate deviation")
	}
	if features[featCartIrregularity] > explainThresholds[featCartIrregularity] {
		reasons = append(reasons, "Abnormal cart-to-view ratio")
	}
	if features[featPriceMagnitude] > explainThresholds[featPriceMagnitude] {
		reasons = append(reasons, "Unusually high price")
	}
	if features[featStockMagnitude] > explainThresholds[featStockMagnitude] {
		reasons = append(reasons, "Unusually high stock level")
	}

	if len(reasons) == 0 {
		return "Multiple subtle anomalies detected"
	}
	return strings.Join(reasons, "; ")
}

// scaleGuards lists the delta and magnitude features. Only these back the
// out-of-range guard: the distributional features (referrer share, conversion
// deviation, cart ratio) sit above their explanation thresholds on every
// record of a healthy multi-referrer stream.
var scaleGuards = [...]int{featPriceDelta, featStockChange, featPriceMagnitude, featStockMagnitude}

// overThreshold reports whether any scale feature crosses its explanation
// threshold.
func overThreshold(features [NumFeatures]float64) bool {
	for _, i := range scaleGuards {
		if features[i] > explainThresholds[i] {
			return true
		}
	}
	return false
}
