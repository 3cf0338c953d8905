package alerts

import (
	"fmt"

	"github.com/wijeratne-a/PriceCanary/internal/anomaly"
	"github.com/wijeratne-a/PriceCanary/internal/drift"
	"github.com/wijeratne-a/PriceCanary/internal/kalman"
	"github.com/wijeratne-a/PriceCanary/internal/telemetry"
)

// Canned remediation suggestions keyed by violation type.
var violationFixes = map[telemetry.ViolationType]string{
	telemetry.ViolationNegativeStock:    "Fix data pipeline to ensure stock values are non-negative. Check for integer overflow or data corruption.",
	telemetry.ViolationPriceJump:        "Verify price updates are correct. Check for unit conversion errors or data entry mistakes.",
	telemetry.ViolationUnitError:        "Normalize price units (ensure consistent dollars/cents). Review data source configuration.",
	telemetry.ViolationInvalidTimestamp: "Check data feed freshness and timezone settings. Verify system clock synchronization.",
	telemetry.ViolationSchemaError:      "Validate data schema matches expected format. Check for missing or malformed fields.",
}

const defaultFix = "Review data quality and system configuration."

// FromViolation enriches a contract violation into an alert. The last good
// state snapshots the offending record so on-call can see what arrived.
func (m *Manager) FromViolation(v telemetry.Violation, rec telemetry.Record) Alert {
	severity := v.Severity
	if !severity.Valid() {
		severity = telemetry.SeverityMedium
	}

	fix, ok := violationFixes[v.Type]
	if !ok {
		fix = defaultFix
	}

	lastGood := map[string]interface{}{
		"price":     rec.Price,
		"stock":     rec.Stock,
		"timestamp": rec.Timestamp,
	}

	return m.Create(TypeContractViolation, severity, v.Reason, v.SKU, lastGood, fix,
		map[string]interface{}{"violation_type": string(v.Type)})
}

// DriftSeverity maps PSI and KS p-value onto a severity band.
func DriftSeverity(psi, ksPValue float64) telemetry.Severity {
	switch {
	case psi > 0.5 || ksPValue < 0.01:
		return telemetry.SeverityCritical
	case psi > 0.3 || ksPValue < 0.05:
		return telemetry.SeverityHigh
	default:
		return telemetry.SeverityMedium
	}
}

// FromDrift enriches a distribution drift finding for the given metric
// ("price" or "stock"). Returns false when no drift was detected.
func (m *Manager) FromDrift(res drift.Result, metricType string) (Alert, bool) {
	if !res.Detected {
		return Alert{}, false
	}

	severity := DriftSeverity(res.PSI, res.KSPValue)
	message := fmt.Sprintf("%s drift detected: PSI=%.3f, KS p-value=%.4f. Baseline: %.2f, Recent: %.2f",
		titleCase(metricType), res.PSI, res.KSPValue, res.BaselineMean, res.RecentMean)
	fix := fmt.Sprintf("Review %s trends and investigate root cause. Check for data quality issues or system changes.", metricType)

	lastGood := map[string]interface{}{
		"baseline_" + metricType: res.BaselineMean,
		"baseline_std":           res.BaselineStd,
	}
	meta := map[string]interface{}{
		"metric_type":   metricType,
		"psi":           res.PSI,
		"ks_pvalue":     res.KSPValue,
		"baseline_mean": res.BaselineMean,
		"recent_mean":   res.RecentMean,
	}

	return m.Create(TypeDrift, severity, message, "", lastGood, fix, meta), true
}

// FromConversionDrift enriches a per-SKU conversion drift finding. Severity
// comes from the p-value leg of the drift table (no PSI is computed for
// conversion rates).
func (m *Manager) FromConversionDrift(res drift.ConversionResult, sku string) (Alert, bool) {
	if !res.Detected {
		return Alert{}, false
	}

	severity := DriftSeverity(0, res.PValue)
	message := fmt.Sprintf("Conversion drift detected for %s: baseline %.2f%%, recent %.2f%% (p=%.4f)",
		sku, res.BaselineConversion*100, res.RecentConversion*100, res.PValue)
	fix := "Review conversion trends and investigate root cause. Check for data quality issues or system changes."

	lastGood := map[string]interface{}{
		"baseline_conversion": res.BaselineConversion,
	}
	meta := map[string]interface{}{
		"metric_type":         "conversion",
		"pvalue":              res.PValue,
		"baseline_conversion": res.BaselineConversion,
		"recent_conversion":   res.RecentConversion,
		"change_pct":          res.ChangePct,
	}

	return m.Create(TypeDrift, severity, message, sku, lastGood, fix, meta), true
}

// AnomalySeverity maps a raw isolation-forest score (lower means more
// anomalous) onto a severity band.
func AnomalySeverity(score float64) telemetry.Severity {
	switch {
	case score < -0.5:
		return telemetry.SeverityCritical
	case score < -0.3:
		return telemetry.SeverityHigh
	default:
		return telemetry.SeverityMedium
	}
}

// FromAnomaly enriches an anomaly finding. Returns false when the record was
// scored normal.
func (m *Manager) FromAnomaly(res anomaly.Result, rec telemetry.Record) (Alert, bool) {
	if !res.IsAnomaly {
		return Alert{}, false
	}

	severity := AnomalySeverity(res.Score)
	explanation := res.Explanation
	if explanation == "" {
		explanation = "Unusual pattern detected"
	}
	message := fmt.Sprintf("Anomaly detected: %s", explanation)
	fix := "Investigate data quality and system behavior. Check for bot activity, data pipeline issues, or pricing errors."

	lastGood := map[string]interface{}{
		"price":     rec.Price,
		"stock":     rec.Stock,
		"views":     rec.Views,
		"purchases": rec.Purchases,
	}
	meta := map[string]interface{}{
		"anomaly_score": res.Score,
		"features":      res.Features,
		"explanation":   res.Explanation,
	}

	return m.Create(TypeAnomaly, severity, message, rec.SKU, lastGood, fix, meta), true
}

// DeviationSeverity maps a Kalman z-score onto a severity band.
func DeviationSeverity(zScore float64) telemetry.Severity {
	switch {
	case zScore > 3.0:
		return telemetry.SeverityCritical
	case zScore > 2.5:
		return telemetry.SeverityHigh
	default:
		return telemetry.SeverityMedium
	}
}

// FromDeviation enriches a Kalman conversion deviation finding. Returns
// false when no deviation was flagged.
func (m *Manager) FromDeviation(res kalman.DeviationResult, sku string) (Alert, bool) {
	if !res.Detected {
		return Alert{}, false
	}

	severity := DeviationSeverity(res.ZScore)
	message := fmt.Sprintf("Conversion rate deviation for %s: Expected %.2f%%, Observed %.2f%% (z-score: %.2f)",
		sku, res.ExpectedConversion*100, res.ObservedConversion*100, res.ZScore)
	fix := "Review conversion funnel and user behavior. Check for checkout issues, pricing problems, or inventory availability."

	lastGood := map[string]interface{}{
		"expected_conversion": res.ExpectedConversion,
		"uncertainty":         res.Uncertainty,
	}
	meta := map[string]interface{}{
		"z_score":             res.ZScore,
		"expected_conversion": res.ExpectedConversion,
		"observed_conversion": res.ObservedConversion,
		"deviation_pct":       res.DeviationPct,
	}

	return m.Create(TypeConversionDeviation, severity, message, sku, lastGood, fix, meta), true
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
