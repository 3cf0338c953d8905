package telemetry

import (
	"time"
)

// Severity classifies violations and alerts for triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the four known severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ViolationType identifies the contract rule a record broke.
type ViolationType string

const (
	ViolationSchemaError      ViolationType = "schema_error"
	ViolationNegativeStock    ViolationType = "negative_stock"
	ViolationPriceJump        ViolationType = "price_jump"
	ViolationUnitError        ViolationType = "unit_error"
	ViolationInvalidTimestamp ViolationType = "invalid_timestamp"
	ViolationMissingRequired  ViolationType = "missing_required"
	ViolationOutOfBounds      ViolationType = "out_of_bounds"
)

// Record is a single e-commerce telemetry observation for one SKU.
// Price is in dollars after normalization; the funnel counters satisfy
// purchases <= add_to_cart <= views for any record that passes validation.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	SKU       string    `json:"sku"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	Views     int       `json:"views"`
	AddToCart int       `json:"add_to_cart"`
	Purchases int       `json:"purchases"`
	Referrer  string    `json:"referrer,omitempty"`
}

// ConversionRate returns purchases/views, or 0 when there are no views.
func (r Record) ConversionRate() float64 {
	if r.Views <= 0 {
		return 0
	}
	return float64(r.Purchases) / float64(r.Views)
}

// CartRate returns add_to_cart/views, or 0 when there are no views.
func (r Record) CartRate() float64 {
	if r.Views <= 0 {
		return 0
	}
	return float64(r.AddToCart) / float64(r.Views)
}

// NormalizePrice applies the cents heuristic: raw prices above 1000 are
// assumed to be cents and divided by 100. Runs before any range check, so a
// genuine high-ticket item above $1000 is also rescaled; that interaction is
// a known quirk of the upstream feed contract.
func NormalizePrice(raw float64) float64 {
	if raw > 1000 {
		return raw / 100.0
	}
	return raw
}

// Violation records a single contract rule failure for a record.
type Violation struct {
	Timestamp time.Time     `json:"timestamp"`
	SKU       string        `json:"sku,omitempty"`
	Type      ViolationType `json:"violation_type"`
	Reason    string        `json:"reason"`
	Severity  Severity      `json:"severity"`
}
