package contracts

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wijeratne-a/PriceCanary/internal/telemetry"
)

const priceHistoryCap = 100

// Result carries the outcome of validating a single record. Normalized is
// nil when a shape-level violation stopped the pipeline.
type Result struct {
	IsValid    bool
	Violations []telemetry.Violation
	Normalized *telemetry.Record
}

func (r *Result) add(vt telemetry.ViolationType, severity telemetry.Severity, sku, reason string) {
	r.Violations = append(r.Violations, telemetry.Violation{
		Timestamp: time.Now(),
		SKU:       sku,
		Type:      vt,
		Reason:    reason,
		Severity:  severity,
	})
	r.IsValid = false
}

// HasSchemaError reports whether any violation is a shape or funnel failure.
// Such records are dropped before detector state updates.
func (r *Result) HasSchemaError() bool {
	for _, v := range r.Violations {
		if v.Type == telemetry.ViolationSchemaError {
			return true
		}
	}
	return false
}

// Validator enforces the telemetry data contract. It is stateful: the last
// 100 observed prices per SKU back the price-jump check.
type Validator struct {
	mu                 sync.RWMutex
	priceJumpThreshold float64
	maxPrice           float64
	priceHistory       map[string][]float64
}

// NewValidator creates a validator with the given price-jump factor and
// maximum acceptable post-normalization price.
func NewValidator(priceJumpThreshold, maxPrice float64) *Validator {
	return &Validator{
		priceJumpThreshold: priceJumpThreshold,
		maxPrice:           maxPrice,
		priceHistory:       make(map[string][]float64),
	}
}

// Validate runs the contract pipeline against one record:
// shape, price normalization, funnel invariants, range checks, the stateful
// per-SKU price-jump check, and timestamp freshness. A record can accumulate
// multiple violations; IsValid means none were added.
func (v *Validator) Validate(rec telemetry.Record) Result {
	res := Result{IsValid: true}

	// Shape check: required fields. Stop here on failure, nothing below can
	// interpret a malformed record.
	if rec.SKU == "" {
		res.add(telemetry.ViolationSchemaError, telemetry.SeverityHigh, "", "missing required field: sku")
		return res
	}
	if rec.Timestamp.IsZero() {
		res.add(telemetry.ViolationSchemaError, telemetry.SeverityHigh, rec.SKU, "missing required field: timestamp")
		return res
	}
	if rec.Views < 0 || rec.AddToCart < 0 || rec.Purchases < 0 {
		res.add(telemetry.ViolationSchemaError, telemetry.SeverityHigh, rec.SKU,
			fmt.Sprintf("funnel counts must be non-negative: views=%d add_to_cart=%d purchases=%d",
				rec.Views, rec.AddToCart, rec.Purchases))
		return res
	}

	norm := rec
	norm.Price = telemetry.NormalizePrice(rec.Price)

	// Funnel invariants.
	if norm.AddToCart > norm.Views {
		res.add(telemetry.ViolationSchemaError, telemetry.SeverityHigh, norm.SKU,
			fmt.Sprintf("add_to_cart (%d) cannot exceed views (%d)", norm.AddToCart, norm.Views))
	}
	if norm.Purchases > norm.AddToCart {
		res.add(telemetry.ViolationSchemaError, telemetry.SeverityHigh, norm.SKU,
			fmt.Sprintf("purchases (%d) cannot exceed add_to_cart (%d)", norm.Purchases, norm.AddToCart))
	}

	// Range checks.
	if norm.Stock < 0 {
		res.add(telemetry.ViolationNegativeStock, telemetry.SeverityHigh, norm.SKU,
			fmt.Sprintf("stock value is negative: %d", norm.Stock))
	}
	if norm.Price <= 0 {
		res.add(telemetry.ViolationUnitError, telemetry.SeverityCritical, norm.SKU,
			fmt.Sprintf("price %.4f is not strictly positive", norm.Price))
	} else if norm.Price > v.maxPrice {
		res.add(telemetry.ViolationUnitError, telemetry.SeverityCritical, norm.SKU,
			fmt.Sprintf("price %.2f exceeds maximum threshold %.2f - possible unit error", norm.Price, v.maxPrice))
	}

	// The jump check runs on the raw wire price: a feed that flips from
	// dollars to cents shows up as a 100x jump on the first bad record even
	// though normalization rescales it for the range checks above.
	v.checkPriceJump(&res, norm.SKU, rec.Price)

	// Timestamp freshness. Delta is measured against wall clock; the record
	// timestamp carries its own zone.
	age := time.Since(norm.Timestamp)
	if age > 24*time.Hour {
		res.add(telemetry.ViolationInvalidTimestamp, telemetry.SeverityMedium, norm.SKU,
			fmt.Sprintf("timestamp is %.1f hours old - possible stale feed", age.Hours()))
	} else if age < -time.Hour {
		res.add(telemetry.ViolationInvalidTimestamp, telemetry.SeverityMedium, norm.SKU,
			fmt.Sprintf("timestamp is %.1f hours in the future - possible timezone error", -age.Hours()))
	}

	if !res.IsValid {
		log.Debug().
			Str("sku", norm.SKU).
			Int("violations", len(res.Violations)).
			Msg("record failed contract validation")
	}

	res.Normalized = &norm
	return res
}

// checkPriceJump compares the price against the most recent retained price
// for the SKU and appends the new price to the bounded history.
func (v *Validator) checkPriceJump(res *Result, sku string, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	hist := v.priceHistory[sku]
	if len(hist) > 0 {
		last := hist[len(hist)-1]
		if last > 0 {
			ratio := price / last
			if ratio > v.priceJumpThreshold {
				res.add(telemetry.ViolationPriceJump, telemetry.SeverityCritical, sku,
					fmt.Sprintf("price jumped from %.2f to %.2f (%.2fx) - exceeds threshold %.1fx",
						last, price, ratio, v.priceJumpThreshold))
			} else if ratio < 1.0/v.priceJumpThreshold {
				res.add(telemetry.ViolationPriceJump, telemetry.SeverityHigh, sku,
					fmt.Sprintf("price dropped from %.2f to %.2f (%.2fx decrease) - exceeds threshold",
						last, price, 1.0/ratio))
			}
		}
	}

	hist = append(hist, price)
	if len(hist) > priceHistoryCap {
		hist = hist[len(hist)-priceHistoryCap:]
	}
	v.priceHistory[sku] = hist
}

// HistoryLen returns the number of retained prices for a SKU.
func (v *Validator) HistoryLen(sku string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.priceHistory[sku])
}

// LastPrice returns the most recent retained price for a SKU, if any.
func (v *Validator) LastPrice(sku string) (float64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	hist := v.priceHistory[sku]
	if len(hist) == 0 {
		return 0, false
	}
	return hist[len(hist)-1], true
}
