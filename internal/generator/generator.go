package generator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/wijeratne-a/PriceCanary/internal/telemetry"
)

// FaultType enumerates the data faults the generator can inject.
type FaultType string

const (
	FaultNone            FaultType = "none"
	FaultPriceJump       FaultType = "price_jump"
	FaultUnitErrorCents  FaultType = "unit_error_cents"
	FaultUnitErrorDollar FaultType = "unit_error_dollars"
	FaultNegativeStock   FaultType = "negative_stock"
	FaultBotSpike        FaultType = "bot_spike"
	FaultStaleTimestamp  FaultType = "stale_timestamp"
	FaultTimezoneShift   FaultType = "timezone_shift"
)

var allFaults = []FaultType{
	FaultPriceJump,
	FaultUnitErrorCents,
	FaultUnitErrorDollar,
	FaultNegativeStock,
	FaultBotSpike,
	FaultStaleTimestamp,
	FaultTimezoneShift,
}

// Options configures the synthetic store.
type Options struct {
	SKUCount         int
	PriceMin         float64
	PriceMax         float64
	StockMax         int
	Referrers        []string
	FaultProbability float64
	Seed             int64
}

// DefaultOptions returns a 100-SKU store with a 5% fault rate.
func DefaultOptions() Options {
	return Options{
		SKUCount:         100,
		PriceMin:         10.0,
		PriceMax:         500.0,
		StockMax:         1000,
		Referrers:        []string{"organic", "google", "facebook", "email", "direct", "affiliate", "unknown"},
		FaultProbability: 0.05,
		Seed:             time.Now().UnixNano(),
	}
}

type skuState struct {
	price float64
	stock int
	views int
}

// Generator produces synthetic e-commerce telemetry with per-SKU random-walk
// state and configurable fault injection. Used to warm the detectors at
// startup (fault-free) and to drive the simulate command.
type Generator struct {
	opts   Options
	rng    *rand.Rand
	skus   []string
	states map[string]*skuState
}

// New creates a generator. The seed makes streams reproducible.
func New(opts Options) *Generator {
	rng := rand.New(rand.NewSource(opts.Seed))

	g := &Generator{
		opts:   opts,
		rng:    rng,
		states: make(map[string]*skuState),
	}
	for i := 1; i <= opts.SKUCount; i++ {
		sku := fmt.Sprintf("SKU-%04d", i)
		g.skus = append(g.skus, sku)
		g.states[sku] = &skuState{
			price: opts.PriceMin + rng.Float64()*(opts.PriceMax-opts.PriceMin),
			stock: rng.Intn(opts.StockMax + 1),
			views: 10 + rng.Intn(991),
		}
	}
	return g
}

// Generate produces one record for a random SKU at the given timestamp,
// injecting a random fault with the configured probability.
func (g *Generator) Generate(ts time.Time) telemetry.Record {
	fault := FaultNone
	if g.rng.Float64() < g.opts.FaultProbability {
		fault = allFaults[g.rng.Intn(len(allFaults))]
	}
	return g.GenerateWithFault(ts, g.skus[g.rng.Intn(len(g.skus))], fault)
}

// GenerateWithFault produces one record for a specific SKU and fault.
func (g *Generator) GenerateWithFault(ts time.Time, sku string, fault FaultType) telemetry.Record {
	state, ok := g.states[sku]
	if !ok {
		state = &skuState{price: g.opts.PriceMin, stock: g.opts.StockMax / 2, views: 100}
		g.states[sku] = state
		g.skus = append(g.skus, sku)
	}

	price := state.price
	stock := state.stock
	views := 1 + g.rng.Intn(state.views)

	switch fault {
	case FaultPriceJump:
		price = state.price * (50 + g.rng.Float64()*150)
	case FaultUnitErrorCents:
		price = state.price * 100
	case FaultUnitErrorDollar:
		price = state.price / 100
	case FaultNegativeStock:
		stock = -(1 + g.rng.Intn(100))
	case FaultBotSpike:
		views *= 10 + g.rng.Intn(91)
	case FaultStaleTimestamp:
		ts = ts.Add(-time.Duration(25+g.rng.Intn(48)) * time.Hour)
	case FaultTimezoneShift:
		ts = ts.Add(time.Duration(2+g.rng.Intn(11)) * time.Hour)
	}

	// Funnel: 10-30% of views reach the cart, 20-50% of carts convert.
	cartRate := 0.10 + g.rng.Float64()*0.20
	purchaseRate := 0.20 + g.rng.Float64()*0.30
	addToCart := int(float64(views) * cartRate)
	purchases := int(float64(addToCart) * purchaseRate)
	if stock >= 0 && purchases > stock {
		purchases = stock
	}

	// Random walk for next time: prices drift within 2%, sales deplete
	// stock with occasional restocks.
	if fault != FaultPriceJump && fault != FaultUnitErrorCents && fault != FaultUnitErrorDollar {
		state.price *= 1 + (g.rng.Float64()*0.04 - 0.02)
		if state.price < g.opts.PriceMin {
			state.price = g.opts.PriceMin
		}
	}
	if fault != FaultNegativeStock {
		state.stock -= purchases
		if state.stock < 0 {
			state.stock = 0
		}
		if g.rng.Float64() < 0.1 {
			state.stock += 10 + g.rng.Intn(91)
		}
		if state.stock > g.opts.StockMax {
			state.stock = g.opts.StockMax
		}
	}

	return telemetry.Record{
		Timestamp: ts,
		SKU:       sku,
		Price:     round2(price),
		Stock:     stock,
		Views:     views,
		AddToCart: addToCart,
		Purchases: purchases,
		Referrer:  g.opts.Referrers[g.rng.Intn(len(g.opts.Referrers))],
	}
}

// Batch produces n records spaced interval apart starting at start.
func (g *Generator) Batch(n int, start time.Time, interval time.Duration) []telemetry.Record {
	records := make([]telemetry.Record, 0, n)
	ts := start
	for i := 0; i < n; i++ {
		records = append(records, g.Generate(ts))
		ts = ts.Add(interval)
	}
	return records
}

func round2(x float64) float64 {
	return float64(int64(x*100+0.5)) / 100
}
