package alerts

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wijeratne-a/PriceCanary/internal/telemetry"
)

// Type identifies which engine produced an alert.
type Type string

const (
	TypeContractViolation   Type = "contract_violation"
	TypeDrift               Type = "drift"
	TypeAnomaly             Type = "anomaly"
	TypeConversionDeviation Type = "conversion_deviation"
)

// Alert is an enriched, deduplicatable finding for the on-call dashboard.
type Alert struct {
	ID            string                 `json:"alert_id"`
	Type          Type                   `json:"alert_type"`
	Severity      telemetry.Severity     `json:"severity"`
	Message       string                 `json:"message"`
	SKU           string                 `json:"sku,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	LastGoodState map[string]interface{} `json:"last_good_state"`
	SuggestedFix  string                 `json:"suggested_fix,omitempty"`
	Metadata      map[string]interface{} `json:"metadata"`
	Acknowledged  bool                   `json:"acknowledged"`
	Resolved      bool                   `json:"resolved"`
}

// AgeSeconds returns the alert's age at the given instant.
func (a Alert) AgeSeconds(now time.Time) float64 {
	return now.Sub(a.Timestamp).Seconds()
}

// Filter narrows alert listings. Zero values mean "no constraint"; Resolved
// is a tri-state pointer.
type Filter struct {
	Severity telemetry.Severity
	Type     Type
	SKU      string
	Resolved *bool
	Limit    int
}

// Stats summarizes the live alert table.
type Stats struct {
	Total          int            `json:"total"`
	BySeverity     map[string]int `json:"by_severity"`
	ByType         map[string]int `json:"by_type"`
	Unresolved     int            `json:"unresolved"`
	Unacknowledged int            `json:"unacknowledged"`
}

// Manager owns the alert table: creation, lifecycle, TTL expiry, and
// filtered listing. Expiry is opportunistic: every Get and GetStats call
// purges alerts older than the TTL. IDs are ALERT-YYYYMMDD-NNNNNN with a
// counter that is strictly increasing for the process lifetime; the date
// part is cosmetic, uniqueness comes from the counter.
type Manager struct {
	mu      sync.RWMutex
	alerts  map[string]*Alert
	ttl     time.Duration
	counter uint64
	now     func() time.Time
}

// NewManager creates an alert manager with the given TTL.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		alerts: make(map[string]*Alert),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *Manager) nextID(now time.Time) string {
	m.counter++
	return fmt.Sprintf("ALERT-%s-%06d", now.Format("20060102"), m.counter)
}

// Create registers a new alert and returns a copy of it.
func (m *Manager) Create(alertType Type, severity telemetry.Severity, message, sku string,
	lastGoodState map[string]interface{}, suggestedFix string, metadata map[string]interface{}) Alert {

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if lastGoodState == nil {
		lastGoodState = map[string]interface{}{}
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	a := &Alert{
		ID:            m.nextID(now),
		Type:          alertType,
		Severity:      severity,
		Message:       message,
		SKU:           sku,
		Timestamp:     now,
		LastGoodState: lastGoodState,
		SuggestedFix:  suggestedFix,
		Metadata:      metadata,
	}
	m.alerts[a.ID] = a

	log.Debug().
		Str("alert_id", a.ID).
		Str("alert_type", string(alertType)).
		Str("severity", string(severity)).
		Str("sku", sku).
		Msg("alert created")

	return *a
}

// Get lists alerts matching the filter, newest first, truncated at
// Filter.Limit (default 100). Expired alerts are purged first.
func (m *Manager) Get(f Filter) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []Alert
	for _, a := range m.alerts {
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.SKU != "" && a.SKU != f.SKU {
			continue
		}
		if f.Resolved != nil && a.Resolved != *f.Resolved {
			continue
		}
		out = append(out, *a)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Acknowledge marks an alert acknowledged. Idempotent; false for unknown IDs.
func (m *Manager) Acknowledge(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return false
	}
	a.Acknowledged = true
	return true
}

// Resolve marks an alert resolved. Idempotent; false for unknown IDs.
func (m *Manager) Resolve(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return false
	}
	a.Resolved = true
	return true
}

// GetStats returns counts over the live (unexpired) alert table.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked()

	stats := Stats{
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}
	for _, a := range m.alerts {
		stats.Total++
		stats.BySeverity[string(a.Severity)]++
		stats.ByType[string(a.Type)]++
		if !a.Resolved {
			stats.Unresolved++
		}
		if !a.Acknowledged {
			stats.Unacknowledged++
		}
	}
	return stats
}

func (m *Manager) purgeLocked() {
	now := m.now()
	for id, a := range m.alerts {
		if now.Sub(a.Timestamp) > m.ttl {
			delete(m.alerts, id)
		}
	}
}
