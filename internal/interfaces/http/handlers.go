package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/wijeratne-a/PriceCanary/internal/alerts"
	"github.com/wijeratne-a/PriceCanary/internal/archive"
	"github.com/wijeratne-a/PriceCanary/internal/metrics"
	"github.com/wijeratne-a/PriceCanary/internal/pipeline"
	"github.com/wijeratne-a/PriceCanary/internal/telemetry"
)

// Handlers wires HTTP endpoints to the guardrail pipeline.
type Handlers struct {
	Pipeline  *pipeline.Pipeline
	Collector *metrics.Collector
	Stream    *StreamHub
	startTime time.Time
}

// NewHandlers creates the handler set and hooks alert creation into the
// stream hub.
func NewHandlers(p *pipeline.Pipeline, c *metrics.Collector) *Handlers {
	h := &Handlers{
		Pipeline:  p,
		Collector: c,
		Stream:    NewStreamHub(),
		startTime: time.Now(),
	}
	p.OnAlert = func(a alerts.Alert) {
		h.Stream.Broadcast(a)
		h.syncActiveAlerts()
	}
	return h
}

// syncActiveAlerts refreshes the active-alert gauge from the live table.
func (h *Handlers) syncActiveAlerts() {
	unresolved := false
	live := h.Pipeline.Alerts.Get(alerts.Filter{Resolved: &unresolved, Limit: 10000})
	counts := make(map[string]map[string]int)
	for _, a := range live {
		sev := string(a.Severity)
		if counts[sev] == nil {
			counts[sev] = make(map[string]int)
		}
		counts[sev][string(a.Type)]++
	}
	h.Collector.SetActiveAlerts(counts)
}

// Ingest accepts a single telemetry record and runs it through the full
// pipeline. Schema-invalid records get 422; malformed JSON gets 400.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	var rec telemetry.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.Pipeline.Metrics.RecordIngest("bad_request", 0)
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	result, err := h.Pipeline.Process(r.Context(), rec)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// Alerts lists alerts newest first, with optional severity, alert_type, sku,
// resolved, and limit query filters. The stats block always covers the whole
// live table, not just the filtered listing.
func (h *Handlers) Alerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := alerts.Filter{
		Severity: telemetry.Severity(q.Get("severity")),
		Type:     alerts.Type(q.Get("alert_type")),
		SKU:      q.Get("sku"),
	}
	if v := q.Get("resolved"); v != "" {
		resolved := v == "true"
		f.Resolved = &resolved
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}

	list := h.Pipeline.Alerts.Get(f)
	if list == nil {
		list = []alerts.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": list,
		"total":  len(list),
		"stats":  h.Pipeline.Alerts.GetStats(),
	})
}

// AlertStats summarizes the live alert table.
func (h *Handlers) AlertStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Pipeline.Alerts.GetStats())
}

// AcknowledgeAlert marks an alert acknowledged.
func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.Pipeline.Alerts.Acknowledge(id) {
		writeError(w, http.StatusNotFound, "alert not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alert_id": id, "acknowledged": true})
}

// ResolveAlert marks an alert resolved and refreshes the active gauge.
func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.Pipeline.Alerts.Resolve(id) {
		writeError(w, http.StatusNotFound, "alert not found: "+id)
		return
	}
	h.syncActiveAlerts()
	writeJSON(w, http.StatusOK, map[string]interface{}{"alert_id": id, "resolved": true})
}

// Health reports engine readiness and process vitals.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"engines": map[string]interface{}{
			"drift_baseline_ready":  h.Pipeline.Drift.BaselineReady(),
			"anomaly_model_trained": h.Pipeline.Anomaly.Trained(),
			"records_processed":     h.Collector.RecordsProcessedValue(),
			"stream_subscribers":    h.Stream.Subscribers(),
		},
	})
}

// Estimates returns the per-SKU Kalman conversion estimates.
func (h *Handlers) Estimates(w http.ResponseWriter, r *http.Request) {
	est := h.Pipeline.Kalman.Estimates()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"estimates": est,
		"count":     len(est),
	})
}

// Violations reads back archived contract violations with optional sku,
// severity, and limit filters.
func (h *Handlers) Violations(w http.ResponseWriter, r *http.Request) {
	if h.Pipeline.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "violation archive disabled")
		return
	}

	q := r.URL.Query()
	f := archive.ReadFilter{
		SKU:      q.Get("sku"),
		Severity: telemetry.Severity(q.Get("severity")),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}

	violations, err := h.Pipeline.Archive.Read(f)
	if err != nil {
		log.Error().Err(err).Msg("failed to read violations archive")
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	if violations == nil {
		violations = []telemetry.Violation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"violations": violations,
		"count":      len(violations),
	})
}

// ViolationStats summarizes the archive.
func (h *Handlers) ViolationStats(w http.ResponseWriter, r *http.Request) {
	if h.Pipeline.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "violation archive disabled")
		return
	}
	stats, err := h.Pipeline.Archive.ReadStats()
	if err != nil {
		log.Error().Err(err).Msg("failed to read violations archive")
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Metrics returns the Prometheus exposition handler.
func (h *Handlers) Metrics() http.Handler {
	return h.Collector.Handler()
}

// AlertStream upgrades to WebSocket and streams alerts as they are created.
func (h *Handlers) AlertStream(w http.ResponseWriter, r *http.Request) {
	h.Stream.Serve(w, r)
}

// NotFound is the JSON 404 handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusNotFound, "endpoint not found: "+r.URL.Path)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
