package archive

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wijeratne-a/PriceCanary/internal/telemetry"
)

var header = []string{"timestamp", "sku", "violation_type", "reason", "severity"}

// Writer appends contract violations to a flat CSV file, one row per
// violation. The file is created with a header row on first use and is never
// rewritten afterwards.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter creates the archive file (and parent directories) if needed.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create violations archive: %w", err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write archive header: %w", err)
		}
		w.Flush()
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to close violations archive: %w", err)
		}
	}

	return &Writer{path: path}, nil
}

// Append writes violations to the end of the archive.
func (w *Writer) Append(violations []telemetry.Violation) error {
	if len(violations) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open violations archive: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	for _, v := range violations {
		row := []string{
			v.Timestamp.Format(time.RFC3339),
			v.SKU,
			string(v.Type),
			v.Reason,
			string(v.Severity),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write violation row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush violations archive: %w", err)
	}

	log.Debug().Int("count", len(violations)).Str("path", w.path).Msg("violations archived")
	return nil
}

// ReadFilter narrows archive read-back.
type ReadFilter struct {
	SKU      string
	Severity telemetry.Severity
	Limit    int
}

// Read returns archived violations matching the filter, in file order,
// truncated at Limit (default 1000).
func (w *Writer) Read(f ReadFilter) ([]telemetry.Violation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := w.readRows()
	if err != nil {
		return nil, err
	}

	var out []telemetry.Violation
	for _, row := range rows {
		v := rowToViolation(row)
		if f.SKU != "" && v.SKU != f.SKU {
			continue
		}
		if f.Severity != "" && v.Severity != f.Severity {
			continue
		}
		out = append(out, v)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Stats summarizes the archive contents.
type Stats struct {
	Total      int            `json:"total_violations"`
	ByType     map[string]int `json:"by_type"`
	BySeverity map[string]int `json:"by_severity"`
	BySKU      map[string]int `json:"by_sku"`
}

// ReadStats scans the archive and returns per-type, per-severity, and
// per-SKU counts.
func (w *Writer) ReadStats() (Stats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := Stats{
		ByType:     make(map[string]int),
		BySeverity: make(map[string]int),
		BySKU:      make(map[string]int),
	}

	rows, err := w.readRows()
	if err != nil {
		return stats, err
	}

	for _, row := range rows {
		v := rowToViolation(row)
		stats.Total++
		stats.ByType[string(v.Type)]++
		stats.BySeverity[string(v.Severity)]++
		if v.SKU != "" {
			stats.BySKU[v.SKU]++
		}
	}
	return stats, nil
}

func (w *Writer) readRows() ([][]string, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open violations archive: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read violations archive: %w", err)
	}
	if len(rows) > 0 {
		rows = rows[1:] // header
	}
	return rows, nil
}

func rowToViolation(row []string) telemetry.Violation {
	var v telemetry.Violation
	if len(row) != len(header) {
		return v
	}
	if ts, err := time.Parse(time.RFC3339, row[0]); err == nil {
		v.Timestamp = ts
	}
	v.SKU = row[1]
	v.Type = telemetry.ViolationType(row[2])
	v.Reason = row[3]
	v.Severity = telemetry.Severity(row[4])
	return v
}
