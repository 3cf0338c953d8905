package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Contracts.PriceJumpThreshold)
	assert.Equal(t, 100000.0, cfg.Contracts.MaxPrice)
	assert.Equal(t, 0.2, cfg.Drift.PSIThreshold)
	assert.Equal(t, 0.05, cfg.Drift.KSThreshold)
	assert.Equal(t, 1000, cfg.Drift.BaselineWindow)
	assert.Equal(t, 0.01, cfg.Kalman.ProcessVariance)
	assert.Equal(t, 0.05, cfg.Kalman.MeasurementVariance)
	assert.Equal(t, 2.0, cfg.Kalman.ThresholdSigma)
	assert.Equal(t, 0.1, cfg.Anomaly.Contamination)
	assert.Equal(t, 100, cfg.Anomaly.NEstimators)
	assert.Equal(t, int64(42), cfg.Anomaly.RandomSeed)
	assert.Equal(t, 3600, cfg.Alerts.TTLSeconds)
	assert.Equal(t, time.Hour, cfg.AlertTTL())

	require.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
drift:
  psi_threshold: 0.3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.3, cfg.Drift.PSIThreshold)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "untouched keys keep defaults")
	assert.Equal(t, 10.0, cfg.Contracts.PriceJumpThreshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := writeConfig(t, `
contracts:
  price_jump_threshold: 0.5
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price_jump_threshold")
}

func TestValidate_Bounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"max_price", func(c *Config) { c.Contracts.MaxPrice = -1 }},
		{"baseline_window", func(c *Config) { c.Drift.BaselineWindow = 1 }},
		{"contamination", func(c *Config) { c.Anomaly.Contamination = 0.9 }},
		{"n_estimators", func(c *Config) { c.Anomaly.NEstimators = 0 }},
		{"alert_ttl", func(c *Config) { c.Alerts.TTLSeconds = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
