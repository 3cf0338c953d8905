package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Contracts ContractsConfig `yaml:"contracts"`
	Drift     DriftConfig     `yaml:"drift"`
	Kalman    KalmanConfig    `yaml:"kalman"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Warmup    WarmupConfig    `yaml:"warmup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string  `yaml:"host"`
	Port            int     `yaml:"port"`
	ReadTimeoutSec  int     `yaml:"read_timeout_seconds"`
	WriteTimeoutSec int     `yaml:"write_timeout_seconds"`
	IdleTimeoutSec  int     `yaml:"idle_timeout_seconds"`
	IngestRateLimit float64 `yaml:"ingest_rate_limit"` // requests/second, 0 disables
	IngestBurst     int     `yaml:"ingest_burst"`
}

// ContractsConfig holds validator thresholds.
type ContractsConfig struct {
	PriceJumpThreshold float64 `yaml:"price_jump_threshold"`
	MaxPrice           float64 `yaml:"max_price"`
}

// DriftConfig holds drift detector thresholds.
type DriftConfig struct {
	PSIThreshold   float64 `yaml:"psi_threshold"`
	KSThreshold    float64 `yaml:"ks_threshold"`
	BaselineWindow int     `yaml:"baseline_window"`
}

// KalmanConfig holds conversion filter parameters.
type KalmanConfig struct {
	ProcessVariance     float64 `yaml:"process_variance"`
	MeasurementVariance float64 `yaml:"measurement_variance"`
	InitialEstimate     float64 `yaml:"initial_estimate"`
	InitialUncertainty  float64 `yaml:"initial_uncertainty"`
	ThresholdSigma      float64 `yaml:"threshold_sigma"`
}

// AnomalyConfig holds isolation forest parameters.
type AnomalyConfig struct {
	Contamination float64 `yaml:"contamination"`
	NEstimators   int     `yaml:"n_estimators"`
	RandomSeed    int64   `yaml:"random_seed"`
}

// AlertsConfig holds alert manager settings.
type AlertsConfig struct {
	TTLSeconds int `yaml:"alert_ttl_seconds"`
}

// ArchiveConfig holds the violation archive location.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// WarmupConfig controls the synthetic warm-up batch that trains the anomaly
// model and seeds the drift baseline at startup.
type WarmupConfig struct {
	Records int   `yaml:"records"`
	Seed    int64 `yaml:"seed"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 10,
			IdleTimeoutSec:  60,
			IngestRateLimit: 0,
			IngestBurst:     100,
		},
		Contracts: ContractsConfig{
			PriceJumpThreshold: 10.0,
			MaxPrice:           100000.0,
		},
		Drift: DriftConfig{
			PSIThreshold:   0.2,
			KSThreshold:    0.05,
			BaselineWindow: 1000,
		},
		Kalman: KalmanConfig{
			ProcessVariance:     0.01,
			MeasurementVariance: 0.05,
			InitialEstimate:     0.05,
			InitialUncertainty:  1.0,
			ThresholdSigma:      2.0,
		},
		Anomaly: AnomalyConfig{
			Contamination: 0.1,
			NEstimators:   100,
			RandomSeed:    42,
		},
		Alerts: AlertsConfig{
			TTLSeconds: 3600,
		},
		Archive: ArchiveConfig{
			Path: "violations.csv",
		},
		Warmup: WarmupConfig{
			Records: 500,
			Seed:    42,
		},
	}
}

// Load reads a YAML config file over the defaults, so partial files are
// fine.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engines cannot run with.
func (c Config) Validate() error {
	if c.Contracts.PriceJumpThreshold <= 1 {
		return fmt.Errorf("price_jump_threshold must be > 1, got %g", c.Contracts.PriceJumpThreshold)
	}
	if c.Contracts.MaxPrice <= 0 {
		return fmt.Errorf("max_price must be positive, got %g", c.Contracts.MaxPrice)
	}
	if c.Drift.BaselineWindow < 2 {
		return fmt.Errorf("baseline_window must be >= 2, got %d", c.Drift.BaselineWindow)
	}
	if c.Anomaly.Contamination <= 0 || c.Anomaly.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %g", c.Anomaly.Contamination)
	}
	if c.Anomaly.NEstimators < 1 {
		return fmt.Errorf("n_estimators must be >= 1, got %d", c.Anomaly.NEstimators)
	}
	if c.Alerts.TTLSeconds < 1 {
		return fmt.Errorf("alert_ttl_seconds must be >= 1, got %d", c.Alerts.TTLSeconds)
	}
	return nil
}

// AlertTTL returns the alert TTL as a duration.
func (c Config) AlertTTL() time.Duration {
	return time.Duration(c.Alerts.TTLSeconds) * time.Second
}
