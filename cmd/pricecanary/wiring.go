package main

import (
	"fmt"

	"github.com/wijeratne-a/PriceCanary/internal/alerts"
	"github.com/wijeratne-a/PriceCanary/internal/anomaly"
	"github.com/wijeratne-a/PriceCanary/internal/archive"
	"github.com/wijeratne-a/PriceCanary/internal/config"
	"github.com/wijeratne-a/PriceCanary/internal/contracts"
	"github.com/wijeratne-a/PriceCanary/internal/drift"
	"github.com/wijeratne-a/PriceCanary/internal/kalman"
	"github.com/wijeratne-a/PriceCanary/internal/metrics"
	"github.com/wijeratne-a/PriceCanary/internal/pipeline"
)

// buildPipeline assembles the engines from configuration.
func buildPipeline(cfg config.Config, collector *metrics.Collector) (*pipeline.Pipeline, error) {
	var arch *archive.Writer
	if cfg.Archive.Path != "" {
		var err error
		arch, err = archive.NewWriter(cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open violations archive: %w", err)
		}
	}

	return &pipeline.Pipeline{
		Validator: contracts.NewValidator(cfg.Contracts.PriceJumpThreshold, cfg.Contracts.MaxPrice),
		Drift:     drift.NewDetector(cfg.Drift.PSIThreshold, cfg.Drift.KSThreshold, cfg.Drift.BaselineWindow),
		Anomaly: anomaly.NewDetector(anomaly.Params{
			Contamination: cfg.Anomaly.Contamination,
			NEstimators:   cfg.Anomaly.NEstimators,
			RandomSeed:    cfg.Anomaly.RandomSeed,
		}),
		Kalman: kalman.NewFilter(kalman.Params{
			ProcessVariance:     cfg.Kalman.ProcessVariance,
			MeasurementVariance: cfg.Kalman.MeasurementVariance,
			InitialEstimate:     cfg.Kalman.InitialEstimate,
			InitialUncertainty:  cfg.Kalman.InitialUncertainty,
			ThresholdSigma:      cfg.Kalman.ThresholdSigma,
		}),
		Alerts:  alerts.NewManager(cfg.AlertTTL()),
		Metrics: collector,
		Archive: arch,
	}, nil
}
