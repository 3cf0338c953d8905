package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "PriceCanary"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "pricecanary",
		Short:   "Real-time guardrails for e-commerce telemetry",
		Version: version,
		Long: `PriceCanary watches a stream of e-commerce telemetry (price, stock,
funnel counts) and raises enriched alerts when the data goes bad:
contract violations, distribution drift, multivariate anomalies, and
conversion-rate deviations.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the guardrail HTTP service",
		Long:  "Warms the detectors on a synthetic baseline, then serves ingest, alert, and metrics endpoints",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Path to YAML config file (defaults apply when empty)")
	serveCmd.Flags().Int("port", 0, "Override the configured HTTP port")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a synthetic telemetry stream through the pipeline",
		Long:  "Generates records with injected faults, processes them locally, and prints alert statistics",
		RunE:  runSimulate,
	}
	simulateCmd.Flags().Int("records", 2000, "Number of records to generate")
	simulateCmd.Flags().Float64("fault-rate", 0.05, "Probability of injecting a fault per record")
	simulateCmd.Flags().Int64("seed", 0, "Random seed (0 uses current time)")
	simulateCmd.Flags().String("config", "", "Path to YAML config file (defaults apply when empty)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
