package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wijeratne-a/PriceCanary/internal/generator"
	"github.com/wijeratne-a/PriceCanary/internal/metrics"
)

func runSimulate(cmd *cobra.Command, args []string) error {
	records, _ := cmd.Flags().GetInt("records")
	faultRate, _ := cmd.Flags().GetFloat64("fault-rate")
	seed, _ := cmd.Flags().GetInt64("seed")
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	// The simulation is in-process only: keep the archive off disk unless
	// configured explicitly.
	if cfgPath == "" {
		cfg.Archive.Path = ""
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	collector := metrics.NewCollector()
	pipe, err := buildPipeline(cfg, collector)
	if err != nil {
		return err
	}

	warmOpts := generator.DefaultOptions()
	warmOpts.FaultProbability = 0
	warmOpts.Seed = seed
	warmGen := generator.New(warmOpts)
	warmStart := time.Now().Add(-time.Duration(cfg.Warmup.Records+records) * time.Second)
	if err := pipe.Warmup(warmGen.Batch(cfg.Warmup.Records, warmStart, time.Second)); err != nil {
		return fmt.Errorf("warm-up failed: %w", err)
	}

	opts := generator.DefaultOptions()
	opts.FaultProbability = faultRate
	opts.Seed = seed + 1
	gen := generator.New(opts)

	log.Info().
		Int("records", records).
		Float64("fault_rate", faultRate).
		Int64("seed", seed).
		Msg("simulation started")

	ctx := context.Background()
	ts := time.Now().Add(-time.Duration(records) * time.Second)
	var rejected, flagged int
	for i := 0; i < records; i++ {
		res, err := pipe.Process(ctx, gen.Generate(ts))
		if err != nil {
			return err
		}
		if !res.Success {
			rejected++
		}
		if res.AlertsCreated > 0 {
			flagged++
		}
		ts = ts.Add(time.Second)
	}

	stats := pipe.Alerts.GetStats()

	fmt.Printf("\nSimulation complete: %d records processed\n", records)
	fmt.Printf("  Rejected records:  %d\n", rejected)
	fmt.Printf("  Flagged records:   %d\n", flagged)
	fmt.Printf("  Alerts created:    %d\n", stats.Total)
	fmt.Printf("  By severity:\n")
	for _, sev := range []string{"critical", "high", "medium", "low"} {
		if n := stats.BySeverity[sev]; n > 0 {
			fmt.Printf("    %-9s %d\n", sev, n)
		}
	}
	fmt.Printf("  By type:\n")
	for at, n := range stats.ByType {
		fmt.Printf("    %-21s %d\n", at, n)
	}
	return nil
}
