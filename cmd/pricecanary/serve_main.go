package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wijeratne-a/PriceCanary/internal/config"
	"github.com/wijeratne-a/PriceCanary/internal/generator"
	httpserver "github.com/wijeratne-a/PriceCanary/internal/interfaces/http"
	"github.com/wijeratne-a/PriceCanary/internal/metrics"
)

const rateSampleInterval = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	portOverride, _ := cmd.Flags().GetInt("port")

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if portOverride != 0 {
		cfg.Server.Port = portOverride
	}

	collector := metrics.NewCollector()
	pipe, err := buildPipeline(cfg, collector)
	if err != nil {
		return err
	}

	// Warm the detectors on a clean synthetic baseline so the anomaly model
	// and drift reservoir are ready before the first real record.
	if cfg.Warmup.Records > 0 {
		opts := generator.DefaultOptions()
		opts.FaultProbability = 0
		opts.Seed = cfg.Warmup.Seed
		gen := generator.New(opts)
		batch := gen.Batch(cfg.Warmup.Records, time.Now().Add(-time.Duration(cfg.Warmup.Records)*time.Second), time.Second)
		if err := pipe.Warmup(batch); err != nil {
			return fmt.Errorf("warm-up failed: %w", err)
		}
	}

	handlers := httpserver.NewHandlers(pipe, collector)
	server, err := httpserver.NewServer(cfg.Server, handlers)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	collector.StartRateSampler(ctx, rateSampleInterval)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Info().Str("addr", server.GetAddress()).Msg("guardrail service ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	log.Info().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}
