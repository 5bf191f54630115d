// Package main provides the entry point for the batch search worker. The
// worker consumes search.requested events from Kafka and runs each one as
// a batch search-and-ingest.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/helixir/paper-search-engine/internal/app"
	"github.com/helixir/paper-search-engine/internal/config"
	"github.com/helixir/paper-search-engine/internal/events"
	"github.com/helixir/paper-search-engine/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Kafka.Enabled {
		return errors.New("worker requires kafka.enabled")
	}
	if !cfg.Database.Enabled {
		return errors.New("worker requires database.enabled")
	}

	logger := observability.NewLogger(app.LoggingConfig(cfg.Logging))
	logger = logger.With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, observability.NewMetrics(cfg.Metrics.Namespace))
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close resources")
		}
	}()

	listener := events.NewListener(events.ListenerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.RequestsTopic,
		GroupID: cfg.Kafka.GroupID,
	}, a.Engine, logger)
	defer func() {
		if closeErr := listener.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close listener")
		}
	}()

	logger.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.RequestsTopic).
		Str("group_id", cfg.Kafka.GroupID).
		Msg("worker started")

	if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("listener: %w", err)
	}

	logger.Info().Msg("worker stopped")
	return nil
}
