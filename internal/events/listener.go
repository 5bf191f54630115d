package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/observability"
	"github.com/helixir/paper-search-engine/internal/search"
)

// BatchRunner executes a batch of searches with ingestion.
type BatchRunner interface {
	BatchSearchAndIngest(ctx context.Context, queries []string, opts domain.SearchOptions) ([]search.BatchResult, error)
}

// messageReader is the subset of *kafka.Reader used by Listener.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ListenerConfig holds configuration for the request listener.
type ListenerConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic carries search.requested events.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
}

// Listener consumes search.requested events and runs each as a batch.
// Batches run one at a time so their inter-query delays stay meaningful.
type Listener struct {
	reader messageReader
	runner BatchRunner
	logger zerolog.Logger
}

// NewListener creates a new search request listener.
func NewListener(cfg ListenerConfig, runner BatchRunner, logger zerolog.Logger) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return newListener(reader, runner, logger)
}

func newListener(reader messageReader, runner BatchRunner, logger zerolog.Logger) *Listener {
	return &Listener{
		reader: reader,
		runner: runner,
		logger: logger.With().Str("component", "request_listener").Logger(),
	}
}

// Run starts the listener loop. Blocks until context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting search request listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("search request listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received search request")

		if err := l.handle(ctx, msg.Value); err != nil {
			l.logger.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to handle search request")
		}
	}
}

// handle decodes one message and runs its batch. Malformed messages are
// reported and skipped.
func (l *Listener) handle(ctx context.Context, value []byte) error {
	var event domain.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	if event.EventType != domain.EventTypeSearchRequested {
		l.logger.Debug().Str("event_type", event.EventType).Msg("ignoring event")
		return nil
	}

	var payload domain.SearchRequestedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal search request payload: %w", err)
	}

	requestID := payload.RequestID
	if requestID == "" {
		requestID = event.AggregateID
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx = observability.WithCorrelationID(ctx, requestID)

	l.logger.Info().
		Str("correlation_id", requestID).
		Int("queries", len(payload.Queries)).
		Msg("running batch search request")

	results, err := l.runner.BatchSearchAndIngest(ctx, payload.Queries, payload.Options)
	if err != nil {
		return fmt.Errorf("batch %s: %w", requestID, err)
	}

	var failed int
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	l.logger.Info().
		Str("correlation_id", requestID).
		Int("results", len(results)).
		Int("failed", failed).
		Msg("batch search request finished")
	return nil
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing search request listener")
	return l.reader.Close()
}
