// Package events publishes domain events to Kafka and consumes batch
// search requests from it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-search-engine/internal/domain"
)

// messageWriter is the subset of *kafka.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublisherConfig holds configuration for the event publisher.
type PublisherConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic receives every published event.
	Topic string
	// BatchSize is the maximum number of messages buffered before a write.
	BatchSize int
	// BatchTimeout bounds how long a partial batch waits.
	BatchTimeout time.Duration
}

// Publisher writes domain events to a Kafka topic, keyed by aggregate id so
// events of one aggregate stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	logger zerolog.Logger
}

// NewPublisher creates a Publisher backed by a kafka-go writer.
func NewPublisher(cfg PublisherConfig, logger zerolog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(writer, logger)
}

func newPublisher(writer messageWriter, logger zerolog.Logger) *Publisher {
	return &Publisher{
		writer: writer,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish serializes event and writes it synchronously.
func (p *Publisher) Publish(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return domain.NewValidationError("event", "event cannot be nil")
	}
	if event.EventType == "" {
		return domain.NewValidationError("event_type", "event type is required")
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
		Time: event.CreatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.EventType, err)
	}

	p.logger.Debug().
		Str("event_type", event.EventType).
		Str("event_id", event.EventID).
		Str("aggregate_id", event.AggregateID).
		Msg("event published")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	p.logger.Info().Msg("closing event publisher")
	return p.writer.Close()
}
