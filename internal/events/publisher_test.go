package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-engine/internal/domain"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	t.Run("writes the event keyed by aggregate id", func(t *testing.T) {
		w := &fakeWriter{}
		p := newPublisher(w, zerolog.Nop())

		event, err := domain.NewEvent(domain.EventTypePaperIngested, "paper-1", domain.PaperIngestedPayload{
			PaperID: "paper-1",
			Title:   "Title",
		})
		require.NoError(t, err)

		require.NoError(t, p.Publish(context.Background(), event))
		require.Len(t, w.messages, 1)

		msg := w.messages[0]
		assert.Equal(t, "paper-1", string(msg.Key))
		assert.Contains(t, msg.Headers, kafka.Header{Key: "event_type", Value: []byte(domain.EventTypePaperIngested)})

		var decoded domain.Event
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, event.EventID, decoded.EventID)
		assert.Equal(t, domain.EventTypePaperIngested, decoded.EventType)
	})

	t.Run("wraps writer errors", func(t *testing.T) {
		p := newPublisher(&fakeWriter{err: errors.New("broker down")}, zerolog.Nop())
		event, err := domain.NewEvent(domain.EventTypeBatchCompleted, "batch", domain.BatchCompletedPayload{})
		require.NoError(t, err)

		err = p.Publish(context.Background(), event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
	})

	t.Run("rejects invalid events", func(t *testing.T) {
		p := newPublisher(&fakeWriter{}, zerolog.Nop())
		assert.ErrorIs(t, p.Publish(context.Background(), nil), domain.ErrInvalidInput)
		assert.ErrorIs(t, p.Publish(context.Background(), &domain.Event{}), domain.ErrInvalidInput)
	})
}

func TestPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newPublisher(w, zerolog.Nop()).Close())
	assert.True(t, w.closed)
}
