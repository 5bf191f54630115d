package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/observability"
	"github.com/helixir/paper-search-engine/internal/search"
)

type mockRunner struct {
	mock.Mock
	mu             sync.Mutex
	correlationIDs []string
}

func (m *mockRunner) BatchSearchAndIngest(ctx context.Context, queries []string, opts domain.SearchOptions) ([]search.BatchResult, error) {
	m.mu.Lock()
	m.correlationIDs = append(m.correlationIDs, observability.CorrelationIDFromContext(ctx))
	m.mu.Unlock()
	args := m.Called(queries, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]search.BatchResult), args.Error(1)
}

// queueReader replays messages then blocks until the context ends.
type queueReader struct {
	messages []kafka.Message
	errs     []error
	closed   bool
}

func (r *queueReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		return msg, nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *queueReader) Close() error {
	r.closed = true
	return nil
}

func requestMessage(t *testing.T, payload domain.SearchRequestedPayload) kafka.Message {
	t.Helper()
	event, err := domain.NewEvent(domain.EventTypeSearchRequested, payload.RequestID, payload)
	require.NoError(t, err)
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestListener_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("runs the batch under the request correlation id", func(t *testing.T) {
		runner := &mockRunner{}
		l := newListener(&queueReader{}, runner, zerolog.Nop())
		opts := domain.SearchOptions{Limit: 5, YearFrom: 2020}

		runner.On("BatchSearchAndIngest", []string{"graph neural networks", "protein folding"}, opts).
			Return([]search.BatchResult{{Query: "graph neural networks"}, {Query: "protein folding", Error: "boom"}}, nil)

		msg := requestMessage(t, domain.SearchRequestedPayload{
			RequestID: "req-42",
			Queries:   []string{"graph neural networks", "protein folding"},
			Options:   opts,
		})
		require.NoError(t, l.handle(ctx, msg.Value))
		runner.AssertExpectations(t)
		assert.Equal(t, []string{"req-42"}, runner.correlationIDs)
	})

	t.Run("ignores other event types", func(t *testing.T) {
		runner := &mockRunner{}
		l := newListener(&queueReader{}, runner, zerolog.Nop())

		event, err := domain.NewEvent(domain.EventTypePaperIngested, "p", domain.PaperIngestedPayload{})
		require.NoError(t, err)
		value, err := json.Marshal(event)
		require.NoError(t, err)

		require.NoError(t, l.handle(ctx, value))
		runner.AssertNotCalled(t, "BatchSearchAndIngest", mock.Anything, mock.Anything)
	})

	t.Run("rejects malformed messages", func(t *testing.T) {
		l := newListener(&queueReader{}, &mockRunner{}, zerolog.Nop())
		assert.Error(t, l.handle(ctx, []byte("{not json")))
	})

	t.Run("returns batch errors", func(t *testing.T) {
		runner := &mockRunner{}
		l := newListener(&queueReader{}, runner, zerolog.Nop())
		runner.On("BatchSearchAndIngest", mock.Anything, mock.Anything).
			Return(nil, domain.NewValidationError("queries", "at least one query is required"))

		msg := requestMessage(t, domain.SearchRequestedPayload{RequestID: "req-1"})
		err := l.handle(ctx, msg.Value)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestListener_Run(t *testing.T) {
	runner := &mockRunner{}
	reader := &queueReader{
		errs: []error{errors.New("transient")},
		messages: []kafka.Message{
			{Value: []byte("garbage")},
		},
	}
	reader.messages = append(reader.messages, requestMessage(t, domain.SearchRequestedPayload{
		RequestID: "req-7",
		Queries:   []string{"q"},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	runner.On("BatchSearchAndIngest", []string{"q"}, domain.SearchOptions{}).
		Run(func(mock.Arguments) { cancel() }).
		Return([]search.BatchResult{{Query: "q"}}, nil)

	l := newListener(reader, runner, zerolog.Nop())
	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	runner.AssertExpectations(t)

	require.NoError(t, l.Close())
	assert.True(t, reader.closed)
}
