package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("stores and retrieves request ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		assert.Equal(t, "", RequestIDFromContext(context.Background()))
	})
}

func TestCorrelationIDContext(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "batch-7")
	assert.Equal(t, "batch-7", CorrelationIDFromContext(ctx))
	assert.Equal(t, "", CorrelationIDFromContext(context.Background()))
}

func TestTraceSpanContext(t *testing.T) {
	t.Run("stores and retrieves trace and span IDs", func(t *testing.T) {
		ctx := WithTraceSpan(context.Background(), "trace-abc", "span-xyz")

		traceID, spanID := TraceSpanFromContext(ctx)
		assert.Equal(t, "trace-abc", traceID)
		assert.Equal(t, "span-xyz", spanID)
	})

	t.Run("returns empty strings when not set", func(t *testing.T) {
		traceID, spanID := TraceSpanFromContext(context.Background())
		assert.Empty(t, traceID)
		assert.Empty(t, spanID)
	})
}

func TestContextOverwrite(t *testing.T) {
	ctx := WithRequestID(context.Background(), "first")
	ctx = WithRequestID(ctx, "second")
	assert.Equal(t, "second", RequestIDFromContext(ctx))
}

func TestLoggerWithContext(t *testing.T) {
	t.Run("adds identifiers present in context", func(t *testing.T) {
		var buf bytes.Buffer
		base := zerolog.New(&buf)

		ctx := WithRequestID(context.Background(), "req-1")
		ctx = WithCorrelationID(ctx, "batch-1")
		ctx = WithTraceSpan(ctx, "t", "s")

		logger := LoggerWithContext(ctx, base)
		logger.Info().Msg("hello")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, "batch-1", entry["correlation_id"])
		assert.Equal(t, "t", entry["trace_id"])
		assert.Equal(t, "s", entry["span_id"])
	})

	t.Run("omits missing identifiers", func(t *testing.T) {
		var buf bytes.Buffer
		logger := LoggerWithContext(context.Background(), zerolog.New(&buf))
		logger.Info().Msg("hello")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.NotContains(t, entry, "request_id")
		assert.NotContains(t, entry, "correlation_id")
		assert.NotContains(t, entry, "trace_id")
	})
}
