package app

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-engine/internal/config"
	"github.com/helixir/paper-search-engine/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Database.Enabled = false
	cfg.Kafka.Enabled = false
	cfg.Embedding.APIKey = ""
	cfg.LLM.APIKey = ""
	return cfg
}

func TestNewRegistry(t *testing.T) {
	cfg := testConfig(t)
	cfg.PaperSources.Scopus.Enabled = false

	registry := NewRegistry(cfg.PaperSources)

	assert.ElementsMatch(t, domain.SourcePriority, registry.SourceTypes())
	for _, src := range registry.EnabledSources() {
		assert.NotEqual(t, domain.SourceTypeScopus, src.SourceType())
	}
	assert.NotEmpty(t, registry.ReferenceFetchers())
}

func TestNew_WithoutPersistence(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Papers)
	assert.Nil(t, a.Publisher)
	require.NotNil(t, a.Engine)
	assert.Len(t, a.Engine.Providers(), len(domain.SourcePriority))

	_, err = a.Engine.SearchAndIngest(context.Background(), "graph neural networks", domain.SearchOptions{})
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestClose_RunsInReverseOrder(t *testing.T) {
	var order []int
	a := &App{}
	a.onClose(func() error { order = append(order, 1); return nil })
	a.onClose(func() error { order = append(order, 2); return errors.New("boom") })

	err := a.Close()
	require.Error(t, err)
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, a.Close(), "second close is a no-op")
}

func TestLoggingConfig(t *testing.T) {
	got := LoggingConfig(config.LoggingConfig{Level: "debug", Format: "console", Output: "stderr"})
	assert.Equal(t, "debug", got.Level)
	assert.Equal(t, "console", got.Format)
	assert.Equal(t, "stderr", got.Output)
}
