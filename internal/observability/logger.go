package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal, panic).
	Level string

	// Format is json, or console/pretty for human-readable output.
	Format string

	// Output is stdout or stderr.
	Output string

	// AddSource adds source file and line number to log entries.
	AddSource bool

	// TimeFormat is the time format for timestamps.
	TimeFormat string
}

// DefaultLoggingConfig returns the configuration used when none is given.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a zerolog logger writing to the configured stream. The
// level also becomes zerolog's global level.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewLoggerTo(out, cfg)
}

// NewLoggerTo is NewLogger with an explicit writer; Output is ignored.
func NewLoggerTo(out io.Writer, cfg LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = cfg.TimeFormat
	if zerolog.TimeFieldFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.AddSource {
		ctx = ctx.Caller()
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return ctx.Logger().Level(level)
}

// parseLevel maps a level name onto zerolog, accepting "warning" for warn.
// Unknown or empty names yield info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return zerolog.WarnLevel
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel || parsed == zerolog.Disabled {
		return zerolog.InfoLevel
	}
	return parsed
}

// WithSearchContext adds the query and provider to a logger.
func WithSearchContext(logger zerolog.Logger, query, source string) zerolog.Logger {
	return logger.With().
		Str("query", query).
		Str("source", source).
		Logger()
}

// WithPaperContext adds a paper's canonical id and DOI to a logger.
// An empty DOI is omitted.
func WithPaperContext(logger zerolog.Logger, canonicalID, doi string) zerolog.Logger {
	ctx := logger.With().Str("canonical_id", canonicalID)
	if doi != "" {
		ctx = ctx.Str("doi", doi)
	}
	return ctx.Logger()
}

// WithBatchContext adds the batch correlation id and query position.
func WithBatchContext(logger zerolog.Logger, correlationID string, index, total int) zerolog.Logger {
	return logger.With().
		Str("correlation_id", correlationID).
		Int("batch_index", index).
		Int("batch_size", total).
		Logger()
}
