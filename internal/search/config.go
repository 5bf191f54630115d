package search

import "time"

// Config holds engine settings.
type Config struct {
	Batch BatchConfig `mapstructure:"batch"`
}

// BatchConfig controls the pause between queries of a batch. The pause
// starts at BaseDelay and is multiplied by Multiplier, up to MaxDelay,
// every time a query observes a provider rate limit. It never shrinks
// within one batch.
type BatchConfig struct {
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	Multiplier float64       `mapstructure:"multiplier"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	// MaxQueries caps the number of queries accepted in one batch.
	MaxQueries int `mapstructure:"max_queries"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Batch: BatchConfig{
			BaseDelay:  time.Second,
			Multiplier: 2,
			MaxDelay:   30 * time.Second,
			MaxQueries: 50,
		},
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Batch.BaseDelay < 0 {
		c.Batch.BaseDelay = 0
	}
	if c.Batch.Multiplier < 1 {
		c.Batch.Multiplier = def.Batch.Multiplier
	}
	if c.Batch.MaxDelay <= 0 {
		c.Batch.MaxDelay = def.Batch.MaxDelay
	}
	if c.Batch.MaxDelay < c.Batch.BaseDelay {
		c.Batch.MaxDelay = c.Batch.BaseDelay
	}
	if c.Batch.MaxQueries <= 0 {
		c.Batch.MaxQueries = def.Batch.MaxQueries
	}
}

// escalate returns the next pause after a rate limit was observed.
func (c BatchConfig) escalate(current time.Duration) time.Duration {
	if current <= 0 {
		current = c.BaseDelay
		if current <= 0 {
			current = time.Second
		}
	}
	next := time.Duration(float64(current) * c.Multiplier)
	if next > c.MaxDelay {
		next = c.MaxDelay
	}
	if next < current {
		return current
	}
	return next
}
