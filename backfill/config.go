package backfill

import (
	"fmt"
	"time"
)

// DefaultBatchSize caps how many records a single pass selects.
const DefaultBatchSize = 500

// Config holds configuration for a backfill job.
type Config struct {
	// BatchSize is the maximum number of records selected per pass
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for an embedding call.
	// Store updates are never retried within a pass.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Workers is the number of rows processed concurrently. 1 keeps the
	// pass strictly sequential.
	Workers int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 50,
		MaxRetries:     3,
		RetryDelay:     500 * time.Millisecond,
		Workers:        1,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries: %w", ErrInvalidMaxAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("report interval must be greater than 0")
	}
	return nil
}
