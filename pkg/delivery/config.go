package delivery

import (
	"time"
)

// Config tunes the dispatcher. Start from DefaultConfig; NewDispatcher
// rejects a config with zero intervals, sizes or worker id.
type Config struct {
	WorkerID     string        `validate:"required"`
	MaxRetries   int           `validate:"gte=0,lte=16"`
	RetryBase    time.Duration `validate:"gt=0"`
	PollInterval time.Duration `validate:"gt=0"`
	BatchSize    int           `validate:"gt=0"`
	Concurrency  int           `validate:"gt=0"`
	Lease        time.Duration `validate:"gt=0"`
	Timeout      time.Duration `validate:"gt=0"`

	// RatePerHost caps requests per second to one host; zero disables limiting.
	RatePerHost float64 `validate:"gte=0"`
	Burst       int     `validate:"gte=0"`
}

func DefaultConfig(workerID string) Config {
	return Config{
		WorkerID:     workerID,
		MaxRetries:   3,
		RetryBase:    60 * time.Second,
		PollInterval: time.Second,
		BatchSize:    20,
		Concurrency:  8,
		Lease:        time.Minute,
		Timeout:      10 * time.Second,
		Burst:        1,
	}
}

// MaxAttempts is the first attempt plus the configured retries.
func (c Config) MaxAttempts() int {
	return c.MaxRetries + 1
}

// Offset returns when attempt n is due relative to the start of its sequence:
// immediately for the first, then RetryBase doubling for each retry.
func (c Config) Offset(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	return c.RetryBase << (attempt - 2)
}
