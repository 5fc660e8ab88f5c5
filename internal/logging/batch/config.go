package batch

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultBatchSize      = 100
	DefaultFlushInterval  = 5 * time.Second
	DefaultMaxCapacity    = 10_000
	DefaultIntakeCapacity = 1_000
	DefaultSource         = "edge-collector-go"
)

var ErrInvalidConfig = errors.New("invalid buffer config")

type Config struct {
	BatchSize      int
	FlushInterval  time.Duration
	MaxCapacity    int
	IntakeCapacity int
	// Source is the origin label stamped on every batch.
	Source string
}

func DefaultConfig() Config {
	return Config{
		BatchSize:      DefaultBatchSize,
		FlushInterval:  DefaultFlushInterval,
		MaxCapacity:    DefaultMaxCapacity,
		IntakeCapacity: DefaultIntakeCapacity,
		Source:         DefaultSource,
	}
}

func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be greater than 0, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("%w: flush interval must be greater than 0, got %s", ErrInvalidConfig, c.FlushInterval)
	}
	if c.MaxCapacity < c.BatchSize {
		return fmt.Errorf("%w: max capacity %d is below batch size %d", ErrInvalidConfig, c.MaxCapacity, c.BatchSize)
	}
	if c.IntakeCapacity <= 0 {
		return fmt.Errorf("%w: intake capacity must be greater than 0, got %d", ErrInvalidConfig, c.IntakeCapacity)
	}
	return nil
}
