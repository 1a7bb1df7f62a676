package config

import (
	"fmt"
	"time"
)

// QueueConfig controls how pending searches are picked, dispatched, and
// recovered.
type QueueConfig struct {
	// MaxConcurrent is the number of searches this instance processes at
	// once. The pick query claims at most this many free slots per tick.
	MaxConcurrent int

	// PickInterval is the cadence of the pick-and-dispatch loop.
	PickInterval time.Duration

	// RecoveryInterval is the cadence of the stale-search sweep.
	RecoveryInterval time.Duration

	// StaleAfter is how long a processing search may go without a retry
	// timestamp refresh before the sweep reclaims it.
	StaleAfter time.Duration

	// MaxRetries caps retry_count; a failure that would push past it is
	// terminal.
	MaxRetries int
}

// DefaultQueueConfig returns the built-in scheduler defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxConcurrent:    3,
		PickInterval:     60 * time.Second,
		RecoveryInterval: 120 * time.Second,
		StaleAfter:       5 * time.Minute,
		MaxRetries:       3,
	}
}

func queueFromEnv() (QueueConfig, error) {
	cfg := DefaultQueueConfig()
	cfg.MaxConcurrent = getEnvInt("MAX_CONCURRENT", cfg.MaxConcurrent)
	cfg.MaxRetries = getEnvInt("MAX_RETRIES", cfg.MaxRetries)

	var err error
	if cfg.PickInterval, err = getEnvDuration("PICK_INTERVAL", cfg.PickInterval); err != nil {
		return cfg, err
	}
	if cfg.RecoveryInterval, err = getEnvDuration("RECOVERY_INTERVAL", cfg.RecoveryInterval); err != nil {
		return cfg, err
	}
	if cfg.StaleAfter, err = getEnvDuration("STALE_AFTER", cfg.StaleAfter); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the queue configuration.
func (c QueueConfig) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("MAX_CONCURRENT must be at least 1")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	if c.PickInterval <= 0 || c.RecoveryInterval <= 0 || c.StaleAfter <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	return nil
}
