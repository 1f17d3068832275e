package recovery

import "time"

// Config controls retry behavior for an Engine.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt, so a
	// failing operation runs MaxRetries+1 times in total.
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`

	// RetryDelay is the delay before the first retry.
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`

	// BackoffMultiplier scales the delay between consecutive retries.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`

	// RetryIf overrides the default eligibility predicate (retry on
	// timeouts, network failures and HTTP 408/429/5xx).
	RetryIf func(error) bool `yaml:"-" env:"-"`
}

// DefaultConfig returns the standard retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		RetryDelay:        100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
	}
}

// SessionConfig controls snapshot retention for a SessionStore.
type SessionConfig struct {
	// MaxAge is the recovery age ceiling. Snapshots older than this are
	// reported as data loss, never returned.
	MaxAge time.Duration `yaml:"max_age" env:"MAX_AGE"`

	// HousekeepingInterval is how often expired snapshots are purged in
	// the background. 0 disables the background sweep; ClearOld can still
	// be called directly.
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval" env:"HOUSEKEEPING_INTERVAL"`
}

// DefaultSessionConfig returns the standard retention policy.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxAge:               24 * time.Hour,
		HousekeepingInterval: 5 * time.Minute,
	}
}
