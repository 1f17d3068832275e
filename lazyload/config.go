package lazyload

import "time"

// Config controls visibility detection and load behavior.
type Config struct {
	// RootMargin expands the viewport bounds used for visibility checks,
	// in display units, so loads start slightly before the element is
	// actually on screen.
	RootMargin float64 `yaml:"root_margin" env:"ROOT_MARGIN"`

	// VisibilityThreshold is the fraction of the element that must be
	// within the (expanded) viewport to count as visible.
	VisibilityThreshold float64 `yaml:"visibility_threshold" env:"VISIBILITY_THRESHOLD"`

	// TriggerOnce stops observing a handle after its first visibility
	// trigger.
	TriggerOnce bool `yaml:"trigger_once" env:"TRIGGER_ONCE"`

	// FallbackPollDelay is the polling interval used when no native
	// visibility source is available.
	FallbackPollDelay time.Duration `yaml:"fallback_poll_delay" env:"FALLBACK_POLL_DELAY"`
}

// DefaultConfig returns the standard lazy-load settings.
func DefaultConfig() Config {
	return Config{
		RootMargin:          50,
		VisibilityThreshold: 0.1,
		TriggerOnce:         true,
		FallbackPollDelay:   200 * time.Millisecond,
	}
}
