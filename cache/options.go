package cache

import (
	"time"
)

// SetOption configures a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl time.Duration
}

// WithTTL overrides the manager's default TTL for this entry. 0 means the
// entry never expires.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
	}
}

func applySetOptions(defaultTTL time.Duration, opts []SetOption) *setOptions {
	o := &setOptions{ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
