package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/perfkit/errors"
)

// ErrorLogger records a failure without acting on it. Engine implements
// this; the boundary depends only on the interface so the two stay
// composed, not coupled.
type ErrorLogger interface {
	LogError(operationID string, err error)
}

// Boundary isolates failures in one rendering subtree. Panics and errors
// from the wrapped function are caught, logged and classified as rendering
// failures instead of crashing the host. Callers re-mount the subtree with
// Retry, up to a bounded number of times.
type Boundary struct {
	name       string
	maxRetries int
	log        ErrorLogger
	fallback   func(err error)

	mu       sync.Mutex
	failures int
	lastErr  error
}

// BoundaryOption configures a Boundary.
type BoundaryOption func(*Boundary)

// WithBoundaryRetries overrides the retry ceiling (default 3).
func WithBoundaryRetries(n int) BoundaryOption {
	return func(b *Boundary) {
		if n >= 0 {
			b.maxRetries = n
		}
	}
}

// WithFallback installs the degraded view shown while the subtree is
// failed. Invoked once per caught failure.
func WithFallback(fn func(err error)) BoundaryOption {
	return func(b *Boundary) {
		b.fallback = fn
	}
}

// NewBoundary creates a boundary named after the subtree it protects.
// log may be nil.
func NewBoundary(name string, log ErrorLogger, opts ...BoundaryOption) *Boundary {
	b := &Boundary{
		name:       name,
		maxRetries: 3,
		log:        log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run executes fn, converting a panic or error into a caught rendering
// failure. Returns the classified failure, or nil on success.
func (b *Boundary) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = b.caught(fmt.Errorf("panic: %v", r))
		}
	}()

	if runErr := fn(ctx); runErr != nil {
		return b.caught(runErr)
	}

	b.mu.Lock()
	b.failures = 0
	b.lastErr = nil
	b.mu.Unlock()
	return nil
}

// Retry re-mounts the subtree by running fn again, as long as the retry
// ceiling has not been reached.
func (b *Boundary) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	exhausted := b.failures > b.maxRetries
	b.mu.Unlock()
	if exhausted {
		return errors.WrapPermanent(errors.ErrMaxRetriesExceeded, "recovery", "Retry", "re-mount "+b.name)
	}
	return b.Run(ctx, fn)
}

// Failed reports whether the subtree is currently in a failed state, with
// the most recent caught failure.
func (b *Boundary) Failed() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr != nil, b.lastErr
}

// Reset clears the failed state and the retry budget.
func (b *Boundary) Reset() {
	b.mu.Lock()
	b.failures = 0
	b.lastErr = nil
	b.mu.Unlock()
}

func (b *Boundary) caught(cause error) error {
	err := &errors.ClassifiedError{
		Class:     errors.ClassRendering,
		Err:       cause,
		Message:   fmt.Sprintf("recovery.boundary: %s render failed: %v", b.name, cause),
		Component: "boundary",
		Operation: b.name,
		Code:      "RENDER_FAILURE",
	}

	b.mu.Lock()
	b.failures++
	b.lastErr = err
	b.mu.Unlock()

	if b.log != nil {
		b.log.LogError("render_"+b.name, err)
	}
	if b.fallback != nil {
		b.fallback(err)
	}
	return err
}
