package lazyload

import (
	"sync"
	"time"
)

// VisibilityOptions parameterize one observation.
type VisibilityOptions struct {
	RootMargin  float64
	Threshold   float64
	TriggerOnce bool
}

// VisibilitySource notifies when a UI handle becomes visible. The host
// supplies one backed by its platform's observation facility; when none
// exists, a Poller over a Viewport serves the same contract.
type VisibilitySource interface {
	// Observe registers visible to fire when handle enters the viewport
	// per opts. The returned cancel stops the observation; it must be
	// safe to call more than once.
	Observe(handle string, opts VisibilityOptions, visible func()) (cancel func(), err error)
}

// Viewport answers bounding-box visibility queries for the polling
// fallback.
type Viewport interface {
	Visible(handle string, margin, threshold float64) bool
}

// Poller is the interval-polling fallback VisibilitySource: same external
// contract as a native source, different trigger mechanism.
type Poller struct {
	viewport Viewport
	interval time.Duration
}

// NewPoller creates a polling source over viewport. interval <= 0 uses
// the default poll delay.
func NewPoller(viewport Viewport, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultConfig().FallbackPollDelay
	}
	return &Poller{viewport: viewport, interval: interval}
}

// Observe polls the viewport until handle is visible, then fires visible.
// With TriggerOnce unset it keeps firing on every visible poll.
func (p *Poller) Observe(handle string, opts VisibilityOptions, visible func()) (func(), error) {
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() { close(stop) })
	}

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !p.viewport.Visible(handle, opts.RootMargin, opts.Threshold) {
					continue
				}
				// A cancel racing the tick wins: never fire after cancel.
				select {
				case <-stop:
					return
				default:
				}
				visible()
				if opts.TriggerOnce {
					return
				}
			}
		}
	}()
	return cancel, nil
}
