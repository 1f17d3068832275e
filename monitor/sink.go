package monitor

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/perfkit/errors"
)

// Sink receives periodic sample emissions, typically an analytics
// collector adapter supplied by the host.
type Sink interface {
	Emit(ctx context.Context, s Sample) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, s Sample) error

func (f SinkFunc) Emit(ctx context.Context, s Sample) error { return f(ctx, s) }

// Reporter periodically forwards the monitor's latest sample to a sink.
// Emissions are gated twice: probabilistically by the configured sample
// rate, and by a rate limiter that bounds egress regardless of how often
// Flush is called.
type Reporter struct {
	monitor    *Monitor
	sink       Sink
	interval   time.Duration
	sampleRate float64
	limiter    *rate.Limiter
	logger     *slog.Logger

	shutdown  chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// NewReporter creates a reporter over m using its configured interval and
// sample rate.
func NewReporter(m *Monitor, sink Sink) (*Reporter, error) {
	if m == nil || sink == nil {
		return nil, errors.WrapPermanent(errors.ErrMissingConfig, "monitor", "NewReporter", "require monitor and sink")
	}
	interval := m.cfg.ReportInterval
	if interval <= 0 {
		interval = DefaultConfig().ReportInterval
	}

	return &Reporter{
		monitor:    m,
		sink:       sink,
		interval:   interval,
		sampleRate: m.cfg.SampleRate,
		limiter:    rate.NewLimiter(rate.Every(interval), 2),
		logger:     m.logger,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start launches the emission loop. Safe to call once; Close stops it.
func (r *Reporter) Start() {
	r.startOnce.Do(func() {
		go r.loop()
	})
}

// Flush emits the latest sample immediately, subject to the rate limiter
// and sample rate.
func (r *Reporter) Flush(ctx context.Context) error {
	latest, ok := r.monitor.Latest()
	if !ok {
		return nil
	}
	if rand.Float64() >= r.sampleRate {
		return nil
	}
	if !r.limiter.Allow() {
		return nil
	}
	return r.sink.Emit(ctx, latest)
}

// Close stops the emission loop.
func (r *Reporter) Close() error {
	r.closeOnce.Do(func() {
		close(r.shutdown)
	})
	r.Start() // ensure done gets closed even if Start was never called
	<-r.done
	return nil
}

func (r *Reporter) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.shutdown:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := r.Flush(ctx); err != nil {
				r.logger.Warn("sample emission failed", "error", err)
			}
			cancel()
		}
	}
}
