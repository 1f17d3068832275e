package lazyload

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/c360/perfkit/cache"
	"github.com/c360/perfkit/errors"
	"github.com/c360/perfkit/metric"
	"github.com/c360/perfkit/pkg/buffer"
	"github.com/c360/perfkit/recovery"
)

// loadTimeWindow bounds the rolling load-time series.
const loadTimeWindow = 256

// Loader defers resource loads until visibility, deduplicates concurrent
// loads per resource id, and writes results through to the cache.
type Loader struct {
	cfg        Config
	cache      *cache.Manager
	engine     *recovery.Engine
	source     VisibilitySource
	strategies map[ResourceType]Strategy
	logger     *slog.Logger
	core       *metric.Core

	flight singleflight.Group

	mu        sync.Mutex
	resources map[string]*resourceState
	handles   map[string]*observation

	loaded         int64
	failed         int64
	bandwidthSaved int64
	loadTimes      *buffer.Ring[time.Duration]
}

type resourceState struct {
	res    Resource
	status Status
	value  []byte
}

type observation struct {
	resourceID string
	cancel     func()
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithCache enables write-through caching of loaded resources.
func WithCache(c *cache.Manager) LoaderOption {
	return func(l *Loader) { l.cache = c }
}

// WithVisibilitySource sets the visibility trigger. Without one, Observe
// is unavailable but Preload and ForceLoad still work.
func WithVisibilitySource(src VisibilitySource) LoaderOption {
	return func(l *Loader) { l.source = src }
}

// WithHTTPClient overrides the fetch client used by the built-in
// strategies.
func WithHTTPClient(client *http.Client) LoaderOption {
	return func(l *Loader) {
		if client != nil {
			l.strategies = defaultStrategies(client)
		}
	}
}

// WithStrategy replaces the strategy for one resource type.
func WithStrategy(t ResourceType, s Strategy) LoaderOption {
	return func(l *Loader) { l.strategies[t] = s }
}

// WithLoaderLogger sets the structured logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLoaderMetrics exports load counters through the perfkit registry.
func WithLoaderMetrics(reg *metric.Registry) LoaderOption {
	return func(l *Loader) {
		if reg != nil {
			l.core = reg.Core
		}
	}
}

// NewLoader creates a loader. All retry decisions for loads are delegated
// to engine.
func NewLoader(engine *recovery.Engine, cfg Config, opts ...LoaderOption) (*Loader, error) {
	if engine == nil {
		return nil, errors.WrapPermanent(errors.ErrMissingConfig, "lazyload", "NewLoader", "require recovery engine")
	}
	if cfg.FallbackPollDelay <= 0 {
		cfg.FallbackPollDelay = DefaultConfig().FallbackPollDelay
	}

	l := &Loader{
		cfg:        cfg,
		engine:     engine,
		strategies: defaultStrategies(http.DefaultClient),
		logger:     slog.Default(),
		resources:  make(map[string]*resourceState),
		handles:    make(map[string]*observation),
		loadTimes:  buffer.NewRing[time.Duration](loadTimeWindow, loadTimeWindow/2),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Observe registers a resource and arranges for it to load when handle
// becomes visible.
func (l *Loader) Observe(handle string, res Resource) error {
	if err := l.register(res); err != nil {
		return err
	}
	if l.source == nil {
		return errors.WrapPermanent(errors.ErrVisibilityDisabled, "lazyload", "Observe", "observe "+handle)
	}

	opts := VisibilityOptions{
		RootMargin:  l.cfg.RootMargin,
		Threshold:   l.cfg.VisibilityThreshold,
		TriggerOnce: l.cfg.TriggerOnce,
	}
	cancel, err := l.source.Observe(handle, opts, func() {
		// Failed loads are not retried by the trigger; an explicit
		// ForceLoad is required.
		if l.Status(res.ID) != StatusNotLoaded {
			return
		}
		// Loads triggered by visibility are not tied to a caller's
		// lifetime; once dispatched they run to completion and are
		// cached opportunistically.
		go func() {
			if _, err := l.load(context.Background(), res.ID); err != nil {
				l.logger.Debug("visibility-triggered load failed", "resource", res.ID, "error", err)
			}
		}()
	})
	if err != nil {
		return errors.Wrap(err, "lazyload", "Observe", "observe "+handle)
	}

	l.mu.Lock()
	l.handles[handle] = &observation{resourceID: res.ID, cancel: cancel}
	l.mu.Unlock()
	return nil
}

// Unobserve cancels the observation for handle. A load already dispatched
// is not aborted; it completes and is cached.
func (l *Loader) Unobserve(handle string) {
	l.mu.Lock()
	obs, ok := l.handles[handle]
	delete(l.handles, handle)
	l.mu.Unlock()
	if ok {
		obs.cancel()
	}
}

// Preload registers all resources and immediately loads the high-priority
// ones with bounded parallelism.
func (l *Loader) Preload(ctx context.Context, resources []Resource) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, res := range resources {
		if err := l.register(res); err != nil {
			return err
		}
		if res.Priority != PriorityHigh {
			continue
		}
		id := res.ID
		g.Go(func() error {
			_, err := l.load(ctx, id)
			return err
		})
	}
	return g.Wait()
}

// ForceLoad loads a registered resource immediately, bypassing visibility.
func (l *Loader) ForceLoad(ctx context.Context, resourceID string) ([]byte, error) {
	l.mu.Lock()
	_, ok := l.resources[resourceID]
	l.mu.Unlock()
	if !ok {
		return nil, errors.WrapPermanent(errors.ErrUnknownResource, "lazyload", "ForceLoad", "load "+resourceID)
	}
	return l.load(ctx, resourceID)
}

// Status reports the lifecycle state of a resource id.
func (l *Loader) Status(resourceID string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.resources[resourceID]
	if !ok {
		return StatusNotRegistered
	}
	return state.status
}

// Metrics returns the loader's aggregate counters.
func (l *Loader) Metrics() Metrics {
	l.mu.Lock()
	registered := len(l.resources)
	l.mu.Unlock()

	m := Metrics{
		Registered:          registered,
		Loaded:              int(atomic.LoadInt64(&l.loaded)),
		Failed:              int(atomic.LoadInt64(&l.failed)),
		BandwidthSavedBytes: atomic.LoadInt64(&l.bandwidthSaved),
	}
	samples := l.loadTimes.Items()
	if len(samples) > 0 {
		var sum time.Duration
		for _, d := range samples {
			sum += d
		}
		m.AvgLoadTime = sum / time.Duration(len(samples))
	}
	return m
}

func (l *Loader) register(res Resource) error {
	if res.ID == "" || res.SourceLocator == "" {
		return errors.WrapPermanent(errors.ErrInvalidConfig, "lazyload", "register", "validate resource")
	}
	if !res.Type.Valid() {
		return errors.WrapPermanent(errors.ErrUnsupportedType, "lazyload", "register", "validate type "+string(res.Type))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.resources[res.ID]; !ok {
		l.resources[res.ID] = &resourceState{res: res, status: StatusNotLoaded}
	}
	return nil
}

// load runs the full pipeline for one resource id. Concurrent calls for
// the same id share a single in-flight load and its result.
func (l *Loader) load(ctx context.Context, resourceID string) ([]byte, error) {
	value, err, _ := l.flight.Do(resourceID, func() (any, error) {
		return l.loadOnce(ctx, resourceID)
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

func (l *Loader) loadOnce(ctx context.Context, resourceID string) ([]byte, error) {
	l.mu.Lock()
	state, ok := l.resources[resourceID]
	if !ok {
		l.mu.Unlock()
		return nil, errors.WrapPermanent(errors.ErrUnknownResource, "lazyload", "load", "load "+resourceID)
	}
	if state.status == StatusLoaded {
		value := state.value
		l.mu.Unlock()
		return value, nil
	}
	res := state.res
	state.status = StatusLoading
	l.mu.Unlock()

	start := time.Now()
	value, err := l.fetchThroughCache(ctx, res)
	if err != nil {
		if res.FallbackLocator != "" {
			value, err = l.loadFallback(ctx, res)
		}
		if err != nil {
			l.complete(res, StatusFailed, nil, time.Since(start))
			if res.OnError != nil {
				res.OnError(err)
			}
			return nil, err
		}
	}

	l.complete(res, StatusLoaded, value, time.Since(start))
	if res.OnLoad != nil {
		res.OnLoad(value)
	}
	return value, nil
}

// fetchThroughCache consults the cache before dispatching the strategy
// through the recovery engine, and writes fresh results back.
func (l *Loader) fetchThroughCache(ctx context.Context, res Resource) ([]byte, error) {
	key := res.CacheKey()
	if l.cache != nil {
		if value, ok, err := l.cache.Get(ctx, key); err == nil && ok {
			return value, nil
		}
	}

	strategy := l.strategies[res.Type]
	operationID := "load_" + res.Type.cacheTag() + "_" + res.ID
	value, err := recovery.ExecuteWithRetry(ctx, l.engine, operationID, func(ctx context.Context) ([]byte, error) {
		return strategy.Load(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if _, err := l.cache.Set(ctx, key, value); err != nil {
			l.logger.Debug("cache write-through failed", "resource", res.ID, "error", err)
		}
	}
	return value, nil
}

// loadFallback loads the substitute resource under a derived id, through
// the same pipeline as the primary.
func (l *Loader) loadFallback(ctx context.Context, res Resource) ([]byte, error) {
	sub := Resource{
		ID:            res.ID + "_fallback",
		Type:          res.Type,
		SourceLocator: res.FallbackLocator,
		Priority:      res.Priority,
	}
	if err := l.register(sub); err != nil {
		return nil, err
	}
	l.logger.Debug("loading fallback resource", "resource", res.ID, "fallback", sub.ID)
	return l.load(ctx, sub.ID)
}

// complete records the terminal outcome of a load.
func (l *Loader) complete(res Resource, status Status, value []byte, took time.Duration) {
	l.mu.Lock()
	if state, ok := l.resources[res.ID]; ok {
		state.status = status
		state.value = value
	}
	l.mu.Unlock()

	l.loadTimes.Append(took)
	switch status {
	case StatusLoaded:
		atomic.AddInt64(&l.loaded, 1)
		if saved := res.EstimatedFullBytes - int64(len(value)); saved > 0 {
			atomic.AddInt64(&l.bandwidthSaved, saved)
			if l.core != nil {
				l.core.BandwidthSavedBytes.Add(float64(saved))
			}
		}
	case StatusFailed:
		atomic.AddInt64(&l.failed, 1)
	}

	if l.core != nil {
		l.core.ResourcesLoaded.WithLabelValues(string(res.Type), string(status)).Inc()
		l.core.ResourceLoadDuration.WithLabelValues(string(res.Type)).Observe(took.Seconds())
	}
}
