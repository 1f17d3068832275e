// Package perfkit is a client-resident performance and resilience layer:
// the subsystem that keeps an interactive application fast and available
// under unreliable networks, constrained storage and partial failures.
//
// # Components
//
// The layer is four cooperating components, each usable on its own:
//
//   - cache: a multi-tier cache manager over an ordered stack of storage
//     tiers (in-process LRU, session-scoped, durable file, durable SQLite),
//     with TTL expiry, size-based tier targeting, quota cascade and
//     hot-entry promotion.
//   - lazyload: a progressive resource loader that defers image, script,
//     style, component and data fetches until a UI handle becomes visible,
//     with single-flight deduplication, fallback substitution and cache
//     write-through.
//   - recovery: the failure-handling core. Classification-driven retry
//     with exponential backoff, session snapshot backup/restore with an
//     age ceiling, and a boundary construct that contains rendering-path
//     panics. All retry decisions for the layer are made here.
//   - monitor: a Web Vitals collector that rates samples against a
//     performance budget, aggregates trailing windows into reports, and
//     forwards samples to an external sink at a bounded rate.
//
// Supporting packages: storage (the tier implementations), errors (the
// classification taxonomy), metric (Prometheus registry), health
// (component liveness), config (layer configuration) and pkg/retry and
// pkg/buffer (backoff and ring-buffer primitives).
//
// # Wiring
//
// Components are constructed explicitly and passed where needed; there
// are no process-wide singletons. A typical assembly:
//
//	tiers, _ := storage.OpenTiers(ctx, cfg.Storage)
//	cm, _ := cache.New(tiers, cfg.Cache)
//	engine := recovery.NewEngine(cfg.Recovery)
//	loader, _ := lazyload.NewLoader(engine, cfg.LazyLoad,
//	    lazyload.WithCache(cm))
//	vitals := monitor.New(cfg.Monitor)
//
// The monitor never imports the cache: hosts wire a stats provider
// (monitor.WithCacheStats) so the two stay decoupled. The same pattern
// keeps the recovery boundary composed with, not coupled to, the engine.
//
// cmd/perfkit runs the layer standalone, serving Prometheus metrics and
// a health endpoint.
package perfkit
