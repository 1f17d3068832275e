// Package metric provides the Prometheus metrics registry for perfkit.
//
// A single Registry owns the Prometheus registry, the core layer metrics
// shared by all components, and named registration with duplicate
// detection for component-specific metrics.
package metric
