// Package monitor normalizes platform timing signals into Web Vitals
// samples, rates them against a performance budget, and aggregates trailing
// windows into reports. A Reporter periodically forwards the latest sample
// to an external sink, sampled and rate-limited to bound egress.
package monitor
