package monitor

import (
	"time"
)

// Sample is one normalized Web Vitals measurement. Partial samples leave
// unknown fields at their zero value; RecordMetric merges them over the
// previous sample.
type Sample struct {
	// Core Web Vitals.
	LCP  time.Duration `json:"lcp"`  // largest contentful paint
	FID  time.Duration `json:"fid"`  // first input delay
	CLS  float64       `json:"cls"`  // cumulative layout shift, unitless
	TTFB time.Duration `json:"ttfb"` // time to first byte

	// Supplemental paint and interactivity timings.
	FCP time.Duration `json:"fcp"` // first contentful paint
	TTI time.Duration `json:"tti"` // time to interactive
	TBT time.Duration `json:"tbt"` // total blocking time

	// Navigation and resource timings.
	PageLoadTime     time.Duration `json:"page_load_time"`
	DOMContentLoaded time.Duration `json:"dom_content_loaded"`
	ResourceLoadTime time.Duration `json:"resource_load_time"`

	CacheHitRate float64 `json:"cache_hit_rate"`

	Timestamp      time.Time `json:"timestamp"`
	URL            string    `json:"url,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	ConnectionType string    `json:"connection_type,omitempty"`
}

// merge overlays the non-zero fields of partial onto s.
func (s Sample) merge(partial Sample) Sample {
	out := s
	if partial.LCP > 0 {
		out.LCP = partial.LCP
	}
	if partial.FID > 0 {
		out.FID = partial.FID
	}
	if partial.CLS > 0 {
		out.CLS = partial.CLS
	}
	if partial.TTFB > 0 {
		out.TTFB = partial.TTFB
	}
	if partial.FCP > 0 {
		out.FCP = partial.FCP
	}
	if partial.TTI > 0 {
		out.TTI = partial.TTI
	}
	if partial.TBT > 0 {
		out.TBT = partial.TBT
	}
	if partial.PageLoadTime > 0 {
		out.PageLoadTime = partial.PageLoadTime
	}
	if partial.DOMContentLoaded > 0 {
		out.DOMContentLoaded = partial.DOMContentLoaded
	}
	if partial.ResourceLoadTime > 0 {
		out.ResourceLoadTime = partial.ResourceLoadTime
	}
	if partial.CacheHitRate > 0 {
		out.CacheHitRate = partial.CacheHitRate
	}
	if !partial.Timestamp.IsZero() {
		out.Timestamp = partial.Timestamp
	}
	if partial.URL != "" {
		out.URL = partial.URL
	}
	if partial.UserAgent != "" {
		out.UserAgent = partial.UserAgent
	}
	if partial.ConnectionType != "" {
		out.ConnectionType = partial.ConnectionType
	}
	return out
}

// TimingSource is a platform timing facility (paint timing, layout shift,
// input delay, navigation/resource timing). Attached sources push partial
// samples as signals arrive.
type TimingSource interface {
	// Attach begins observation, delivering partial samples to record.
	// The returned detach stops delivery and must be safe to call more
	// than once.
	Attach(record func(partial Sample)) (detach func(), err error)
}

// CacheStats is the cache view consumed by reports. The host wires a
// provider so the monitor never imports the cache package.
type CacheStats struct {
	HitRate         float64
	EntryCount      int
	TotalSizeBytes  int64
	AvgResponseTime time.Duration
}

// ResourceStats summarizes resource-timing entries for the technical
// report section.
type ResourceStats struct {
	EstimatedBundleBytes int64
	ChunkCount           int
}
