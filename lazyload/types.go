package lazyload

import (
	"fmt"
	"time"
)

// ResourceType is the closed set of loadable resource kinds. Dispatch is
// one case per type so a missing strategy is caught at construction, not
// at load time.
type ResourceType string

const (
	TypeImage     ResourceType = "image"
	TypeComponent ResourceType = "component"
	TypeScript    ResourceType = "script"
	TypeStyle     ResourceType = "style"
	TypeData      ResourceType = "data"
)

// Valid reports whether t names a known resource type.
func (t ResourceType) Valid() bool {
	switch t {
	case TypeImage, TypeComponent, TypeScript, TypeStyle, TypeData:
		return true
	}
	return false
}

// cacheTag is the key prefix used when writing the loaded resource
// through to the cache.
func (t ResourceType) cacheTag() string {
	if t == TypeImage {
		return "img"
	}
	return string(t)
}

// Priority orders load urgency. High-priority resources are loaded
// eagerly by Preload; the rest wait for visibility.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Status is the lifecycle of a registered resource.
type Status string

const (
	StatusNotRegistered Status = "not-registered"
	StatusNotLoaded     Status = "not-loaded"
	StatusLoading       Status = "loading"
	StatusLoaded        Status = "loaded"
	StatusFailed        Status = "failed"
)

// Resource describes one deferred load.
type Resource struct {
	ID            string
	Type          ResourceType
	SourceLocator string
	Priority      Priority

	// FallbackLocator, when set, is loaded as a substitute after the
	// primary source fails terminally.
	FallbackLocator string

	// EstimatedFullBytes is the size proxy of the undeferred original,
	// used for the bandwidth-saved figure. 0 disables the estimate.
	EstimatedFullBytes int64

	// OnLoad and OnError fire exactly once per terminal outcome. Both
	// may be nil.
	OnLoad  func(value []byte)
	OnError func(err error)
}

// CacheKey is the cache key the loaded value is written through under.
func (r Resource) CacheKey() string {
	return fmt.Sprintf("%s_%s", r.Type.cacheTag(), r.ID)
}

// Metrics is the loader's aggregate view.
type Metrics struct {
	Registered          int           `json:"registered"`
	Loaded              int           `json:"loaded"`
	Failed              int           `json:"failed"`
	AvgLoadTime         time.Duration `json:"avg_load_time"`
	BandwidthSavedBytes int64         `json:"bandwidth_saved_bytes"`
}
