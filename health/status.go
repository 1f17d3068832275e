// Package health reports the liveness of the layer's components. Checks
// probe tiers, the recovery engine and the monitor; statuses aggregate
// into one overall verdict suitable for a health endpoint.
package health

import (
	"regexp"
	"strings"
	"time"
)

// Pre-compiled regexes for error message sanitization. Health output may
// cross a trust boundary, so locations and credentials are scrubbed.
var (
	httpURLRegex     = regexp.MustCompile(`https?://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one component or of the whole layer.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsHealthy reports whether the status is healthy.
func (s Status) IsHealthy() bool { return s.Status == "healthy" }

// IsDegraded reports whether the status is degraded.
func (s Status) IsDegraded() bool { return s.Status == "degraded" }

// IsUnhealthy reports whether the status is unhealthy.
func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// NewHealthy creates a healthy status.
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a degraded status: still serving, but impaired.
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Status:    "degraded",
		Message:   Sanitize(message),
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    "unhealthy",
		Message:   Sanitize(message),
		Timestamp: time.Now(),
	}
}

// Aggregate combines sub-statuses into one verdict for component:
// all healthy aggregates healthy; any unhealthy aggregates unhealthy;
// otherwise degraded.
func Aggregate(component string, subs []Status) Status {
	agg := Status{
		Component:   component,
		Timestamp:   time.Now(),
		SubStatuses: subs,
	}

	unhealthy, degraded := 0, 0
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	switch {
	case unhealthy > 0:
		agg.Status = "unhealthy"
		agg.Message = "one or more components are unhealthy"
	case degraded > 0:
		agg.Status = "degraded"
		agg.Message = "one or more components are degraded"
	default:
		agg.Status = "healthy"
		agg.Healthy = true
		agg.Message = "all components healthy"
	}
	return agg
}

// Sanitize scrubs URLs, filesystem paths, addresses and credentials from a
// message before it leaves the process.
func Sanitize(message string) string {
	out := message
	out = credentialRegex.ReplaceAllString(out, "$1=[redacted]")
	out = httpURLRegex.ReplaceAllString(out, "[url]")
	out = ipAddrRegex.ReplaceAllString(out, "[addr]")
	out = portRegex.ReplaceAllString(out, ":[port]")
	out = windowsPathRegex.ReplaceAllString(out, "[path]")
	out = unixPathRegex.ReplaceAllString(out, "[path]")
	return strings.TrimSpace(out)
}
