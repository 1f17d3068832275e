package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/c360/perfkit/monitor"
	"github.com/c360/perfkit/recovery"
	"github.com/c360/perfkit/storage"
)

// Check probes one component.
type Check func(ctx context.Context) Status

// Run executes all checks and aggregates their statuses under component.
func Run(ctx context.Context, component string, checks []Check) Status {
	subs := make([]Status, 0, len(checks))
	for _, check := range checks {
		subs = append(subs, check(ctx))
	}
	return Aggregate(component, subs)
}

// TierCheck probes a storage tier with a cheap read.
func TierCheck(tier storage.Tier) Check {
	return func(ctx context.Context) Status {
		name := "tier:" + tier.Name()
		if _, err := tier.Count(ctx); err != nil {
			return NewUnhealthy(name, err.Error())
		}
		return NewHealthy(name, "reachable")
	}
}

// EngineCheck inspects the recovery engine's error log. A log filled past
// errorBudget entries reports degraded: the layer is serving, but failures
// are accumulating.
func EngineCheck(engine *recovery.Engine, errorBudget int) Check {
	return func(ctx context.Context) Status {
		stats := engine.ErrorStats()
		if errorBudget > 0 && stats.Total > errorBudget {
			return NewDegraded("recovery", fmt.Sprintf("%d errors in rolling log", stats.Total))
		}
		return NewHealthy("recovery", fmt.Sprintf("%d errors logged, %d operations recovered",
			stats.Total, stats.RecoveredOperations))
	}
}

// MonitorCheck verifies the monitor is collecting samples.
func MonitorCheck(m *monitor.Monitor) Check {
	return func(ctx context.Context) Status {
		if _, ok := m.Latest(); !ok {
			return NewDegraded("monitor", "no samples collected yet")
		}
		return NewHealthy("monitor", "collecting samples")
	}
}

// Handler serves the aggregated status as JSON: 200 when healthy or
// degraded, 503 when unhealthy.
func Handler(component string, checks []Check) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := Run(r.Context(), component, checks)
		w.Header().Set("Content-Type", "application/json")
		if status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
