package monitor

import (
	"context"
	"math"
	"time"

	"github.com/c360/perfkit/errors"
)

// TrendDirection is the movement of one metric across the report window.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// Trend is the first-vs-last movement of one metric. Significance bands
// at 10% (moderate) and 20% (significant) of change.
type Trend struct {
	Metric        string         `json:"metric"`
	Direction     TrendDirection `json:"direction"`
	ChangePercent float64        `json:"change_percent"`
	Significance  string         `json:"significance"`
}

// Priority orders report recommendations.
type Priority string

const (
	PriorityCritical   Priority = "critical"
	PriorityImportant  Priority = "important"
	PrioritySuggestion Priority = "suggestion"
)

// Recommendation is one prioritized action item with an impact/effort
// rating.
type Recommendation struct {
	Priority Priority `json:"priority"`
	Message  string   `json:"message"`
	Impact   string   `json:"impact"`
	Effort   string   `json:"effort"`
}

// TechnicalMetrics is the implementation-level report section, sourced
// from resource timings and the cache.
type TechnicalMetrics struct {
	EstimatedBundleBytes int64         `json:"estimated_bundle_bytes"`
	ChunkCount           int           `json:"chunk_count"`
	CacheHitRate         float64       `json:"cache_hit_rate"`
	ErrorRate            float64       `json:"error_rate"`
	Uptime               time.Duration `json:"uptime"`
	AvgResponseTime      time.Duration `json:"avg_response_time"`
}

// Report aggregates a trailing window of samples.
type Report struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	Window          time.Duration    `json:"window"`
	SampleCount     int              `json:"sample_count"`
	Summary         Sample           `json:"summary"`
	Trends          []Trend          `json:"trends"`
	Budget          BudgetStatus     `json:"budget"`
	Recommendations []Recommendation `json:"recommendations"`
	Technical       TechnicalMetrics `json:"technical"`
}

// GenerateReport aggregates the trailing report window: per-metric means,
// first-vs-last trends, budget compliance and prioritized
// recommendations.
func (m *Monitor) GenerateReport(ctx context.Context) (Report, error) {
	samples := m.Samples(m.cfg.ReportWindow)
	if len(samples) == 0 {
		return Report{}, errors.WrapPermanent(errors.ErrNotStarted, "monitor", "GenerateReport", "aggregate empty window")
	}

	report := Report{
		GeneratedAt: time.Now(),
		Window:      m.cfg.ReportWindow,
		SampleCount: len(samples),
		Summary:     summarize(samples),
		Trends:      trends(samples[0], samples[len(samples)-1]),
		Budget:      m.cfg.Budget.evaluate(samples[len(samples)-1]),
		Technical:   m.technical(ctx),
	}
	report.Recommendations = recommend(report.Budget, report.Technical)
	return report, nil
}

// summarize computes the arithmetic mean of each metric over the window.
func summarize(samples []Sample) Sample {
	var sum Sample
	n := time.Duration(len(samples))
	for _, s := range samples {
		sum.LCP += s.LCP
		sum.FID += s.FID
		sum.CLS += s.CLS
		sum.TTFB += s.TTFB
		sum.FCP += s.FCP
		sum.TTI += s.TTI
		sum.TBT += s.TBT
		sum.PageLoadTime += s.PageLoadTime
		sum.DOMContentLoaded += s.DOMContentLoaded
		sum.ResourceLoadTime += s.ResourceLoadTime
		sum.CacheHitRate += s.CacheHitRate
	}
	return Sample{
		LCP:              sum.LCP / n,
		FID:              sum.FID / n,
		CLS:              sum.CLS / float64(len(samples)),
		TTFB:             sum.TTFB / n,
		FCP:              sum.FCP / n,
		TTI:              sum.TTI / n,
		TBT:              sum.TBT / n,
		PageLoadTime:     sum.PageLoadTime / n,
		DOMContentLoaded: sum.DOMContentLoaded / n,
		ResourceLoadTime: sum.ResourceLoadTime / n,
		CacheHitRate:     sum.CacheHitRate / float64(len(samples)),
		Timestamp:        samples[len(samples)-1].Timestamp,
	}
}

func trends(first, last Sample) []Trend {
	return []Trend{
		trendOf("lcp", float64(first.LCP), float64(last.LCP)),
		trendOf("fid", float64(first.FID), float64(last.FID)),
		trendOf("cls", first.CLS, last.CLS),
		trendOf("ttfb", float64(first.TTFB), float64(last.TTFB)),
	}
}

// trendOf computes percent change first-vs-last. Lower is better for
// every budgeted metric, so a drop reads as improving.
func trendOf(name string, first, last float64) Trend {
	t := Trend{Metric: name, Direction: TrendStable, Significance: "stable"}
	if first == 0 {
		return t
	}
	t.ChangePercent = (last - first) / first * 100

	abs := math.Abs(t.ChangePercent)
	switch {
	case abs < 10:
		return t
	case abs < 20:
		t.Significance = "moderate"
	default:
		t.Significance = "significant"
	}
	if t.ChangePercent < 0 {
		t.Direction = TrendImproving
	} else {
		t.Direction = TrendDeclining
	}
	return t
}

var adviceRatings = map[string]struct{ impact, effort string }{
	"lcp":  {impact: "high", effort: "medium"},
	"fid":  {impact: "high", effort: "high"},
	"cls":  {impact: "medium", effort: "low"},
	"ttfb": {impact: "high", effort: "medium"},
}

// recommend turns budget violations into prioritized action items: poor
// metrics are critical, needs-improvement metrics are important, and soft
// observations come through as suggestions.
func recommend(budget BudgetStatus, tech TechnicalMetrics) []Recommendation {
	var out []Recommendation
	for _, ms := range budget.Metrics {
		if ms.Rating == RatingGood {
			continue
		}
		priority := PriorityImportant
		if ms.Rating == RatingPoor {
			priority = PriorityCritical
		}
		ratings := adviceRatings[ms.Metric]
		out = append(out, Recommendation{
			Priority: priority,
			Message:  ms.Recommendation,
			Impact:   ratings.impact,
			Effort:   ratings.effort,
		})
	}

	if tech.CacheHitRate > 0 && tech.CacheHitRate < 0.8 {
		out = append(out, Recommendation{
			Priority: PrioritySuggestion,
			Message:  "Cache hit rate is below 80%; consider preloading frequently used keys.",
			Impact:   "medium",
			Effort:   "low",
		})
	}
	if tech.ErrorRate > 0.05 {
		out = append(out, Recommendation{
			Priority: PriorityImportant,
			Message:  "Error rate exceeds 5%; inspect the recovery engine's error log.",
			Impact:   "high",
			Effort:   "medium",
		})
	}
	return out
}

func (m *Monitor) technical(ctx context.Context) TechnicalMetrics {
	var tech TechnicalMetrics
	if m.cacheStats != nil {
		cs := m.cacheStats(ctx)
		tech.CacheHitRate = cs.HitRate
		tech.AvgResponseTime = cs.AvgResponseTime
	}
	if m.resourceStats != nil {
		rs := m.resourceStats()
		tech.EstimatedBundleBytes = rs.EstimatedBundleBytes
		tech.ChunkCount = rs.ChunkCount
	}
	if m.errorRate != nil {
		tech.ErrorRate = m.errorRate()
	}

	m.mu.Lock()
	if m.started {
		tech.Uptime = time.Since(m.startedAt)
	}
	m.mu.Unlock()
	return tech
}
