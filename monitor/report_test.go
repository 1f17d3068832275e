package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReportAggregates(t *testing.T) {
	cacheStats := func(context.Context) CacheStats {
		return CacheStats{HitRate: 0.9, AvgResponseTime: 2 * time.Millisecond}
	}
	resourceStats := func() ResourceStats {
		return ResourceStats{EstimatedBundleBytes: 512_000, ChunkCount: 7}
	}
	m := New(DefaultConfig(),
		WithCacheStats(cacheStats),
		WithResourceStats(resourceStats),
		WithErrorRate(func() float64 { return 0.01 }),
	)
	require.NoError(t, m.Start())

	// LCP improves from 4000ms to 2000ms across the window.
	m.RecordMetric(Sample{
		LCP: 4000 * time.Millisecond, FID: 50 * time.Millisecond,
		CLS: 0.05, TTFB: 200 * time.Millisecond,
	})
	m.RecordMetric(Sample{LCP: 3000 * time.Millisecond})
	m.RecordMetric(Sample{LCP: 2000 * time.Millisecond})

	report, err := m.GenerateReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.SampleCount)
	assert.Equal(t, 3000*time.Millisecond, report.Summary.LCP)
	assert.Equal(t, RatingGood, report.Budget.Overall)

	var lcpTrend Trend
	for _, tr := range report.Trends {
		if tr.Metric == "lcp" {
			lcpTrend = tr
		}
	}
	assert.Equal(t, TrendImproving, lcpTrend.Direction)
	assert.Equal(t, "significant", lcpTrend.Significance)
	assert.InDelta(t, -50.0, lcpTrend.ChangePercent, 0.01)

	assert.Equal(t, int64(512_000), report.Technical.EstimatedBundleBytes)
	assert.Equal(t, 7, report.Technical.ChunkCount)
	assert.Equal(t, 0.9, report.Technical.CacheHitRate)
	assert.Greater(t, report.Technical.Uptime, time.Duration(0))
}

func TestGenerateReportEmptyWindow(t *testing.T) {
	m := New(DefaultConfig())
	_, err := m.GenerateReport(context.Background())
	assert.Error(t, err)
}

func TestReportRecommendationPriorities(t *testing.T) {
	m := New(DefaultConfig(), WithCacheStats(func(context.Context) CacheStats {
		return CacheStats{HitRate: 0.5}
	}))

	// TTFB poor, LCP needs improvement, cache hit rate low.
	m.RecordMetric(Sample{
		LCP: 3000 * time.Millisecond, FID: 50 * time.Millisecond,
		CLS: 0.05, TTFB: 2000 * time.Millisecond,
	})

	report, err := m.GenerateReport(context.Background())
	require.NoError(t, err)

	byPriority := map[Priority]int{}
	for _, rec := range report.Recommendations {
		byPriority[rec.Priority]++
		assert.NotEmpty(t, rec.Message)
		assert.NotEmpty(t, rec.Impact)
		assert.NotEmpty(t, rec.Effort)
	}
	assert.Equal(t, 1, byPriority[PriorityCritical], "poor TTFB is critical")
	assert.Equal(t, 1, byPriority[PriorityImportant], "needs-improvement LCP is important")
	assert.Equal(t, 1, byPriority[PrioritySuggestion], "low cache hit rate is a suggestion")
}

func TestTrendBanding(t *testing.T) {
	tests := []struct {
		name         string
		first, last  float64
		direction    TrendDirection
		significance string
	}{
		{"under 10 percent is stable", 1000, 1050, TrendStable, "stable"},
		{"10-20 percent decline is moderate", 1000, 1150, TrendDeclining, "moderate"},
		{"over 20 percent drop is significant improvement", 1000, 700, TrendImproving, "significant"},
		{"zero baseline stays stable", 0, 500, TrendStable, "stable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := trendOf("lcp", tt.first, tt.last)
			assert.Equal(t, tt.direction, tr.Direction)
			assert.Equal(t, tt.significance, tr.Significance)
		})
	}
}

func TestReporterEmitsPeriodically(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReportInterval = 10 * time.Millisecond
	m := New(cfg)
	m.RecordMetric(Sample{LCP: time.Second})

	var emissions int32
	sink := SinkFunc(func(ctx context.Context, s Sample) error {
		atomic.AddInt32(&emissions, 1)
		return nil
	})

	r, err := NewReporter(m, sink)
	require.NoError(t, err)
	r.Start()
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, r.Close())

	assert.Greater(t, atomic.LoadInt32(&emissions), int32(0))
}

func TestReporterRateLimitsFlush(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordMetric(Sample{LCP: time.Second})

	var emissions int32
	sink := SinkFunc(func(ctx context.Context, s Sample) error {
		atomic.AddInt32(&emissions, 1)
		return nil
	})

	r, err := NewReporter(m, sink)
	require.NoError(t, err)
	defer r.Close()

	// Burst allows two immediate emissions; further flushes are dropped.
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Flush(context.Background()))
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&emissions))
}

func TestReporterSkipsEmptyHistory(t *testing.T) {
	m := New(DefaultConfig())
	called := false
	sink := SinkFunc(func(ctx context.Context, s Sample) error {
		called = true
		return nil
	})
	r, err := NewReporter(m, sink)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Flush(context.Background()))
	assert.False(t, called)
}
