package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfkit/errors"
)

// fakeTiming is a controllable timing source for tests.
type fakeTiming struct {
	mu       sync.Mutex
	record   func(Sample)
	detached bool
}

func (f *fakeTiming) Attach(record func(Sample)) (func(), error) {
	f.mu.Lock()
	f.record = record
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.detached = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeTiming) push(s Sample) {
	f.mu.Lock()
	record := f.record
	f.mu.Unlock()
	if record != nil {
		record(s)
	}
}

func TestBudgetStatusAllGood(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordMetric(Sample{
		LCP:  1800 * time.Millisecond,
		FID:  50 * time.Millisecond,
		CLS:  0.05,
		TTFB: 150 * time.Millisecond,
	})

	status, err := m.BudgetStatus()
	require.NoError(t, err)
	assert.Equal(t, RatingGood, status.Overall)
	for _, ms := range status.Metrics {
		assert.Equal(t, RatingGood, ms.Rating, ms.Metric)
	}
	assert.Empty(t, status.Recommendations)
}

func TestBudgetStatusMajorityVote(t *testing.T) {
	m := New(DefaultConfig())

	// Two good (FID, CLS), one needs-improvement (LCP), one poor (TTFB):
	// 50% good rates needs-improvement overall.
	m.RecordMetric(Sample{
		LCP:  3000 * time.Millisecond,
		FID:  50 * time.Millisecond,
		CLS:  0.05,
		TTFB: 2000 * time.Millisecond,
	})

	status, err := m.BudgetStatus()
	require.NoError(t, err)
	assert.Equal(t, RatingNeedsImprovement, status.Overall)
	assert.Len(t, status.Recommendations, 2)

	// Three failing metrics: 25% good rates poor overall.
	m.RecordMetric(Sample{
		LCP:  5000 * time.Millisecond,
		FID:  400 * time.Millisecond,
		CLS:  0.05,
		TTFB: 2000 * time.Millisecond,
	})

	status, err = m.BudgetStatus()
	require.NoError(t, err)
	assert.Equal(t, RatingPoor, status.Overall)
}

func TestBudgetStatusEmptyHistory(t *testing.T) {
	m := New(DefaultConfig())
	_, err := m.BudgetStatus()
	assert.Error(t, err)
}

func TestRecordMetricMergesPartials(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordMetric(Sample{LCP: 2000 * time.Millisecond, URL: "/dashboard"})
	m.RecordMetric(Sample{FID: 80 * time.Millisecond})
	m.RecordMetric(Sample{CLS: 0.07, TTFB: 300 * time.Millisecond})

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, 2000*time.Millisecond, latest.LCP)
	assert.Equal(t, 80*time.Millisecond, latest.FID)
	assert.Equal(t, 0.07, latest.CLS)
	assert.Equal(t, 300*time.Millisecond, latest.TTFB)
	assert.Equal(t, "/dashboard", latest.URL)
}

func TestRecordMetricConcurrentPartialsKeepAllFields(t *testing.T) {
	m := New(DefaultConfig())

	partials := []Sample{
		{LCP: 1800 * time.Millisecond},
		{FID: 50 * time.Millisecond},
		{CLS: 0.05},
		{TTFB: 150 * time.Millisecond},
	}
	var wg sync.WaitGroup
	for _, p := range partials {
		wg.Add(1)
		go func(p Sample) {
			defer wg.Done()
			m.RecordMetric(p)
		}(p)
	}
	wg.Wait()

	// Each record merges over the one before it, so whatever the
	// interleaving, the newest sample carries every field.
	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, 1800*time.Millisecond, latest.LCP)
	assert.Equal(t, 50*time.Millisecond, latest.FID)
	assert.Equal(t, 0.05, latest.CLS)
	assert.Equal(t, 150*time.Millisecond, latest.TTFB)
}

func TestSamplesWindowFilter(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordMetric(Sample{LCP: time.Second, Timestamp: time.Now().Add(-2 * time.Hour)})
	m.RecordMetric(Sample{LCP: time.Second, Timestamp: time.Now()})

	assert.Len(t, m.Samples(0), 2)
	assert.Len(t, m.Samples(time.Hour), 1)
}

func TestStartAttachesSources(t *testing.T) {
	src := &fakeTiming{}
	m := New(DefaultConfig(), WithTimingSource(src))

	require.NoError(t, m.Start())
	assert.True(t, errors.Is(m.Start(), errors.ErrAlreadyStarted))

	src.push(Sample{LCP: 1200 * time.Millisecond})
	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, 1200*time.Millisecond, latest.LCP)

	require.NoError(t, m.Stop())
	src.mu.Lock()
	assert.True(t, src.detached)
	src.mu.Unlock()

	assert.True(t, errors.Is(m.Stop(), errors.ErrNotStarted))
}

func TestSampleHistoryCompaction(t *testing.T) {
	m := New(DefaultConfig())
	for i := 0; i < sampleHistory+100; i++ {
		m.RecordMetric(Sample{LCP: time.Second})
	}
	n := len(m.Samples(0))
	assert.LessOrEqual(t, n, sampleHistory)
	assert.GreaterOrEqual(t, n, sampleCompactTo)
}
