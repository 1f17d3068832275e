package monitor

import "time"

// Threshold is the two-band budget for one metric: values at or below
// Good rate "good", at or below NeedsImprovement rate
// "needs-improvement", above it "poor".
type Threshold struct {
	Good             float64 `yaml:"good"`
	NeedsImprovement float64 `yaml:"needs_improvement"`
}

// Budget holds per-metric thresholds. Duration metrics are expressed in
// milliseconds; CLS is unitless.
type Budget struct {
	LCPMillis  Threshold `yaml:"lcp_ms"`
	FIDMillis  Threshold `yaml:"fid_ms"`
	CLS        Threshold `yaml:"cls"`
	TTFBMillis Threshold `yaml:"ttfb_ms"`
}

// DefaultBudget returns the standard Web Vitals thresholds.
func DefaultBudget() Budget {
	return Budget{
		LCPMillis:  Threshold{Good: 2500, NeedsImprovement: 4000},
		FIDMillis:  Threshold{Good: 100, NeedsImprovement: 300},
		CLS:        Threshold{Good: 0.1, NeedsImprovement: 0.25},
		TTFBMillis: Threshold{Good: 600, NeedsImprovement: 1500},
	}
}

// Config controls sampling, reporting cadence and the budget.
type Config struct {
	// ReportInterval is how often the Reporter emits the latest sample.
	ReportInterval time.Duration `yaml:"report_interval" env:"REPORT_INTERVAL"`

	// ReportWindow is the trailing window aggregated by GenerateReport.
	ReportWindow time.Duration `yaml:"report_window" env:"REPORT_WINDOW"`

	// SampleRate is the fraction of emissions actually sent to the sink,
	// in [0, 1]. Bounds egress volume.
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`

	Budget Budget `yaml:"budget"`
}

// DefaultConfig returns the standard monitor settings.
func DefaultConfig() Config {
	return Config{
		ReportInterval: 30 * time.Second,
		ReportWindow:   24 * time.Hour,
		SampleRate:     1.0,
		Budget:         DefaultBudget(),
	}
}
