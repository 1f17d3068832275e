package monitor

// Rating classifies a metric against its budget thresholds.
type Rating string

const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs-improvement"
	RatingPoor             Rating = "poor"
)

// MetricStatus is the budget verdict for one metric.
type MetricStatus struct {
	Metric         string  `json:"metric"`
	Value          float64 `json:"value"`
	Rating         Rating  `json:"rating"`
	Recommendation string  `json:"recommendation,omitempty"`
}

// BudgetStatus is the verdict across all budgeted metrics, with an overall
// rating derived by majority vote.
type BudgetStatus struct {
	Overall         Rating         `json:"overall"`
	Metrics         []MetricStatus `json:"metrics"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

func rateValue(value float64, th Threshold) Rating {
	switch {
	case value <= th.Good:
		return RatingGood
	case value <= th.NeedsImprovement:
		return RatingNeedsImprovement
	default:
		return RatingPoor
	}
}

var metricAdvice = map[string]string{
	"lcp":  "Optimize the largest content element: compress hero images and preload critical resources.",
	"fid":  "Break up long tasks and defer non-essential script execution.",
	"cls":  "Reserve space for late-arriving content to prevent layout shifts.",
	"ttfb": "Reduce server response time: cache responses closer to the user.",
}

// evaluate rates one sample against the budget. Overall is a majority
// vote over the four budgeted metrics: at least 75% good rates good, at
// least 50% rates needs-improvement, anything less rates poor.
func (b Budget) evaluate(s Sample) BudgetStatus {
	statuses := []MetricStatus{
		{Metric: "lcp", Value: float64(s.LCP.Milliseconds()), Rating: rateValue(float64(s.LCP.Milliseconds()), b.LCPMillis)},
		{Metric: "fid", Value: float64(s.FID.Milliseconds()), Rating: rateValue(float64(s.FID.Milliseconds()), b.FIDMillis)},
		{Metric: "cls", Value: s.CLS, Rating: rateValue(s.CLS, b.CLS)},
		{Metric: "ttfb", Value: float64(s.TTFB.Milliseconds()), Rating: rateValue(float64(s.TTFB.Milliseconds()), b.TTFBMillis)},
	}

	out := BudgetStatus{}
	good := 0
	for i := range statuses {
		if statuses[i].Rating == RatingGood {
			good++
			continue
		}
		statuses[i].Recommendation = metricAdvice[statuses[i].Metric]
		out.Recommendations = append(out.Recommendations, statuses[i].Recommendation)
	}
	out.Metrics = statuses

	switch fraction := float64(good) / float64(len(statuses)); {
	case fraction >= 0.75:
		out.Overall = RatingGood
	case fraction >= 0.5:
		out.Overall = RatingNeedsImprovement
	default:
		out.Overall = RatingPoor
	}
	return out
}
