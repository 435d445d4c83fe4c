package threshold

import (
	"fmt"

	"github.com/wesleyorama2/merchload/internal/metrics"
)

// Result is the outcome of one threshold.
type Result struct {
	Series     string  `json:"series"`
	Expression string  `json:"expression"`
	Passed     bool    `json:"passed"`
	Actual     float64 `json:"actual"`
	Message    string  `json:"message,omitempty"`
}

// Report is the outcome of a threshold set. Passed is the conjunction of
// every result; an empty set passes.
type Report struct {
	Passed  bool     `json:"passed"`
	Results []Result `json:"results"`
}

// Failed returns the results that did not pass.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Evaluate checks every threshold against snap. It only reads the snapshot,
// so repeated evaluation of the same snapshot yields the same report.
//
// A series with no samples (or none at all) evaluates as 0.
func Evaluate(snap *metrics.Snapshot, thresholds []Threshold) Report {
	report := Report{Passed: true, Results: make([]Result, 0, len(thresholds))}
	for _, t := range thresholds {
		res := evaluateOne(snap, t)
		if !res.Passed {
			report.Passed = false
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func evaluateOne(snap *metrics.Snapshot, t Threshold) Result {
	res := Result{Series: t.Series, Expression: t.Expression}

	actual, err := resolve(snap, t)
	if err != nil {
		res.Message = err.Error()
		return res
	}

	res.Actual = actual
	res.Passed = compareValues(actual, t.Op, t.Limit)
	if !res.Passed {
		res.Message = fmt.Sprintf("%s is %s, threshold: %s %s",
			t.label(), formatValue(actual), t.Op, formatValue(t.Limit))
	}
	return res
}

func resolve(snap *metrics.Snapshot, t Threshold) (float64, error) {
	if snap == nil {
		return 0, nil
	}
	kind, ok := snap.Kind(t.Series)
	if !ok {
		return 0, nil
	}

	switch kind {
	case metrics.KindTrend:
		s := snap.Trends[t.Series]
		switch t.Aggregation {
		case AggPercentile:
			return s.Percentile(t.Percentile), nil
		case AggAvg:
			return s.Avg, nil
		case AggMin:
			return s.Min, nil
		case AggMax:
			return s.Max, nil
		case AggMed:
			return s.Med, nil
		case AggCount:
			return float64(s.Count), nil
		}
	case metrics.KindRate:
		s := snap.Rates[t.Series]
		switch t.Aggregation {
		case AggRate:
			return s.Rate, nil
		case AggCount:
			return float64(s.Total), nil
		}
	case metrics.KindCounter:
		s := snap.Counters[t.Series]
		switch t.Aggregation {
		case AggCount:
			return float64(s.Count), nil
		case AggRate:
			return s.Rate, nil
		}
	}
	return 0, fmt.Errorf("aggregation %q is not supported on %s series %q", t.Aggregation, kind, t.Series)
}

func (t Threshold) label() string {
	if t.Aggregation == AggPercentile {
		return fmt.Sprintf("p(%g)", t.Percentile)
	}
	return string(t.Aggregation)
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.4g", v)
}
