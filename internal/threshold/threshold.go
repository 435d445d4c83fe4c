// Package threshold parses pass/fail criteria over metric series and
// evaluates them against a metrics snapshot.
package threshold

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidExpression is returned for threshold expressions that cannot be
// parsed.
var ErrInvalidExpression = errors.New("invalid threshold expression")

// Aggregation names the statistic a threshold compares.
type Aggregation string

const (
	AggPercentile Aggregation = "p"
	AggAvg        Aggregation = "avg"
	AggMin        Aggregation = "min"
	AggMax        Aggregation = "max"
	AggMed        Aggregation = "med"
	AggCount      Aggregation = "count"
	AggRate       Aggregation = "rate"
)

// Matches "p(99.99) < 50", "p95<500ms", "rate < 0.01", "count >= 10".
var expressionRe = regexp.MustCompile(`^\s*(p\(\s*([0-9]*\.?[0-9]+)\s*\)|p([0-9]*\.?[0-9]+)|avg|min|max|med|count|rate)\s*(<=|>=|==|!=|<|>)\s*(\S+)\s*$`)

// Threshold is a parsed criterion over one series.
type Threshold struct {
	Series      string
	Expression  string
	Aggregation Aggregation
	Percentile  float64
	Op          string

	// Limit is the right-hand side. A duration literal such as "500ms" is
	// converted to milliseconds.
	Limit float64
}

// Parse parses expr as a threshold over series.
func Parse(series, expr string) (Threshold, error) {
	t := Threshold{Series: series, Expression: strings.TrimSpace(expr)}
	if series == "" {
		return t, fmt.Errorf("%w: empty series name", ErrInvalidExpression)
	}

	m := expressionRe.FindStringSubmatch(expr)
	if m == nil {
		return t, fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
	}

	switch {
	case m[2] != "" || m[3] != "":
		raw := m[2]
		if raw == "" {
			raw = m[3]
		}
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || p < 0 || p > 100 {
			return t, fmt.Errorf("%w: percentile %q out of range [0, 100]", ErrInvalidExpression, raw)
		}
		t.Aggregation = AggPercentile
		t.Percentile = p
	default:
		t.Aggregation = Aggregation(m[1])
	}

	t.Op = m[4]

	limit, err := parseLimit(m[5])
	if err != nil {
		return t, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}
	t.Limit = limit
	return t, nil
}

// parseLimit accepts a plain number or a duration literal, returned in
// milliseconds.
func parseLimit(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("value %q is neither a number nor a duration", s)
	}
	return float64(d) / float64(time.Millisecond), nil
}

// ParseAll parses a series-to-expressions map. Thresholds are returned in
// series order, preserving expression order within a series. All parse
// errors are reported together.
func ParseAll(spec map[string][]string) ([]Threshold, error) {
	series := make([]string, 0, len(spec))
	for name := range spec {
		series = append(series, name)
	}
	sort.Strings(series)

	var out []Threshold
	var errs []error
	for _, name := range series {
		for _, expr := range spec[name] {
			t, err := Parse(name, expr)
			if err != nil {
				errs = append(errs, fmt.Errorf("thresholds.%s: %w", name, err))
				continue
			}
			out = append(out, t)
		}
	}
	return out, errors.Join(errs...)
}

// String returns the canonical "series: expression" form.
func (t Threshold) String() string {
	return t.Series + ": " + t.Expression
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, limit float64) bool {
	switch op {
	case "<":
		return actual < limit
	case "<=":
		return actual <= limit
	case ">":
		return actual > limit
	case ">=":
		return actual >= limit
	case "==":
		return actual == limit
	case "!=":
		return actual != limit
	default:
		return false
	}
}
