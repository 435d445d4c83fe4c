package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wesleyorama2/merchload/internal/engine"
	"github.com/wesleyorama2/merchload/internal/metrics"
)

// PrintSummary prints the end-of-run report.
func (c *Console) PrintSummary(s *engine.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if s.Passed {
			c.writeln(c.scheme.Pass.Sprint("PASSED"))
		} else {
			c.writeln(c.scheme.Fail.Sprint("FAILED"))
		}
		return
	}

	if c.isTTY {
		c.clearLive()
	}

	line := strings.Repeat(boxHorizontal, boxWidth)
	status := c.scheme.Pass.Sprint("passed " + SuccessIcon(c.noColor))
	switch {
	case s.SetupError != "":
		status = c.scheme.Fail.Sprint("setup failed " + ErrorIcon(c.noColor))
	case !s.Passed:
		status = c.scheme.Fail.Sprint("thresholds failed " + ErrorIcon(c.noColor))
	}

	c.writeln("")
	c.writeln(c.scheme.Section.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.scheme.Title.Sprint(s.Name), status))
	c.writeln(c.scheme.Section.Sprint(line))
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", c.scheme.Value.Sprint(formatDuration(s.Duration))))
	c.writeln(fmt.Sprintf("Iterations:    %s (%.1f/s achieved, %s target)",
		c.scheme.Value.Sprint(formatNumber(s.Executor.Iterations)), s.AchievedRate(), formatRate(s.Config)))
	if s.Executor.Dropped > 0 {
		c.writeln(fmt.Sprintf("Dropped:       %s %s", WarningIcon(c.noColor), c.scheme.Warn.Sprint(formatNumber(s.Executor.Dropped))))
	}
	if s.Executor.Abandoned > 0 {
		c.writeln(fmt.Sprintf("Abandoned:     %s %s", WarningIcon(c.noColor), c.scheme.Warn.Sprint(formatNumber(s.Executor.Abandoned))))
	}
	c.writeln(fmt.Sprintf("VUs:           %d peak, %d created, %d max", s.Executor.PeakVUs, s.Executor.CreatedVUs, s.Executor.MaxVUs))
	if s.Aborted {
		c.writeln(c.scheme.Warn.Sprint("Run was interrupted before its schedule ended."))
	}
	if s.SetupError != "" {
		c.writeln(fmt.Sprintf("Setup error:   %s", c.scheme.Fail.Sprint(s.SetupError)))
	}
	if s.ProbeWarnings > 0 {
		c.writeln(fmt.Sprintf("Load generator CPU saturated %d time(s); results may be skewed.", s.ProbeWarnings))
	}
	c.writeln("")

	if s.Metrics != nil {
		c.printChecks(s.Metrics)
		c.printSeries(s.Metrics)
	}
	c.printThresholds(s)
}

func (c *Console) printChecks(snap *metrics.Snapshot) {
	if len(snap.Checks) == 0 {
		return
	}
	c.writeln(c.scheme.Title.Sprint("Checks:"))
	for _, chk := range snap.Checks {
		icon := SuccessIcon(c.noColor)
		if chk.Fails > 0 {
			icon = ErrorIcon(c.noColor)
		}
		total := chk.Passes + chk.Fails
		ratio := 1.0
		if total > 0 {
			ratio = float64(chk.Passes) / float64(total)
		}
		c.writeln(fmt.Sprintf("  %s %-28s %s  %s passed, %s failed",
			icon, chk.Name,
			c.scheme.ratio(ratio).Sprintf("%6.2f%%", ratio*100),
			formatNumber(chk.Passes), formatNumber(chk.Fails)))
	}
	c.writeln("")
}

func (c *Console) printSeries(snap *metrics.Snapshot) {
	c.writeln(c.scheme.Title.Sprint("Metrics:"))
	for _, name := range sortedKeys(snap.Trends) {
		t := snap.Trends[name]
		if t.Count == 0 {
			continue
		}
		c.writeln(fmt.Sprintf("  %-22s avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s p(99)=%s",
			name+dots(name),
			formatMillis(t.Avg), formatMillis(t.Min), formatMillis(t.Med), formatMillis(t.Max),
			formatMillis(t.P90), formatMillis(t.P95), formatMillis(t.P99)))
	}
	for _, name := range sortedKeys(snap.Rates) {
		r := snap.Rates[name]
		if name == metrics.Checks || r.Total == 0 {
			continue
		}
		c.writeln(fmt.Sprintf("  %-22s %s  %s out of %s",
			name+dots(name),
			c.scheme.Value.Sprintf("%.2f%%", r.Rate*100),
			formatNumber(r.Passes), formatNumber(r.Total)))
	}
	for _, name := range sortedKeys(snap.Counters) {
		ct := snap.Counters[name]
		c.writeln(fmt.Sprintf("  %-22s %s  %.2f/s",
			name+dots(name), c.scheme.Value.Sprint(formatNumber(ct.Count)), ct.Rate))
	}
	c.writeln("")
}

func (c *Console) printThresholds(s *engine.Summary) {
	if len(s.Thresholds.Results) == 0 {
		return
	}
	c.writeln(c.scheme.Title.Sprint("Thresholds:"))
	for _, r := range s.Thresholds.Results {
		icon := SuccessIcon(c.noColor)
		if !r.Passed {
			icon = ErrorIcon(c.noColor)
		}
		msg := fmt.Sprintf("  %s %s %s (actual: %g)", icon, r.Series, r.Expression, r.Actual)
		if r.Message != "" {
			msg += c.scheme.Dim.Sprintf(" %s", r.Message)
		}
		c.writeln(msg)
	}
	c.writeln("")
}

// dots pads a series name with a dotted leader.
func dots(name string) string {
	const width = 22
	if len(name) >= width-1 {
		return ":"
	}
	return strings.Repeat(".", width-1-len(name)) + ":"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
