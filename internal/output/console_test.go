package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/merchload/internal/engine"
	"github.com/wesleyorama2/merchload/internal/executor"
	"github.com/wesleyorama2/merchload/internal/metrics"
	"github.com/wesleyorama2/merchload/internal/threshold"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{time.Second, "1.0s"},
		{90 * time.Second, "1m 30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.input))
		})
	}
}

func TestFormatMillis(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "0s"},
		{0.5, "500µs"},
		{12.345, "12.35ms"},
		{1500, "1.50s"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatMillis(tt.input))
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatNumber(tt.input))
		})
	}
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "hello", stripANSI("\033[32mhello\033[0m"))
	assert.Equal(t, "plain", stripANSI("plain"))
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, "[██░░]", renderProgressBar(0.5, 4))
	assert.Equal(t, "[░░░░]", renderProgressBar(-1, 4))
	assert.Equal(t, "[████]", renderProgressBar(2, 4))
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "1000/s", formatRate(executor.Config{Rate: 1000, TimeUnit: time.Second}))
	assert.Equal(t, "50 per 1m0s", formatRate(executor.Config{Rate: 50, TimeUnit: time.Minute}))
}

func TestConsoleUpdateNonTTY(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})

	c.Update(engine.Progress{
		State:      engine.StateRunning,
		Elapsed:    2 * time.Second,
		Progress:   0.5,
		Iterations: 2000,
		Dropped:    3,
		ActiveVUs:  40,
		MaxVUs:     100,
		Latest:     &metrics.TimeBucket{IntervalRate: 999.5, IntervalErrorRate: 0.01, LatencyP95: 42},
	})

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "running 50%")
	assert.Contains(t, out, "Dropped: 3")
	assert.Contains(t, out, "Rate: 999.5/s")
	assert.Contains(t, out, "p95: 42.00ms")
}

func TestConsoleUpdateTTYRedraws(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true, ForceTTY: true})

	c.Update(engine.Progress{State: engine.StateRunning})
	first := c.linesOutput
	require.Positive(t, first)

	c.Update(engine.Progress{State: engine.StateRunning, Progress: 0.2})
	assert.Equal(t, first, c.linesOutput)
	assert.Contains(t, buf.String(), "\033[")
}

func TestConsoleQuiet(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Quiet: true, NoColor: true})

	c.PrintHeader("run", "id", executor.Config{})
	c.Update(engine.Progress{})
	c.PrintSummary(&engine.Summary{Passed: false})

	assert.Equal(t, "FAILED\n", buf.String())
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})

	c.PrintSummary(sampleSummary())

	out := buf.String()
	assert.Contains(t, out, "merch shop load - thresholds failed ✗")
	assert.Contains(t, out, "Dropped:       ⚠ 12")
	assert.Contains(t, out, "✓ has token")
	assert.Contains(t, out, "✗ info status is 200")
	assert.Contains(t, out, "http_req_duration")
	assert.Contains(t, out, "p(95)=120.00ms")
	assert.Contains(t, out, "errors")
	assert.Contains(t, out, "✗ errors rate<0.0001 (actual: 0.02)")
	assert.Contains(t, out, "✓ http_req_duration p(95)<2000")
}

func TestPrintSummarySetupError(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})

	c.PrintSummary(&engine.Summary{Name: "x", SetupError: "auth: connection refused"})

	assert.Contains(t, buf.String(), "setup failed")
	assert.Contains(t, buf.String(), "auth: connection refused")
}

func sampleSummary() *engine.Summary {
	return &engine.Summary{
		Name:     "merch shop load",
		Duration: 10 * time.Second,
		Passed:   false,
		Config:   executor.Config{Type: executor.TypeConstantArrivalRate, Rate: 100, TimeUnit: time.Second},
		Executor: executor.Stats{Iterations: 988, Dropped: 12, PeakVUs: 14, CreatedVUs: 14, MaxVUs: 50},
		Metrics: &metrics.Snapshot{
			Trends: map[string]metrics.TrendStats{
				metrics.HTTPReqDuration: {Count: 3000, Min: 2, Max: 300, Avg: 40, Med: 30, P90: 90, P95: 120, P99: 250},
			},
			Rates: map[string]metrics.RateStats{
				metrics.Errors: {Rate: 0.02, Passes: 20, Fails: 968, Total: 988},
				metrics.Checks: {Rate: 0.99, Passes: 2950, Fails: 30, Total: 2980},
			},
			Counters: map[string]metrics.CounterStats{
				metrics.Iterations: {Count: 988, Rate: 98.8},
			},
			Checks: []metrics.CheckStats{
				{Name: "has token", Passes: 988},
				{Name: "info status is 200", Passes: 958, Fails: 30},
			},
			Elapsed: 10 * time.Second,
		},
		Thresholds: threshold.Report{
			Passed: false,
			Results: []threshold.Result{
				{Series: metrics.HTTPReqDuration, Expression: "p(95)<2000", Passed: true, Actual: 120},
				{Series: metrics.Errors, Expression: "rate<0.0001", Passed: false, Actual: 0.02},
			},
		},
	}
}
