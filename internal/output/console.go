// Package output renders live progress and final run summaries.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/merchload/internal/engine"
	"github.com/wesleyorama2/merchload/internal/executor"
)

// ANSI cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal = "━"
	boxVertical   = "│"

	progressFilled = "█"
	progressEmpty  = "░"

	boxWidth = 56
)

// ConsoleConfig configures a Console.
type ConsoleConfig struct {
	Writer io.Writer

	// Quiet suppresses live updates and prints a one-line verdict.
	Quiet bool

	NoColor bool

	// ForceTTY enables in-place redraws even when Writer is not a terminal.
	ForceTTY bool
}

// Console renders progress and summaries to a terminal or a plain stream.
type Console struct {
	writer  io.Writer
	quiet   bool
	isTTY   bool
	noColor bool
	scheme  *ColorScheme

	mu          sync.Mutex
	linesOutput int
}

// NewConsole creates a console renderer.
func NewConsole(config ConsoleConfig) *Console {
	w := config.Writer
	if w == nil {
		w = os.Stdout
	}
	noColor := config.NoColor || color.NoColor || !isTerminal(w)
	if config.ForceTTY && !config.NoColor {
		noColor = false
	}
	scheme := DefaultColorScheme()
	if noColor {
		scheme = NoColorScheme()
	}
	return &Console{
		writer:  w,
		quiet:   config.Quiet,
		isTTY:   config.ForceTTY || isTerminal(w),
		noColor: noColor,
		scheme:  scheme,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// PrintHeader prints the run banner.
func (c *Console) PrintHeader(name, runID string, cfg executor.Config) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, boxWidth)
	c.writeln(c.scheme.Section.Sprint(line))
	c.writeln(c.scheme.Title.Sprint("merchload ") + c.scheme.Value.Sprint(name))
	c.writeln(c.scheme.Section.Sprint(line))
	c.writeln(fmt.Sprintf("  executor:  %s", cfg.Type))
	c.writeln(fmt.Sprintf("  rate:      %s", formatRate(cfg)))
	c.writeln(fmt.Sprintf("  duration:  %s (gracefulStop %s)", formatDuration(cfg.Duration), formatDuration(gracefulStop(cfg))))
	c.writeln(fmt.Sprintf("  vus:       %d preallocated, %d max", cfg.PreAllocatedVUs, cfg.MaxVUs))
	if runID != "" {
		c.writeln(c.scheme.Dim.Sprintf("  run id:    %s", runID))
	}
	c.writeln("")
}

// Update renders one progress tick. On a terminal the previous box is
// redrawn in place; otherwise a single status line is appended.
func (c *Console) Update(p engine.Progress) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		c.writeln(progressLine(p))
		return
	}

	c.clearLive()
	lines := c.renderBox(p)
	for _, l := range lines {
		c.writeln(clearLine + l)
	}
	c.linesOutput = len(lines)
}

func (c *Console) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *Console) renderBox(p engine.Progress) []string {
	var rps, errRate, p95 string
	rps, errRate, p95 = "-", "-", "-"
	if b := p.Latest; b != nil {
		rps = fmt.Sprintf("%.1f/s", b.IntervalRate)
		errRate = c.scheme.ratio(1 - b.IntervalErrorRate).Sprintf("%.2f%%", b.IntervalErrorRate*100)
		p95 = formatMillis(b.LatencyP95)
	}

	dropped := formatNumber(p.Dropped)
	if p.Dropped > 0 {
		dropped = c.scheme.Warn.Sprint(dropped)
	}

	return []string{
		c.scheme.Section.Sprint(strings.Repeat(boxHorizontal, boxWidth)),
		formatBoxRow("State", c.scheme.Highlight.Sprint(p.State.String())),
		formatBoxRow("Progress", fmt.Sprintf("%s %5.1f%%", renderProgressBar(p.Progress, 24), p.Progress*100)),
		formatBoxRow("Elapsed", formatDuration(p.Elapsed)),
		formatBoxRow("VUs", fmt.Sprintf("%d active, %d created, %d max", p.ActiveVUs, p.CreatedVUs, p.MaxVUs)),
		formatBoxRow("Rate", fmt.Sprintf("%s (target %.1f/s)", rps, p.TargetRate)),
		formatBoxRow("Iterations", fmt.Sprintf("%s, %d in flight", formatNumber(p.Iterations), p.InFlight)),
		formatBoxRow("Dropped", dropped),
		formatBoxRow("Errors", errRate),
		formatBoxRow("HTTP p95", p95),
		c.scheme.Section.Sprint(strings.Repeat(boxHorizontal, boxWidth)),
	}
}

func progressLine(p engine.Progress) string {
	rps, errRate, p95 := 0.0, 0.0, 0.0
	if b := p.Latest; b != nil {
		rps, errRate, p95 = b.IntervalRate, b.IntervalErrorRate, b.LatencyP95
	}
	return fmt.Sprintf("[%s] %s %.0f%% | VUs: %d/%d | Iters: %d | Dropped: %d | Rate: %.1f/s | Errors: %.2f%% | p95: %s",
		formatDuration(p.Elapsed),
		p.State,
		p.Progress*100,
		p.ActiveVUs,
		p.MaxVUs,
		p.Iterations,
		p.Dropped,
		rps,
		errRate*100,
		formatMillis(p95),
	)
}

// formatBoxRow left-pads a label into a fixed column.
func formatBoxRow(label, value string) string {
	return fmt.Sprintf("%s %-12s %s", boxVertical, label, value)
}

func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

func (c *Console) write(s string) {
	_, _ = io.WriteString(c.writer, s)
}

func (c *Console) writeln(s string) {
	c.write(s + "\n")
}

func formatRate(cfg executor.Config) string {
	unit := cfg.TimeUnit
	if unit <= 0 {
		unit = time.Second
	}
	if unit == time.Second {
		return fmt.Sprintf("%g/s", cfg.Rate)
	}
	return fmt.Sprintf("%g per %s", cfg.Rate, unit)
}

func gracefulStop(cfg executor.Config) time.Duration {
	if cfg.GracefulStop <= 0 {
		return executor.DefaultGracefulStop
	}
	return cfg.GracefulStop
}

// formatDuration renders d for humans, coarsening precision as it grows.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatMillis renders a latency given in milliseconds.
func formatMillis(ms float64) string {
	switch {
	case ms <= 0:
		return "0s"
	case ms < 1:
		return fmt.Sprintf("%.0fµs", ms*1000)
	case ms < 1000:
		return fmt.Sprintf("%.2fms", ms)
	default:
		return fmt.Sprintf("%.2fs", ms/1000)
	}
}

// formatNumber adds thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}
	return result.String()
}
