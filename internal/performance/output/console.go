// Package output renders load test progress and results for humans and
// machines.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/slorun/slorun/internal/performance/engine"
	"github.com/slorun/slorun/internal/performance/metrics"
)

const (
	boxHorizontal = "━"

	progressFilled = "█"
	progressEmpty  = "░"
)

// palette holds the colors used by the console.
type palette struct {
	header  *color.Color
	bold    *color.Color
	dim     *color.Color
	value   *color.Color
	latency *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
}

func newPalette(enabled bool) *palette {
	p := &palette{
		header:  color.New(color.FgCyan),
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
		value:   color.New(color.FgCyan),
		latency: color.New(color.FgBlue),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
	}
	for _, c := range []*color.Color{p.header, p.bold, p.dim, p.value, p.latency, p.good, p.warn, p.bad} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// rate picks a color for a failure rate.
func (p *palette) rate(r float64) *color.Color {
	switch {
	case r > 0.05:
		return p.bad
	case r > 0:
		return p.warn
	default:
		return p.good
	}
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	Quiet       bool
	ForceColors bool
	ForceTTY    bool
}

// Console writes run progress and the final summary.
type Console struct {
	writer io.Writer
	quiet  bool
	colors *palette

	mu sync.Mutex
}

// NewConsole creates a console writer.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)
	useColors := config.ForceColors || (isTTY && supportsColors())

	return &Console{
		writer: config.Writer,
		quiet:  config.Quiet,
		colors: newPalette(useColors),
	}
}

// supportsColors checks the environment for color preferences.
func supportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// PrintHeader prints the test name and one line per scenario.
func (c *Console) PrintHeader(plan engine.Plan) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 64)
	c.writeln(c.colors.header.Sprint(line))
	c.writeln(c.colors.bold.Sprintf("%s - Running", displayName(plan.Name)))
	c.writeln(c.colors.header.Sprint(line))

	if len(plan.Setup) > 0 {
		c.writeln(fmt.Sprintf("Setup:      %d operations", len(plan.Setup)))
	}
	for _, sc := range plan.Scenarios {
		c.writeln(fmt.Sprintf("Scenario:   %s %s",
			c.colors.bold.Sprint(sc.Name),
			c.colors.dim.Sprintf("%g/%s for %s, %d..%d workers, exec %s",
				sc.Rate, timeUnit(sc.TimeUnit), formatDuration(sc.Duration),
				sc.PreAllocatedWorkers, sc.MaxWorkers, sc.Workflow.Name)))
	}
	c.writeln("")
}

// PrintProgress prints a one-line status built from a live snapshot.
func (c *Console) PrintProgress(snap *metrics.Snapshot) {
	if c.quiet || snap == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	g := snap.Global
	c.writeln(fmt.Sprintf("[%s] Iters: %s | Rate: %.1f/s | Failed: %s | Dropped: %s | Reqs: %s | P95: %s",
		formatDuration(snap.Elapsed),
		formatNumber(g.Iterations),
		g.IterationRate,
		c.colors.rate(g.FailureRate).Sprintf("%d (%.1f%%)", g.Failed, g.FailureRate*100),
		formatNumber(g.Dropped),
		formatNumber(g.Requests),
		formatDurationShort(g.RequestDuration.P95)))
}

// PrintSetupFailure prints why the run was aborted before load started.
func (c *Console) PrintSetupFailure(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 64)
	c.writeln("")
	c.writeln(c.colors.header.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.colors.bold.Sprint(displayName(name)), c.colors.bad.Sprint("Aborted ✗")))
	c.writeln(c.colors.header.Sprint(line))
	c.writeln(fmt.Sprintf("Setup failed: %v", err))
	c.writeln("No scenario was started.")
}

// PrintSummary prints the final test summary.
func (c *Console) PrintSummary(result *engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if result.Passed {
			c.writeln(c.colors.good.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.bad.Sprint("FAILED"))
		}
		return
	}

	line := strings.Repeat(boxHorizontal, 64)
	status := c.colors.good.Sprint("Completed ✓")
	if !result.Passed {
		status = c.colors.bad.Sprint("Failed ✗")
	}

	c.writeln("")
	c.writeln(c.colors.header.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.colors.bold.Sprint(displayName(result.Name)), status))
	c.writeln(c.colors.header.Sprint(line))
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.value.Sprint(formatDuration(result.Duration))))
	if result.Metrics == nil {
		c.writeln("")
		return
	}

	g := result.Metrics.Global
	c.writeln(fmt.Sprintf("Iterations:    %s (%s/s)", c.colors.value.Sprint(formatNumber(g.Iterations)), fmt.Sprintf("%.1f", g.IterationRate)))
	c.writeln(fmt.Sprintf("Failed:        %s", c.colors.rate(g.FailureRate).Sprintf("%s (%.2f%%)", formatNumber(g.Failed), g.FailureRate*100)))
	c.writeln(fmt.Sprintf("Dropped:       %s", c.colors.rate(ratio(g.Dropped, g.Iterations)).Sprint(formatNumber(g.Dropped))))
	if g.Missed > 0 {
		c.writeln(fmt.Sprintf("Missed:        %s", c.colors.warn.Sprint(formatNumber(g.Missed))))
	}
	c.writeln(fmt.Sprintf("Requests:      %s (%.1f/s, %s failed)",
		c.colors.value.Sprint(formatNumber(g.Requests)), g.RequestRate,
		c.colors.rate(g.RequestFailureRate).Sprintf("%.4f%%", g.RequestFailureRate*100)))
	c.writeln("")

	c.writeln(c.colors.bold.Sprint("Request Latency:"))
	c.writeLatency(g.RequestDuration)
	c.writeln("")

	c.writeln(c.colors.bold.Sprint("Scenarios:"))
	c.writeln(c.colors.dim.Sprintf("  %-20s %8s %8s %8s %8s %9s %9s %9s", "name", "iters", "ok", "failed", "dropped", "p50", "p95", "p99"))
	for _, name := range sortedScenarios(result.Metrics) {
		s := result.Metrics.Scenarios[name]
		c.writeln(fmt.Sprintf("  %-20s %8d %8d %8s %8d %9s %9s %9s",
			name, s.Iterations, s.Succeeded,
			c.colors.rate(s.FailureRate).Sprintf("%8d", s.Failed),
			s.Dropped,
			formatDurationShort(s.IterationDuration.P50),
			formatDurationShort(s.IterationDuration.P95),
			formatDurationShort(s.IterationDuration.P99)))

		if st, ok := result.Scenarios[name]; ok && st.Pool.PeakBusy > 0 {
			c.writeln(c.colors.dim.Sprintf("  %-20s peak busy %d of %d workers", "", st.Pool.PeakBusy, st.Pool.Max))
		}
	}
	c.writeln("")

	if len(result.Verdict.Results) > 0 {
		c.writeln(c.colors.bold.Sprint("Thresholds:"))
		for _, t := range result.Verdict.Results {
			mark := c.colors.good.Sprint("✓")
			if !t.Passed {
				mark = c.colors.bad.Sprint("✗")
			}
			actual := t.Value
			if actual == "" {
				actual = t.Message
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", mark, t.Metric, t.Expr, actual))
		}
		c.writeln("")
	}
}

func (c *Console) writeLatency(l metrics.LatencyStats) {
	c.writeln(fmt.Sprintf("  Min:       %s", c.colors.latency.Sprint(formatDurationShort(l.Min))))
	c.writeln(fmt.Sprintf("  P50:       %s", c.colors.latency.Sprint(formatDurationShort(l.P50))))
	c.writeln(fmt.Sprintf("  P90:       %s", c.colors.latency.Sprint(formatDurationShort(l.P90))))
	c.writeln(fmt.Sprintf("  P95:       %s", c.colors.latency.Sprint(formatDurationShort(l.P95))))
	c.writeln(fmt.Sprintf("  P99:       %s", c.colors.latency.Sprint(formatDurationShort(l.P99))))
	c.writeln(fmt.Sprintf("  Max:       %s", c.colors.latency.Sprint(formatDurationShort(l.Max))))
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func sortedScenarios(snap *metrics.Snapshot) []string {
	names := make([]string, 0, len(snap.Scenarios))
	for name := range snap.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func displayName(name string) string {
	if name == "" {
		return "Load Test"
	}
	return name
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// timeUnit renders 1s as "s" and anything else as a duration.
func timeUnit(d time.Duration) string {
	switch d {
	case 0, time.Second:
		return "s"
	case time.Minute:
		return "m"
	}
	return d.String()
}

// formatDuration formats a duration in a human-readable format.
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

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
