// Package tui renders status lines, progress and run summaries on the terminal.
// Data goes to stdout; everything here writes to the console writer (stderr).
package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/bundler/pkg/pipeline"
)

// Colors
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	stepStyle    = lipgloss.NewStyle().Foreground(success)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
)

// Console prints human-oriented output. A quiet console prints nothing.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool
}

// NewConsole creates a console writing to w.
func NewConsole(w io.Writer, quiet bool) *Console {
	return &Console{w: w, quiet: quiet}
}

// Writer returns the underlying writer.
func (c *Console) Writer() io.Writer {
	return c.w
}

// Quiet reports whether output is suppressed.
func (c *Console) Quiet() bool {
	return c.quiet
}

func (c *Console) println(s string) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, s)
}

// Step announces a pipeline stage, e.g. "Downloading data...".
func (c *Console) Step(msg string) {
	c.println(stepStyle.Render(msg))
}

// Info prints a muted line.
func (c *Console) Info(msg string) {
	c.println(mutedStyle.Render(msg))
}

// Warn prints a highlighted warning line.
func (c *Console) Warn(msg string) {
	c.println(warnStyle.Render("! " + msg))
}

// Error prints a failure line.
func (c *Console) Error(err error) {
	c.println(accentStyle.Render("✗ " + err.Error()))
}

// Report prints the summary of a finished run.
func (c *Console) Report(res pipeline.Result, stats pipeline.ErrorStats) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w, successStyle.Render("✓ BUNDLING COMPLETE"))
	fmt.Fprintf(c.w, "  %s %s\n", mutedStyle.Render("Run:"), titleStyle.Render(res.RunID))
	fmt.Fprintf(c.w, "  %s %s\n", mutedStyle.Render("Events:"), titleStyle.Render(formatNumber(res.Events)))
	fmt.Fprintf(c.w, "  %s %s\n", mutedStyle.Render("Groups:"), titleStyle.Render(formatNumber(int64(res.Groups))))
	fmt.Fprintf(c.w, "  %s %s\n", mutedStyle.Render("Notifications:"), titleStyle.Render(formatNumber(int64(res.Notifications))))
	if stats.ErrorCount > 0 {
		fmt.Fprintf(c.w, "  %s %s\n", mutedStyle.Render("Errors:"),
			warnStyle.Render(fmt.Sprintf("%d (%d skipped, policy %s)", stats.ErrorCount, stats.SkippedCount, stats.Policy)))
	}
	if res.Duration > 0 {
		fmt.Fprintf(c.w, "  %s %s %s\n",
			mutedStyle.Render("Time:"),
			titleStyle.Render(formatDuration(res.Duration)),
			mutedStyle.Render(fmt.Sprintf("(%s events/sec)", formatNumber(int64(res.Throughput())))))
	}
	fmt.Fprintln(c.w)
}

// Progress returns a progress callback and a func that finishes the bar. The
// bar is created on the first callback, once the group total is known, and
// finishes itself after total callbacks. A quiet console returns no-ops.
func (c *Console) Progress(description string) (pipeline.ProgressFunc, func()) {
	if c.quiet {
		return func(int, int) {}, func() {}
	}
	var (
		mu   sync.Mutex
		bar  *progressbar.ProgressBar
		seen int
	)
	progress := func(_, total int) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = ShowProgress(c.w, int64(total), description)
		}
		_ = bar.Add(1)
		seen++
		if seen == total {
			_ = bar.Finish()
		}
	}
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		if bar != nil && !bar.IsFinished() {
			_ = bar.Finish()
		}
	}
	return progress, finish
}

// ShowProgress creates a progress bar for processing.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
