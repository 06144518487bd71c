package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/crawlingchimp/crawlingchimp/internal/model"
)

// timeLayout formats timestamps in text output.
const timeLayout = "2006-01-02 15:04:05"

// summaryWidth is the width of the rule around the console summary.
const summaryWidth = 60

// TextWriter writes one discovered URL per line, a blank line, and a summary
// block whose lines start with "# ".
type TextWriter struct {
	baseWriter
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer) *TextWriter {
	return &TextWriter{baseWriter: newBaseWriter(output)}
}

// Write implements Writer.
func (w *TextWriter) Write(result *model.CrawlResult) (int, error) {
	var sb strings.Builder

	for _, link := range result.Links {
		sb.WriteString(link)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	stats := result.Stats
	fmt.Fprintf(&sb, "# Crawling results for %s\n", stats.StartURL)
	fmt.Fprintf(&sb, "# Started: %s\n", stats.StartTime.Format(timeLayout))
	fmt.Fprintf(&sb, "# Duration: %s\n", formatDuration(stats.Duration))
	fmt.Fprintf(&sb, "# Pages crawled: %d\n", stats.PagesFetched)
	fmt.Fprintf(&sb, "# Unique links found: %d\n", stats.UniqueLinks)
	fmt.Fprintf(&sb, "# Max depth: %d\n", stats.MaxDepth)
	if stats.Failures > 0 {
		fmt.Fprintf(&sb, "# Failed fetches: %d\n", stats.Failures)
	}
	if stats.RobotsSkipped > 0 {
		fmt.Fprintf(&sb, "# Disallowed by robots.txt: %d\n", stats.RobotsSkipped)
	}
	if result.Interrupted {
		sb.WriteString("# Interrupted: partial results\n")
	}

	return io.WriteString(w.output, sb.String())
}

// WriteSummary prints the console summary block.
func WriteSummary(output io.Writer, result *model.CrawlResult) error {
	var sb strings.Builder
	rule := strings.Repeat("=", summaryWidth)

	sb.WriteString("\n")
	sb.WriteString(rule + "\n")
	sb.WriteString("CRAWLING SUMMARY\n")
	sb.WriteString(rule + "\n")

	stats := result.Stats
	fmt.Fprintf(&sb, "Starting URL: %s\n", stats.StartURL)
	fmt.Fprintf(&sb, "Pages crawled: %d\n", stats.PagesFetched)
	fmt.Fprintf(&sb, "Unique links found: %d\n", stats.UniqueLinks)
	fmt.Fprintf(&sb, "Max depth: %d\n", stats.MaxDepth)
	fmt.Fprintf(&sb, "Duration: %s\n", formatDuration(stats.Duration))
	if stats.Failures > 0 {
		fmt.Fprintf(&sb, "Failed fetches: %d\n", stats.Failures)
	}
	if stats.RobotsSkipped > 0 {
		fmt.Fprintf(&sb, "Disallowed by robots.txt: %d\n", stats.RobotsSkipped)
	}
	if result.Interrupted {
		sb.WriteString("Status: interrupted (partial results)\n")
	}
	sb.WriteString(rule + "\n")

	_, err := io.WriteString(output, sb.String())
	return err
}

// formatDuration rounds d to milliseconds.
func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
