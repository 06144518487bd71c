package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/crawlingchimp/crawlingchimp/internal/model"
)

// MarkdownWriter outputs results in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write implements Writer.
func (w *MarkdownWriter) Write(result *model.CrawlResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, result)
	w.writeOutcome(md, result)
	w.writeLinks(md, result)
	w.writeFailures(md, result)
	w.writeDisallowed(md, result)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the title and the statistics table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result *model.CrawlResult) {
	stats := result.Stats

	md.H1("Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + stats.StartURL + "`"},
			{"Started", stats.StartTime.Format(timeLayout)},
			{"Duration", formatDuration(stats.Duration)},
			{"Pages Crawled", strconv.Itoa(stats.PagesFetched)},
			{"Unique Links", strconv.Itoa(stats.UniqueLinks)},
			{"Max Depth", strconv.Itoa(stats.MaxDepth)},
			{"Max Pages", strconv.Itoa(stats.MaxPages)},
			{"Failed Fetches", strconv.Itoa(stats.Failures)},
			{"Disallowed by robots.txt", strconv.Itoa(stats.RobotsSkipped)},
		},
	})
	md.PlainText("")
}

// writeOutcome writes the fetch outcome chart and a status alert.
func (w *MarkdownWriter) writeOutcome(md *markdown.Markdown, result *model.CrawlResult) {
	stats := result.Stats

	if stats.Failures > 0 || stats.RobotsSkipped > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Fetch Outcomes"),
			piechart.WithShowData(true),
		)
		if stats.PagesFetched > 0 {
			chart.LabelAndIntValue("Fetched", uint64(stats.PagesFetched))
		}
		if stats.Failures > 0 {
			chart.LabelAndIntValue("Failed", uint64(stats.Failures))
		}
		if stats.RobotsSkipped > 0 {
			chart.LabelAndIntValue("Disallowed", uint64(stats.RobotsSkipped))
		}

		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case result.Interrupted:
		md.Warningf("Crawl interrupted after %d page(s). Results are partial.", stats.PagesFetched)
	case stats.PagesFetched == 0:
		md.Cautionf("No page could be fetched from %s.", stats.StartURL)
	case stats.Failures > 0:
		md.Importantf("%d fetch(es) failed. See the Failures section.", stats.Failures)
	default:
		md.Tip("Crawl completed without errors.")
	}
	md.PlainText("")
}

// writeLinks writes the discovered links.
func (w *MarkdownWriter) writeLinks(md *markdown.Markdown, result *model.CrawlResult) {
	md.H2("Discovered Links")
	md.PlainText("")

	if len(result.Links) == 0 {
		md.PlainText("No links discovered.")
		md.PlainText("")
		return
	}

	items := make([]string, len(result.Links))
	for i, link := range result.Links {
		items[i] = "`" + link + "`"
	}
	md.BulletList(items...)
	md.PlainText("")
}

// writeFailures writes a table of failed fetches.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, result *model.CrawlResult) {
	if len(result.Failures) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	rows := make([][]string, len(result.Failures))
	for i, f := range result.Failures {
		status := "-"
		if f.StatusCode != 0 {
			status = strconv.Itoa(f.StatusCode)
		}
		rows[i] = []string{
			"`" + f.URL + "`",
			strconv.Itoa(f.Depth),
			status,
			truncateString(f.Reason, 80),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Depth", "Status", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeDisallowed lists URLs excluded by robots.txt.
func (w *MarkdownWriter) writeDisallowed(md *markdown.Markdown, result *model.CrawlResult) {
	if len(result.Disallowed) == 0 {
		return
	}

	md.H2("Disallowed by robots.txt")
	md.PlainText("")

	items := make([]string, len(result.Disallowed))
	for i, link := range result.Disallowed {
		items[i] = "`" + link + "`"
	}
	md.Details("Show "+strconv.Itoa(len(items))+" URL(s)", "- "+strings.Join(items, "\n- "))
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by crawlingchimp*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
