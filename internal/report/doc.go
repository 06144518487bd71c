// Package report writes crawl results.
//
// Three formats are available:
//   - TextWriter: one URL per line followed by a "# " prefixed summary
//   - JSONWriter: the full result with version metadata
//   - MarkdownWriter: tables and lists for sharing
//
// WriteFile picks the writer by format name and writes the result to disk
// with restrictive permissions. WriteSummary prints the CRAWLING SUMMARY
// block shown at the end of every run.
package report
