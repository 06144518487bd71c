package model

import (
	"fmt"
	"time"
)

// CrawlTarget is a URL awaiting a fetch.
type CrawlTarget struct {
	// URL is the absolute, normalized URL.
	URL string `json:"url"`

	// Depth is the number of link hops from the start URL. The start URL
	// has depth 0.
	Depth int `json:"depth"`

	// Referrer is the page the URL was discovered on. Empty for the start URL.
	Referrer string `json:"referrer,omitempty"`
}

// FetchFailure records a URL whose fetch failed. Failures never abort a crawl.
type FetchFailure struct {
	URL string `json:"url"`

	// Depth is the depth of the failed target.
	Depth int `json:"depth"`

	// StatusCode is the HTTP status, or 0 for network errors.
	StatusCode int `json:"status_code,omitempty"`

	// Reason is a human-readable description of the failure.
	Reason string `json:"reason"`
}

// String implements fmt.Stringer.
func (f FetchFailure) String() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d)", f.URL, f.StatusCode)
	}
	return fmt.Sprintf("%s (%s)", f.URL, f.Reason)
}

// CrawlStats holds the running counters of a crawl. The engine mutates it
// after each fetch and finalizes it once the loop ends.
type CrawlStats struct {
	// StartURL is the URL the crawl started from.
	StartURL string `json:"start_url"`

	// StartTime is when the crawl began.
	StartTime time.Time `json:"start_time"`

	// Duration is the wall-clock time of the crawl. Set by Finish.
	Duration time.Duration `json:"duration"`

	// MaxDepth and MaxPages are the limits the crawl ran with.
	MaxDepth int `json:"max_depth"`
	MaxPages int `json:"max_pages"`

	// PagesFetched counts successful fetches. It never exceeds MaxPages.
	PagesFetched int `json:"pages_fetched"`

	// UniqueLinks is the number of links in the result.
	UniqueLinks int `json:"unique_links"`

	// Failures counts fetches that failed with a network error or a
	// non-2xx status.
	Failures int `json:"failures"`

	// RobotsSkipped counts URLs excluded by robots.txt.
	RobotsSkipped int `json:"robots_skipped"`

	// DepthDiscarded counts links that were recorded but not followed
	// because they lie beyond MaxDepth.
	DepthDiscarded int `json:"depth_discarded"`
}

// Finish sets the duration relative to end.
func (s *CrawlStats) Finish(end time.Time) {
	s.Duration = end.Sub(s.StartTime)
}

// CrawlResult is the outcome of one crawl. It is produced once by the
// engine and not modified afterwards.
type CrawlResult struct {
	// Links are the discovered URLs in discovery order, starting with the
	// start URL. Robots-disallowed URLs are never included.
	Links []string `json:"links"`

	// Stats are the final crawl statistics.
	Stats CrawlStats `json:"stats"`

	// Failures lists every failed fetch.
	Failures []FetchFailure `json:"failures,omitempty"`

	// Disallowed lists URLs excluded by robots.txt.
	Disallowed []string `json:"disallowed,omitempty"`

	// Interrupted reports whether the crawl was cancelled before it
	// finished on its own.
	Interrupted bool `json:"interrupted,omitempty"`
}
