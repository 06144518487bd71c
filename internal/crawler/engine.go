package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/crawlingchimp/crawlingchimp/internal/fetcher"
	"github.com/crawlingchimp/crawlingchimp/internal/model"
)

// progressLogInterval is how often, in fetched pages, progress is logged.
const progressLogInterval = 10

// Default limits used when no option overrides them.
const (
	DefaultMaxDepth = 3
	DefaultMaxPages = 100
)

// Fetcher retrieves a page. *fetcher.HTTPFetcher implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetcher.Response, error)
}

// RobotsChecker answers whether a URL may be fetched. *robots.Checker
// implements it.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, u *url.URL) bool
}

// LinkExtractor returns the absolute links of an HTML document.
type LinkExtractor interface {
	ExtractLinks(body []byte, baseURL string) ([]string, error)
}

// LinkExtractorFunc adapts a function to LinkExtractor.
type LinkExtractorFunc func(body []byte, baseURL string) ([]string, error)

// ExtractLinks implements LinkExtractor.
func (f LinkExtractorFunc) ExtractLinks(body []byte, baseURL string) ([]string, error) {
	return f(body, baseURL)
}

// Progress is a snapshot of a running crawl, reported before each fetch.
type Progress struct {
	Current      string
	Depth        int
	PagesFetched int
	MaxPages     int
	Queued       int
}

// Engine performs bounded breadth-first crawls.
type Engine struct {
	fetcher   Fetcher
	robots    RobotsChecker
	extractor LinkExtractor
	logger    *slog.Logger

	// maxDepth is the maximum depth of a fetched page.
	// 0 = only the start page, 1 = start page plus linked pages, etc.
	maxDepth int

	// maxPages caps the number of successful fetches.
	maxPages int

	// delay is the minimum spacing between two fetches.
	delay time.Duration

	ignorePatterns []string
	followPatterns []string

	onProgress func(Progress)
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth sets the maximum crawl depth.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

// WithMaxPages sets the maximum number of pages to fetch.
func WithMaxPages(maxPages int) Option {
	return func(e *Engine) {
		e.maxPages = maxPages
	}
}

// WithDelay sets the minimum delay between requests.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.delay = d
	}
}

// WithRobots sets the robots.txt checker. Without one every URL is allowed.
func WithRobots(r RobotsChecker) Option {
	return func(e *Engine) {
		e.robots = r
	}
}

// WithExtractor replaces the HTML link extractor.
func WithExtractor(x LinkExtractor) Option {
	return func(e *Engine) {
		e.extractor = x
	}
}

// WithLogger sets the logger of the crawl.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIgnorePatterns sets URL path globs that are never followed.
func WithIgnorePatterns(patterns []string) Option {
	return func(e *Engine) {
		e.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts following to URL paths matching at least one
// glob. An empty slice allows every path.
func WithFollowPatterns(patterns []string) Option {
	return func(e *Engine) {
		e.followPatterns = patterns
	}
}

// WithProgress registers a callback invoked before every fetch.
func WithProgress(fn func(Progress)) Option {
	return func(e *Engine) {
		e.onProgress = fn
	}
}

// NewEngine creates an Engine that fetches through f.
func NewEngine(f Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher:   f,
		extractor: LinkExtractorFunc(ExtractLinks),
		maxDepth:  DefaultMaxDepth,
		maxPages:  DefaultMaxPages,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// crawlState is the per-call state of Crawl.
type crawlState struct {
	scope      scope
	frontier   frontier
	visited    *visitedSet
	disallowed map[string]struct{}

	// fetched holds the keys of fetched URLs and of the URLs their
	// redirects ended at.
	fetched map[string]struct{}
	result     *model.CrawlResult
}

// Crawl traverses the site starting at startURL and returns the discovered
// links with the crawl statistics. An invalid start URL is reported before
// any request is made. Cancelling ctx stops the traversal and returns the
// partial result with Interrupted set.
func (e *Engine) Crawl(ctx context.Context, startURL string) (*model.CrawlResult, error) {
	start, err := cleanURL(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}
	startU, err := url.Parse(start)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}

	st := &crawlState{
		scope: scope{
			host:           startU.Host,
			ignorePatterns: e.ignorePatterns,
			followPatterns: e.followPatterns,
		},
		visited:    newVisitedSet(),
		disallowed: make(map[string]struct{}),
		fetched:    make(map[string]struct{}),
		result: &model.CrawlResult{
			Stats: model.CrawlStats{
				StartURL:  start,
				StartTime: time.Now(),
				MaxDepth:  e.maxDepth,
				MaxPages:  e.maxPages,
			},
		},
	}
	st.visited.add(visitKey(start), start)
	st.frontier.push(model.CrawlTarget{URL: start, Depth: 0})

	limiter := rate.NewLimiter(rate.Inf, 1)
	if e.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(e.delay), 1)
	}

	e.logger.Info("starting crawl", "url", start, "max_depth", e.maxDepth, "max_pages", e.maxPages, "delay", e.delay)

	stats := &st.result.Stats
	for st.frontier.len() > 0 && stats.PagesFetched < e.maxPages {
		if ctx.Err() != nil {
			st.result.Interrupted = true
			break
		}

		target, _ := st.frontier.pop()
		if target.Depth > e.maxDepth {
			stats.DepthDiscarded++
			continue
		}

		key := visitKey(target.URL)
		if _, done := st.fetched[key]; done {
			e.logger.Debug("already fetched through a redirect", "url", target.URL)
			continue
		}

		targetURL, err := url.Parse(target.URL)
		if err != nil {
			continue
		}
		if !e.allowed(ctx, st, targetURL) {
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			st.result.Interrupted = true
			break
		}

		if e.onProgress != nil {
			e.onProgress(Progress{
				Current:      target.URL,
				Depth:        target.Depth,
				PagesFetched: stats.PagesFetched,
				MaxPages:     e.maxPages,
				Queued:       st.frontier.len(),
			})
		}

		e.logger.Info("crawling", "url", target.URL, "depth", target.Depth)
		resp, err := e.fetcher.Get(ctx, target.URL)
		if err != nil {
			if ctx.Err() != nil {
				st.result.Interrupted = true
				break
			}
			e.recordFailure(st, target, err)
			continue
		}

		st.fetched[key] = struct{}{}
		if !e.markRedirect(st, key, resp.FinalURL) {
			e.logger.Debug("redirected to an already fetched page", "url", target.URL, "final_url", resp.FinalURL)
			continue
		}

		stats.PagesFetched++
		if stats.PagesFetched%progressLogInterval == 0 {
			e.logger.Info("crawl progress",
				"pages", stats.PagesFetched,
				"max_pages", e.maxPages,
				"links", st.visited.len(),
				"queued", st.frontier.len(),
			)
		}

		if !resp.IsHTML() {
			e.logger.Debug("skipping non-HTML content", "url", target.URL, "content_type", resp.ContentType)
			continue
		}

		base := resp.FinalURL
		if base == "" {
			base = target.URL
		}
		links, err := e.extractor.ExtractLinks(resp.Body, base)
		if err != nil {
			e.logger.Warn("failed to extract links", "url", target.URL, "error", err)
			continue
		}

		e.enqueueLinks(ctx, st, target, links)
	}

	st.result.Links = st.visited.list(st.disallowed)
	stats.UniqueLinks = len(st.result.Links)
	stats.Finish(time.Now())

	if st.result.Interrupted {
		e.logger.Warn("crawl interrupted", "pages", stats.PagesFetched, "links", stats.UniqueLinks)
	}
	e.logger.Info("crawl finished",
		"pages", stats.PagesFetched,
		"links", stats.UniqueLinks,
		"failures", stats.Failures,
		"robots_skipped", stats.RobotsSkipped,
		"duration", stats.Duration,
	)

	return st.result, nil
}

// enqueueLinks records every new in-scope link and queues those within the
// depth limit.
func (e *Engine) enqueueLinks(ctx context.Context, st *crawlState, target model.CrawlTarget, links []string) {
	nextDepth := target.Depth + 1

	for _, link := range links {
		cleaned, err := cleanURL(link)
		if err != nil {
			continue
		}
		key := visitKey(cleaned)
		if st.visited.contains(key) {
			continue
		}
		if _, ok := st.disallowed[key]; ok {
			continue
		}

		u, err := url.Parse(cleaned)
		if err != nil || !st.scope.allows(u) {
			continue
		}
		if !e.allowed(ctx, st, u) {
			continue
		}

		st.visited.add(key, cleaned)
		if nextDepth > e.maxDepth {
			st.result.Stats.DepthDiscarded++
			continue
		}
		st.frontier.push(model.CrawlTarget{URL: cleaned, Depth: nextDepth, Referrer: target.URL})
	}
}

// allowed consults robots.txt and records u when it is disallowed.
func (e *Engine) allowed(ctx context.Context, st *crawlState, u *url.URL) bool {
	if e.robots == nil || e.robots.IsAllowed(ctx, u) {
		return true
	}

	raw := u.String()
	key := visitKey(raw)
	if _, seen := st.disallowed[key]; !seen {
		st.disallowed[key] = struct{}{}
		st.result.Disallowed = append(st.result.Disallowed, raw)
		st.result.Stats.RobotsSkipped++
		e.logger.Info("disallowed by robots.txt", "url", raw)
	}
	return false
}

// markRedirect records the URL a fetch of key ended at. It reports false
// when that URL had already been fetched, in which case the response is a
// duplicate.
func (e *Engine) markRedirect(st *crawlState, key, finalURL string) bool {
	if finalURL == "" {
		return true
	}
	cleaned, err := cleanURL(finalURL)
	if err != nil {
		return true
	}
	finalKey := visitKey(cleaned)
	if finalKey == key {
		return true
	}
	if _, done := st.fetched[finalKey]; done {
		return false
	}
	st.fetched[finalKey] = struct{}{}

	if u, err := url.Parse(cleaned); err == nil && st.scope.allows(u) {
		if _, ok := st.disallowed[finalKey]; !ok {
			st.visited.add(finalKey, cleaned)
		}
	}
	return true
}

func (e *Engine) recordFailure(st *crawlState, target model.CrawlTarget, err error) {
	failure := model.FetchFailure{
		URL:        target.URL,
		Depth:      target.Depth,
		StatusCode: fetcher.StatusCode(err),
		Reason:     err.Error(),
	}
	st.result.Failures = append(st.result.Failures, failure)
	st.result.Stats.Failures++

	if fetcher.IsNetworkError(err) {
		e.logger.Warn("network error", "url", target.URL, "error", err)
		return
	}
	e.logger.Warn("fetch failed", "url", target.URL, "status", failure.StatusCode)
}
