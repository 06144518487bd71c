// Package crawler implements the bounded breadth-first traversal of a site.
//
// # Components
//
//   - Engine: owns the frontier, the visited set and the counters, and
//     drives the fetcher, robots checker and link extractor
//   - ExtractLinks: HTML link extraction on top of golang.org/x/net/html
//   - frontier: FIFO queue of CrawlTargets, which yields breadth-first order
//   - visitedSet: URLs already fetched or enqueued, keyed by their normalized form
//
// # Traversal
//
// The engine fetches one page at a time. Only links on the start URL's host
// are followed. A link is recorded in the result as soon as it is discovered,
// but it is only enqueued when its depth does not exceed the max depth, so a
// crawl with max depth 0 fetches exactly the start page and reports the links
// found on it. Fetch failures are recorded and the traversal continues.
// Robots-disallowed URLs never appear in the result and do not count toward
// the page limit.
//
// Requests are spaced by a golang.org/x/time/rate limiter whose interval is
// the configured delay.
//
// # Usage
//
//	engine := crawler.NewEngine(httpFetcher,
//	    crawler.WithMaxDepth(3),
//	    crawler.WithMaxPages(100),
//	    crawler.WithDelay(100*time.Millisecond),
//	    crawler.WithRobots(checker),
//	)
//	result, err := engine.Crawl(ctx, "https://example.com")
package crawler
