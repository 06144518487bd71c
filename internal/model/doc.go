// Package model defines the data structures shared by the crawler, the
// authenticator and the report writers.
//
// The main types are:
//   - CrawlTarget: a URL waiting in the frontier together with its depth
//   - CrawlStats: counters maintained while a crawl runs
//   - CrawlResult: the discovered links and final statistics of one crawl
//   - Form: an HTML form as seen by the login form locator
//
// The types are serializable to JSON for report output and the crawl history.
package model
