// Package database stores the history of finished crawls in SQLite.
//
// Every crawl that completes (or is interrupted) is saved as one run:
//   - crawl_runs holds the statistics and the full result as JSON
//   - links holds the discovered URLs of each run in discovery order
//
// The links table lets the history command diff two runs of the same host
// in SQL. The database is a single file under the XDG data directory and
// uses modernc.org/sqlite, a CGO-free driver.
package database
