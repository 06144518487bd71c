package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/crawlingchimp/crawlingchimp/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "crawlingchimp.db"

// storedTimeLayout is fixed-width so that started_at sorts as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrRunNotFound is returned when a crawl run ID does not exist.
var ErrRunNotFound = errors.New("crawl run not found")

// CrawlDB stores finished crawl runs.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl invocation
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_url TEXT NOT NULL,
		host TEXT NOT NULL,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		max_depth INTEGER NOT NULL,
		max_pages INTEGER NOT NULL,
		pages_fetched INTEGER NOT NULL,
		unique_links INTEGER NOT NULL,
		failures INTEGER NOT NULL,
		robots_skipped INTEGER NOT NULL,
		interrupted INTEGER NOT NULL DEFAULT 0,
		result_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_host ON crawl_runs(host);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);

	-- Discovered links per run, in discovery order
	CREATE TABLE IF NOT EXISTS links (
		run_id INTEGER NOT NULL REFERENCES crawl_runs(id),
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		PRIMARY KEY (run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_links_url ON links(url);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// CrawlRunMetadata summarizes a stored run without loading its result.
type CrawlRunMetadata struct {
	ID            int64
	StartURL      string
	Host          string
	StartedAt     time.Time
	Duration      time.Duration
	MaxDepth      int
	PagesFetched  int
	UniqueLinks   int
	Failures      int
	RobotsSkipped int
	Interrupted   bool
}

// SaveCrawl stores result as a new run and returns its ID.
func (cdb *CrawlDB) SaveCrawl(ctx context.Context, result *model.CrawlResult) (int64, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize result: %w", err)
	}

	stats := result.Stats
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (start_url, host, started_at, duration_ms, max_depth, max_pages,
		pages_fetched, unique_links, failures, robots_skipped, interrupted, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		stats.StartURL,
		hostOf(stats.StartURL),
		stats.StartTime.UTC().Format(storedTimeLayout),
		stats.Duration.Milliseconds(),
		stats.MaxDepth,
		stats.MaxPages,
		stats.PagesFetched,
		stats.UniqueLinks,
		stats.Failures,
		stats.RobotsSkipped,
		result.Interrupted,
		string(resultJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert crawl run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run ID: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO links (run_id, position, url) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare link insert: %w", err)
	}
	defer stmt.Close()

	for i, link := range result.Links {
		if _, err := stmt.ExecContext(ctx, id, i, link); err != nil {
			return 0, fmt.Errorf("failed to insert link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit crawl run: %w", err)
	}
	return id, nil
}

// GetCrawl loads the full result of a run.
func (cdb *CrawlDB) GetCrawl(ctx context.Context, id int64) (*model.CrawlResult, error) {
	var resultJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT result_json FROM crawl_runs WHERE id = ?`, id).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}

	var result model.CrawlResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse crawl result: %w", err)
	}
	return &result, nil
}

// GetRun loads the metadata of a run.
func (cdb *CrawlDB) GetRun(ctx context.Context, id int64) (*CrawlRunMetadata, error) {
	rows, err := cdb.db.QueryContext(ctx, selectRuns+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return &runs[0], nil
}

// ListCrawls returns the most recent runs first. An empty host lists every
// host; limit <= 0 returns all runs.
func (cdb *CrawlDB) ListCrawls(ctx context.Context, host string, limit int) ([]CrawlRunMetadata, error) {
	query := selectRuns + ` WHERE 1=1`
	args := make([]any, 0, 2)

	if host != "" {
		query += " AND host = ?"
		args = append(args, strings.ToLower(host))
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl runs: %w", err)
	}
	return scanRuns(rows)
}

// ListHosts returns every crawled host in alphabetical order.
func (cdb *CrawlDB) ListHosts(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT host FROM crawl_runs ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

// PreviousRun returns the run of the same host that precedes id.
func (cdb *CrawlDB) PreviousRun(ctx context.Context, id int64) (*CrawlRunMetadata, error) {
	current, err := cdb.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := cdb.db.QueryContext(ctx, selectRuns+`
	WHERE host = ? AND (started_at < ? OR (started_at = ? AND id < ?))
	ORDER BY started_at DESC, id DESC
	LIMIT 1
	`,
		current.Host,
		current.StartedAt.UTC().Format(storedTimeLayout),
		current.StartedAt.UTC().Format(storedTimeLayout),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get previous run: %w", err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no run of %s before %d", ErrRunNotFound, current.Host, id)
	}
	return &runs[0], nil
}

// RunDiff lists the links that differ between two runs.
type RunDiff struct {
	BaseID   int64 `json:"base_id"`
	TargetID int64 `json:"target_id"`

	// Added are links in the target run that the base run did not find.
	Added []string `json:"added"`

	// Removed are links of the base run missing from the target run.
	Removed []string `json:"removed"`

	// Unchanged counts links found by both runs.
	Unchanged int `json:"unchanged"`
}

// CompareRuns diffs the links of baseID and targetID. Added and Removed
// keep the discovery order of their run.
func (cdb *CrawlDB) CompareRuns(ctx context.Context, baseID, targetID int64) (*RunDiff, error) {
	for _, id := range []int64{baseID, targetID} {
		if _, err := cdb.GetRun(ctx, id); err != nil {
			return nil, err
		}
	}

	diff := &RunDiff{BaseID: baseID, TargetID: targetID, Added: []string{}, Removed: []string{}}

	var err error
	if diff.Added, err = cdb.linksMissing(ctx, targetID, baseID); err != nil {
		return nil, err
	}
	if diff.Removed, err = cdb.linksMissing(ctx, baseID, targetID); err != nil {
		return nil, err
	}

	err = cdb.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM links a JOIN links b ON a.url = b.url
	WHERE a.run_id = ? AND b.run_id = ?
	`, baseID, targetID).Scan(&diff.Unchanged)
	if err != nil {
		return nil, fmt.Errorf("failed to count unchanged links: %w", err)
	}
	return diff, nil
}

// linksMissing returns the links of run `from` that run `other` lacks.
func (cdb *CrawlDB) linksMissing(ctx context.Context, from, other int64) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url FROM links
	WHERE run_id = ? AND url NOT IN (SELECT url FROM links WHERE run_id = ?)
	ORDER BY position
	`, from, other)
	if err != nil {
		return nil, fmt.Errorf("failed to diff links: %w", err)
	}
	defer rows.Close()

	links := []string{}
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// DeleteRun removes a run and its links.
func (cdb *CrawlDB) DeleteRun(ctx context.Context, id int64) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete links: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM crawl_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete crawl run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete crawl run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return tx.Commit()
}

const selectRuns = `
	SELECT id, start_url, host, started_at, duration_ms, max_depth, pages_fetched,
		unique_links, failures, robots_skipped, interrupted
	FROM crawl_runs`

func scanRuns(rows *sql.Rows) ([]CrawlRunMetadata, error) {
	defer rows.Close()

	var runs []CrawlRunMetadata
	for rows.Next() {
		var run CrawlRunMetadata
		var startedAt string
		var durationMS int64

		err := rows.Scan(
			&run.ID,
			&run.StartURL,
			&run.Host,
			&startedAt,
			&durationMS,
			&run.MaxDepth,
			&run.PagesFetched,
			&run.UniqueLinks,
			&run.Failures,
			&run.RobotsSkipped,
			&run.Interrupted,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl run: %w", err)
		}
		run.StartedAt = parseTimestamp(startedAt)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// hostOf returns the lower-cased host of rawURL, or rawURL itself when it
// cannot be parsed.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Host)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
