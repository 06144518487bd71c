package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crawlingchimp/crawlingchimp/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newResult(startURL string, started time.Time, links ...string) *model.CrawlResult {
	return &model.CrawlResult{
		Links: links,
		Stats: model.CrawlStats{
			StartURL:     startURL,
			StartTime:    started,
			Duration:     2500 * time.Millisecond,
			MaxDepth:     3,
			MaxPages:     100,
			PagesFetched: len(links),
			UniqueLinks:  len(links),
		},
	}
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Fatal("expected error for missing database")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		id, err := db.SaveCrawl(context.Background(), newResult("https://example.com/", time.Now(), "https://example.com/"))
		if err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		_ = db.Close()

		db, err = Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()

		if _, err := db.GetCrawl(context.Background(), id); err != nil {
			t.Errorf("expected run to survive reopen: %v", err)
		}
	})
}

// TestSaveAndGetCrawl tests storing and loading a run.
func TestSaveAndGetCrawl(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	started := time.Date(2025, 3, 14, 9, 26, 53, 123000000, time.UTC)
	result := newResult("https://Example.com/", started,
		"https://example.com/", "https://example.com/a", "https://example.com/b")
	result.Failures = []model.FetchFailure{{URL: "https://example.com/b", Depth: 1, StatusCode: 404, Reason: "HTTP 404"}}
	result.Stats.Failures = 1
	result.Disallowed = []string{"https://example.com/private"}
	result.Interrupted = true

	id, err := db.SaveCrawl(ctx, result)
	if err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	got, err := db.GetCrawl(ctx, id)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if strings.Join(got.Links, ",") != strings.Join(result.Links, ",") {
		t.Errorf("links = %v, want %v", got.Links, result.Links)
	}
	if len(got.Failures) != 1 || got.Failures[0].StatusCode != 404 {
		t.Errorf("unexpected failures %v", got.Failures)
	}
	if !got.Interrupted || len(got.Disallowed) != 1 {
		t.Errorf("unexpected result %+v", got)
	}
	if !got.Stats.StartTime.Equal(started) {
		t.Errorf("start time = %v, want %v", got.Stats.StartTime, started)
	}

	run, err := db.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Host != "example.com" {
		t.Errorf("host = %q, want example.com", run.Host)
	}
	if !run.StartedAt.Equal(started) {
		t.Errorf("started at = %v, want %v", run.StartedAt, started)
	}
	if run.Duration != 2500*time.Millisecond || run.PagesFetched != 3 || run.Failures != 1 || !run.Interrupted {
		t.Errorf("unexpected metadata %+v", run)
	}
}

// TestGetCrawlNotFound tests missing run IDs.
func TestGetCrawlNotFound(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetCrawl(ctx, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetCrawl: expected ErrRunNotFound, got %v", err)
	}
	if _, err := db.GetRun(ctx, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun: expected ErrRunNotFound, got %v", err)
	}
	if err := db.DeleteRun(ctx, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("DeleteRun: expected ErrRunNotFound, got %v", err)
	}
}

// TestListCrawls tests listing with host filter and limit.
func TestListCrawls(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []int64
	for i, start := range []string{"https://a.example/", "https://b.example/", "https://a.example/docs"} {
		id, err := db.SaveCrawl(ctx, newResult(start, base.Add(time.Duration(i)*time.Hour), start))
		if err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		ids = append(ids, id)
	}

	all, err := db.ListCrawls(ctx, "", 0)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(all) != 3 || all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Errorf("expected newest first, got %+v", all)
	}

	filtered, err := db.ListCrawls(ctx, "A.example", 0)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("expected 2 runs for a.example, got %d", len(filtered))
	}

	limited, err := db.ListCrawls(ctx, "", 1)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != ids[2] {
		t.Errorf("expected the newest run only, got %+v", limited)
	}

	hosts, err := db.ListHosts(ctx)
	if err != nil {
		t.Fatalf("failed to list hosts: %v", err)
	}
	if strings.Join(hosts, ",") != "a.example,b.example" {
		t.Errorf("unexpected hosts %v", hosts)
	}
}

// TestPreviousRunAndCompare tests diffing two runs of the same host.
func TestPreviousRunAndCompare(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := db.SaveCrawl(ctx, newResult("https://example.com/", base,
		"https://example.com/", "https://example.com/old", "https://example.com/kept"))
	if err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if _, err := db.SaveCrawl(ctx, newResult("https://other.example/", base.Add(time.Minute), "https://other.example/")); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	second, err := db.SaveCrawl(ctx, newResult("https://example.com/", base.Add(time.Hour),
		"https://example.com/", "https://example.com/kept", "https://example.com/new2", "https://example.com/new1"))
	if err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	prev, err := db.PreviousRun(ctx, second)
	if err != nil {
		t.Fatalf("failed to get previous run: %v", err)
	}
	if prev.ID != first {
		t.Errorf("previous run = %d, want %d", prev.ID, first)
	}
	if _, err := db.PreviousRun(ctx, first); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound for the first run, got %v", err)
	}

	diff, err := db.CompareRuns(ctx, first, second)
	if err != nil {
		t.Fatalf("failed to compare: %v", err)
	}
	if strings.Join(diff.Added, ",") != "https://example.com/new2,https://example.com/new1" {
		t.Errorf("unexpected added %v", diff.Added)
	}
	if strings.Join(diff.Removed, ",") != "https://example.com/old" {
		t.Errorf("unexpected removed %v", diff.Removed)
	}
	if diff.Unchanged != 2 {
		t.Errorf("unchanged = %d, want 2", diff.Unchanged)
	}

	if _, err := db.CompareRuns(ctx, first, 999); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

// TestDeleteRun tests that deleting a run removes its links.
func TestDeleteRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	a, err := db.SaveCrawl(ctx, newResult("https://example.com/", time.Now(), "https://example.com/", "https://example.com/x"))
	if err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	b, err := db.SaveCrawl(ctx, newResult("https://example.com/", time.Now().Add(time.Second), "https://example.com/"))
	if err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	if err := db.DeleteRun(ctx, a); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, err := db.GetCrawl(ctx, a); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected deleted run to be gone, got %v", err)
	}

	var count int
	if err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links WHERE run_id = ?`, a).Scan(&count); err != nil {
		t.Fatalf("failed to count links: %v", err)
	}
	if count != 0 {
		t.Errorf("expected links to be deleted, got %d", count)
	}
	if _, err := db.GetCrawl(ctx, b); err != nil {
		t.Errorf("expected other run to remain: %v", err)
	}
}

// TestParseTimestamp tests the timestamp fallbacks.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2025-03-14T09:26:53.000000000Z", want: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)},
		{in: "2025-03-14T09:26:53Z", want: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)},
		{in: "2025-03-14 09:26:53", want: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)},
		{in: "garbage", want: time.Time{}},
	}
	for _, tt := range tests {
		if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
