package progress

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crawlingchimp/crawlingchimp/internal/crawler"
)

// TestMessage tests the spinner suffix.
func TestMessage(t *testing.T) {
	t.Parallel()

	got := Message(crawler.Progress{
		Current:      "https://example.com/docs",
		Depth:        2,
		PagesFetched: 4,
		MaxPages:     100,
		Queued:       7,
	})
	want := " [5/100] depth 2 https://example.com/docs (7 queued)"
	if got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}

// TestShortenURL tests URL truncation.
func TestShortenURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "short url unchanged", in: "https://example.com/a", want: "https://example.com/a"},
		{name: "long path keeps tail", in: "https://example.com/articles/2025/03/14/a-very-long-slug", want: "example.com...025/03/14/a-very-long-slug"},
		{name: "not a url", in: strings.Repeat("x", 50), want: "..." + strings.Repeat("x", 37)},
		{name: "long host", in: "https://" + strings.Repeat("h", 45) + ".example/x", want: strings.Repeat("h", 45) + ".example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := shortenURL(tt.in, maxURLLen)
			if got != tt.want {
				t.Errorf("shortenURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if len(got) > maxURLLen && !strings.HasSuffix(tt.name, "host") {
				t.Errorf("result longer than %d: %q", maxURLLen, got)
			}
		})
	}
}

// TestIndicatorNonTerminal tests that updates to a regular file are safe.
func TestIndicatorNonTerminal(t *testing.T) {
	t.Parallel()

	f, err := os.Create(filepath.Join(t.TempDir(), "progress.log"))
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()

	ind := New(f)
	ind.Update(crawler.Progress{Current: "https://example.com/", MaxPages: 10})
	ind.Update(crawler.Progress{Current: "https://example.com/a", PagesFetched: 1, MaxPages: 10})
	ind.Stop()
	ind.Stop()
}

// TestIndicatorWrite tests that log output passes through unchanged when
// the output is not a terminal.
func TestIndicatorWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()

	ind := New(f)
	ind.Update(crawler.Progress{Current: "https://example.com/", MaxPages: 10})
	line := "level=INFO msg=crawling url=https://example.com/\n"
	n, err := ind.Write([]byte(line))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(line) {
		t.Errorf("expected %d bytes written, got %d", len(line), n)
	}
	ind.Stop()

	data, err := os.ReadFile(path) //nolint:gosec // test file
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != line {
		t.Errorf("unexpected output %q", data)
	}
}
