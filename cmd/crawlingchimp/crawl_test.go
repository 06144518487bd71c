package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/crawlingchimp/crawlingchimp/internal/auth"
	"github.com/crawlingchimp/crawlingchimp/internal/config"
	"github.com/crawlingchimp/crawlingchimp/internal/database"
	"github.com/crawlingchimp/crawlingchimp/internal/log"
	"github.com/crawlingchimp/crawlingchimp/internal/report"
)

// testSite serves a small site:
//
//	/        -> /a, /private, external link
//	/a       -> /b
//	/b       -> (no links)
//	/private -> disallowed by robots.txt
type testSite struct {
	*httptest.Server

	hits atomic.Int64

	mu      sync.Mutex
	headers []http.Header
}

func newTestSite(t *testing.T, wrap func(http.Handler) http.Handler) *testSite {
	t.Helper()

	site := &testSite{}
	page := func(links ...string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, "<html><body>")
			for _, link := range links {
				fmt.Fprintf(w, `<a href="%s">link</a>`, link)
			}
			fmt.Fprint(w, "</body></html>")
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/{$}", page("/a", "/private", "https://other.example/x"))
	mux.HandleFunc("/a", page("/b"))
	mux.HandleFunc("/b", page())
	mux.HandleFunc("/private", page())

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.hits.Add(1)
		site.mu.Lock()
		site.headers = append(site.headers, r.Header.Clone())
		site.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
	if wrap != nil {
		handler = wrap(handler)
	}

	site.Server = httptest.NewServer(handler)
	t.Cleanup(site.Close)
	return site
}

func (s *testSite) requestHeaders() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

// crawlArgs are the flags every test crawl runs with.
func crawlArgs(t *testing.T, startURL string, extra ...string) []string {
	t.Helper()

	args := []string{
		"-u", startURL,
		"--delay", "0s",
		"--history-dir", t.TempDir(),
		"--config", writeSiteFile(t, "sites: {}\n"),
	}
	return append(args, extra...)
}

func writeSiteFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sites.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCrawlCommand(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, nil)
	output := filepath.Join(t.TempDir(), "out", "links.txt")

	stdout, _, err := executeCmd(t, crawlArgs(t, site.URL, "-f", output, "--log-level", "ERROR")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("output file not written: %v", err)
	}
	content := string(data)

	wantLinks := []string{site.URL + "/", site.URL + "/a", site.URL + "/b"}
	gotLinks := strings.Split(strings.SplitN(content, "\n\n", 2)[0], "\n")
	if strings.Join(gotLinks, ",") != strings.Join(wantLinks, ",") {
		t.Errorf("expected links %v, got %v", wantLinks, gotLinks)
	}
	for _, unwanted := range []string{"/private", "other.example"} {
		if strings.Contains(content, unwanted) {
			t.Errorf("output should not contain %q:\n%s", unwanted, content)
		}
	}
	for _, want := range []string{"# Crawling results for " + site.URL + "/", "# Pages crawled: 3", "# Unique links found: 3"} {
		if !strings.Contains(content, want) {
			t.Errorf("expected output file to contain %q:\n%s", want, content)
		}
	}

	for _, want := range []string{"CRAWLING SUMMARY", "Pages crawled: 3", "Results saved to '" + output + "'"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected stdout to contain %q:\n%s", want, stdout)
		}
	}

	info, err := os.Stat(output)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}
}

func TestCrawlCommandHistory(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, nil)
	historyDir := t.TempDir()

	args := []string{
		"-u", site.URL, "--delay", "0s", "--log-level", "ERROR",
		"--config", writeSiteFile(t, "sites: {}\n"),
		"--history-dir", historyDir,
	}
	if _, _, err := executeCmd(t, args...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	db, err := database.Open(historyDir, database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	runs, err := db.ListCrawls(t.Context(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 stored run, got %d", len(runs))
	}
	if runs[0].UniqueLinks != 3 || runs[0].PagesFetched != 3 {
		t.Errorf("unexpected stored run: %+v", runs[0])
	}

	t.Run("no-history skips the database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		args := []string{
			"-u", site.URL, "--delay", "0s", "--log-level", "ERROR",
			"--config", writeSiteFile(t, "sites: {}\n"),
			"--history-dir", dir, "--no-history",
		}
		if _, _, err := executeCmd(t, args...); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, database.FileName)); !os.IsNotExist(err) {
			t.Errorf("expected no database file, stat error: %v", err)
		}
	})
}

func TestCrawlCommandFormats(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, nil)

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		output := filepath.Join(t.TempDir(), "links.json")
		if _, _, err := executeCmd(t, crawlArgs(t, site.URL, "-f", output, "--format", "json", "--log-level", "ERROR")...); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(output)
		if err != nil {
			t.Fatal(err)
		}
		var got report.JSONReport
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("invalid JSON output: %v\n%s", err, data)
		}
		if got.Result == nil || len(got.Result.Links) != 3 {
			t.Errorf("expected 3 links, got %+v", got.Result)
		}
	})

	t.Run("markdown", func(t *testing.T) {
		t.Parallel()

		output := filepath.Join(t.TempDir(), "links.md")
		if _, _, err := executeCmd(t, crawlArgs(t, site.URL, "-f", output, "--format", "markdown", "--log-level", "ERROR")...); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(output)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(data), "# ") || !strings.Contains(string(data), site.URL+"/a") {
			t.Errorf("unexpected markdown output:\n%s", data)
		}
	})
}

func TestCrawlCommandMaxPages(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, nil)

	stdout, _, err := executeCmd(t, crawlArgs(t, site.URL, "-p", "1", "--log-level", "ERROR")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "Pages crawled: 1\n") {
		t.Errorf("expected a single page:\n%s", stdout)
	}
}

func TestCrawlCommandHeaders(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, nil)
	u, err := url.Parse(site.URL)
	if err != nil {
		t.Fatal(err)
	}

	siteFile := writeSiteFile(t, fmt.Sprintf(`sites:
  %q:
    userAgent: "SiteAgent/1.0"
    cookie: "theme=dark"
    headers:
      X-Site: "yes"
      X-Team: "site"
    ignorePatterns:
      - "/b"
`, u.Host))

	args := []string{
		"-u", site.URL, "--delay", "0s", "--log-level", "ERROR",
		"--history-dir", t.TempDir(),
		"--config", siteFile,
		"--headers", `{"X-Team":"docs"}`,
	}
	stdout, _, err := executeCmd(t, args...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "Unique links found: 2") {
		t.Errorf("expected /b to be ignored:\n%s", stdout)
	}

	headers := site.requestHeaders()
	if len(headers) == 0 {
		t.Fatal("no requests recorded")
	}
	for _, h := range headers {
		if got := h.Get("X-Team"); got != "docs" {
			t.Errorf("expected command line header to win, got X-Team %q", got)
		}
		if got := h.Get("X-Site"); got != "yes" {
			t.Errorf("expected site header, got X-Site %q", got)
		}
		if got := h.Get("User-Agent"); got != "SiteAgent/1.0" {
			t.Errorf("expected site User-Agent, got %q", got)
		}
		if !strings.Contains(h.Get("Cookie"), "theme=dark") {
			t.Errorf("expected site cookie, got %q", h.Get("Cookie"))
		}
	}
}

func TestCrawlCommandBasicAuth(t *testing.T) {
	t.Parallel()

	requireAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "alice" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	site := newTestSite(t, requireAuth)

	t.Run("with credentials", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeCmd(t, crawlArgs(t, site.URL, "--username", "alice", "--password", "secret", "--log-level", "ERROR")...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Pages crawled: 3") {
			t.Errorf("expected an authenticated crawl:\n%s", stdout)
		}
	})

	t.Run("from credentials file", func(t *testing.T) {
		t.Parallel()

		credFile := filepath.Join(t.TempDir(), "credentials.json")
		if err := os.WriteFile(credFile, []byte(`{"username":"alice","password":"secret"}`), 0600); err != nil {
			t.Fatal(err)
		}

		stdout, _, err := executeCmd(t, crawlArgs(t, site.URL, "--cred-file", credFile, "--log-level", "ERROR")...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Pages crawled: 3") {
			t.Errorf("expected an authenticated crawl:\n%s", stdout)
		}
	})

	t.Run("without credentials", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeCmd(t, crawlArgs(t, site.URL, "--log-level", "ERROR")...)
		if err != nil {
			t.Fatalf("a failed start page is not fatal: %v", err)
		}
		if !strings.Contains(stdout, "Pages crawled: 0") || !strings.Contains(stdout, "Failed fetches: 1") {
			t.Errorf("expected the start page to fail:\n%s", stdout)
		}
	})
}

func TestCrawlCommandSession(t *testing.T) {
	t.Parallel()

	requireCookie := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/robots.txt" {
				if c, err := r.Cookie("sid"); err != nil || c.Value != "abc" {
					w.WriteHeader(http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
	site := newTestSite(t, requireCookie)

	dir := t.TempDir()
	credFile := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(credFile, []byte(`{"cookies":{"sid":"abc"}}`), 0600); err != nil {
		t.Fatal(err)
	}
	sessionFile := filepath.Join(dir, "session.json")

	stdout, _, err := executeCmd(t, crawlArgs(t, site.URL, "--cred-file", credFile, "--save-session", sessionFile, "--log-level", "ERROR")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "Pages crawled: 3") {
		t.Fatalf("expected the cookie to authenticate the crawl:\n%s", stdout)
	}

	session, err := auth.LoadSession(sessionFile, site.URL)
	if err != nil {
		t.Fatalf("session file not loadable: %v", err)
	}
	found := false
	for _, c := range session.Cookies() {
		if c.Name == "sid" && c.Value == "abc" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected sid cookie in saved session, got %v", session.Cookies())
	}

	stdout, _, err = executeCmd(t, crawlArgs(t, site.URL, "--load-session", sessionFile, "--log-level", "ERROR")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "Pages crawled: 3") {
		t.Errorf("expected the loaded session to authenticate the crawl:\n%s", stdout)
	}
}

func TestCrawlCommandFormLoginFailure(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, nil)
	output := filepath.Join(t.TempDir(), "links.txt")

	_, _, err := executeCmd(t, crawlArgs(t, site.URL,
		"--auth-mode", "form", "--username", "alice", "--password", "secret",
		"-f", output, "--log-level", "ERROR")...)
	if !errors.Is(err, auth.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("no output should be written when authentication fails")
	}
}

func TestCrawlCommandMalformedCredentials(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, nil)
	credFile := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(credFile, []byte(`{"username":`), 0600); err != nil {
		t.Fatal(err)
	}

	_, _, err := executeCmd(t, crawlArgs(t, site.URL, "--cred-file", credFile, "--log-level", "ERROR")...)
	if !errors.Is(err, auth.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if hits := site.hits.Load(); hits != 0 {
		t.Errorf("expected no requests before authentication, got %d", hits)
	}
}

func TestCrawlCommandConfigErrors(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, nil)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "missing url", args: []string{}, want: config.ErrNoURL},
		{name: "relative url", args: []string{"-u", "/docs"}, want: config.ErrInvalidURL},
		{name: "slow with delay", args: []string{"-u", site.URL, "-s", "--delay", "2s"}, want: config.ErrConflictingDelay},
		{name: "negative depth", args: []string{"-u", site.URL, "--max-depth=-1"}, want: config.ErrInvalidMaxDepth},
		{name: "zero pages", args: []string{"-u", site.URL, "-p", "0"}, want: config.ErrInvalidMaxPages},
		{name: "bad headers", args: []string{"-u", site.URL, "--headers", "not json"}, want: config.ErrInvalidHeaders},
		{name: "bad format", args: []string{"-u", site.URL, "--format", "xml"}, want: config.ErrInvalidFormat},
		{name: "bad auth mode", args: []string{"-u", site.URL, "--auth-mode", "oauth"}, want: config.ErrInvalidAuthMode},
		{name: "password alone", args: []string{"-u", site.URL, "--password", "pw"}, want: config.ErrPasswordWithoutUsername},
		{name: "bad log level", args: []string{"-u", site.URL, "--log-level", "LOUD"}, want: log.ErrUnknownLevel},
		{name: "missing site file", args: []string{"-u", site.URL, "--config", filepath.Join(t.TempDir(), "none.yaml")}, want: config.ErrConfigNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := executeCmd(t, append(tt.args, "--no-history")...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Cleanup(func() {
		if hits := site.hits.Load(); hits != 0 {
			t.Errorf("configuration errors must not reach the network, got %d requests", hits)
		}
	})
}

// TestCreateCredTemplate changes the working directory and cannot run in
// parallel.
func TestCreateCredTemplate(t *testing.T) {
	site := newTestSite(t, nil)
	dir := t.TempDir()
	t.Chdir(dir)

	for _, args := range [][]string{
		{"--create-cred-template"},
		{"--create-cred-template", "-u", site.URL},
	} {
		stdout, _, err := executeCmd(t, args...)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", args, err)
		}
		if !strings.Contains(stdout, config.DefaultCredentialTemplate) {
			t.Errorf("%v: expected output to name the template, got:\n%s", args, stdout)
		}
	}

	creds, err := auth.LoadCredentials(filepath.Join(dir, config.DefaultCredentialTemplate))
	if err != nil {
		t.Fatalf("template not loadable: %v", err)
	}
	if creds.Username == "" || creds.Password == "" {
		t.Errorf("expected sample username and password, got %+v", creds)
	}
	if hits := site.hits.Load(); hits != 0 {
		t.Errorf("expected no network activity, got %d requests", hits)
	}
	if _, err := os.Stat(filepath.Join(dir, database.FileName)); !os.IsNotExist(err) {
		t.Error("template creation must not touch the history database")
	}
}

func TestSiteConfigFor(t *testing.T) {
	t.Parallel()

	cf := &config.File{
		Defaults: config.SiteConfig{Depth: 1},
		Sites: map[string]config.SiteConfig{
			"example.com":      {Depth: 2},
			"example.com:8080": {Depth: 3},
		},
	}

	tests := []struct {
		name string
		url  string
		want int
	}{
		{name: "bare host", url: "https://example.com/docs", want: 2},
		{name: "host with port", url: "http://example.com:8080/", want: 3},
		{name: "other port falls back to host", url: "http://EXAMPLE.com:9090/", want: 2},
		{name: "unknown host uses defaults", url: "https://other.example/", want: 1},
		{name: "invalid url uses defaults", url: "::", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := siteConfigFor(cf, tt.url).Depth; got != tt.want {
				t.Errorf("expected depth %d, got %d", tt.want, got)
			}
		})
	}

	if got := siteConfigFor(nil, "https://example.com/"); got.Depth != 0 {
		t.Errorf("nil file should give empty settings, got %+v", got)
	}
}

func TestBuildConfigSiteDepth(t *testing.T) {
	t.Parallel()

	siteFile := writeSiteFile(t, `sites:
  example.com:
    depth: 7
`)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "site file fills default", args: []string{"-u", "https://example.com/", "--config", siteFile}, want: 7},
		{name: "flag wins", args: []string{"-u", "https://example.com/", "--config", siteFile, "-d", "1"}, want: 1},
		{name: "other host keeps default", args: []string{"-u", "https://other.example/", "--config", siteFile}, want: config.DefaultMaxDepth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatal(err)
			}
			cfg, err := buildConfig(cmd)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.MaxDepth != tt.want {
				t.Errorf("expected max depth %d, got %d", tt.want, cfg.MaxDepth)
			}
		})
	}
}

func TestMergeHeaders(t *testing.T) {
	t.Parallel()

	if got := mergeHeaders(nil, nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}

	base := map[string]string{"A": "site", "B": "site"}
	got := mergeHeaders(base, map[string]string{"B": "cli"})
	if got["A"] != "site" || got["B"] != "cli" {
		t.Errorf("unexpected merge result: %v", got)
	}
	if base["B"] != "site" {
		t.Error("merge must not modify its input")
	}
}
