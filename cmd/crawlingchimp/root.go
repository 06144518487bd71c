package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crawlingchimp/crawlingchimp/internal/config"
	"github.com/crawlingchimp/crawlingchimp/internal/log"
)

// NewRootCmd creates the root command. Running it without a subcommand
// performs a crawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawlingchimp",
		Short: "Crawl a website and collect the links it contains",
		Long: `CrawlingChimp crawls a website breadth-first starting at --url.

It follows links on the start URL's host only, honours robots.txt, waits
between requests and stops at --max-depth or --max-pages. It can log in
before crawling with HTTP basic auth, a bearer token, an API key, cookies
or an HTML login form.

Examples:
  # Crawl a site and save the links
  crawlingchimp -u https://example.com -f links.txt

  # Crawl politely with a one second delay, deeper and longer
  crawlingchimp -u https://example.com -s -d 5 -p 500

  # Log in through the site's login form
  crawlingchimp -u https://example.com --username alice --auth-mode form

  # Use a credentials file and keep the session for later runs
  crawlingchimp -u https://example.com --cred-file credentials.json --save-session session.json

  # Write a sample credentials file
  crawlingchimp --create-cred-template

Site file (.crawlingchimp.yaml) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      headers:
        X-Team: "docs"
      depth: 5
      ignorePatterns:
        - "/admin/*"`,
		Version:       getVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCrawlCmd,
	}

	// Crawl flags
	cmd.Flags().StringP("url", "u", "", "URL to start crawling from")
	cmd.Flags().BoolP("slow", "s", false,
		fmt.Sprintf("Slow down requests (%s delay)", config.SlowDelay))
	cmd.Flags().StringP("output-file", "f", "", "Output file to save the discovered links")
	cmd.Flags().IntP("max-depth", "d", config.DefaultMaxDepth, "Maximum crawling depth")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages, "Maximum pages to crawl")
	cmd.Flags().Duration("delay", config.DefaultDelay, "Delay between requests (cannot be combined with --slow)")
	cmd.Flags().Duration("timeout", config.DefaultTimeout, "Timeout for each request")
	cmd.Flags().String("user-agent", config.DefaultUserAgent, "User-Agent header")
	cmd.Flags().String("proxy", "", "SOCKS5 proxy address (e.g., 127.0.0.1:9050)")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize, "Maximum response body size in bytes")
	cmd.Flags().String("headers", "", `Custom headers as JSON (e.g., '{"X-Team":"docs"}')`)
	cmd.Flags().StringP("config", "c", "",
		"Site file path (default: .crawlingchimp.yaml in current or home directory)")

	// Logging flags
	cmd.Flags().String("log-level", config.DefaultLogLevel,
		"Logging level ("+strings.Join(log.LevelNames, ", ")+")")
	cmd.Flags().String("log-file", "", "Log file path (default: console only)")
	cmd.Flags().Bool("progress", false, "Show a progress spinner on stderr")

	// Authentication flags
	cmd.Flags().String("cred-file", "", "JSON file containing credentials")
	cmd.Flags().String("username", "", "Username for authentication")
	cmd.Flags().String("password", "", "Password for authentication (prompted when omitted on a terminal)")
	cmd.Flags().String("auth-mode", "", "Authentication mode: basic or form (default: from credentials, else basic)")
	cmd.Flags().String("login-url", "", "Login page URL for form authentication")
	cmd.Flags().Bool("create-cred-template", false,
		"Create a credentials template file ("+config.DefaultCredentialTemplate+") and exit")
	cmd.Flags().String("save-session", "", "Save session cookies to file")
	cmd.Flags().String("load-session", "", "Load session cookies from file")

	// Output flags
	cmd.Flags().String("format", config.FormatText, "Output file format: text, json or markdown")
	cmd.Flags().String("history-dir", config.XDGDataDir(), "Directory of the crawl history database")
	cmd.Flags().Bool("no-history", false, "Do not record the crawl in the history database")

	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
