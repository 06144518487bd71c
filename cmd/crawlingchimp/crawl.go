package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/crawlingchimp/crawlingchimp/internal/auth"
	"github.com/crawlingchimp/crawlingchimp/internal/config"
	"github.com/crawlingchimp/crawlingchimp/internal/crawler"
	"github.com/crawlingchimp/crawlingchimp/internal/database"
	"github.com/crawlingchimp/crawlingchimp/internal/fetcher"
	"github.com/crawlingchimp/crawlingchimp/internal/log"
	"github.com/crawlingchimp/crawlingchimp/internal/model"
	"github.com/crawlingchimp/crawlingchimp/internal/progress"
	"github.com/crawlingchimp/crawlingchimp/internal/report"
	"github.com/crawlingchimp/crawlingchimp/internal/robots"
)

// runCrawlCmd executes the root command.
func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	createTemplate, err := cmd.Flags().GetBool("create-cred-template")
	if err != nil {
		return err
	}
	if createTemplate {
		return createCredentialTemplate(cmd.OutOrStdout(), config.DefaultCredentialTemplate)
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// With --progress, console logging goes through the spinner so the two
	// do not overwrite each other on stderr.
	console := cmd.ErrOrStderr()
	var indicator *progress.Indicator
	if cfg.Progress {
		indicator = progress.New(os.Stderr)
		defer indicator.Stop()
		console = indicator
	}

	logger, closer, err := setupLogger(cfg, console)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	if err := promptPassword(cfg, cmd.ErrOrStderr()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger, indicator, cmd.OutOrStdout())
}

// createCredentialTemplate writes the sample credentials file.
func createCredentialTemplate(out io.Writer, path string) error {
	if err := auth.WriteTemplate(path); err != nil {
		return err
	}
	fmt.Fprintf(out, "Credentials template created: %s\n", path)
	fmt.Fprintln(out, "Edit the file and pass it with --cred-file.")
	return nil
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.URL, err = flags.GetString("url"); err != nil {
		return nil, err
	}
	if cfg.Slow, err = flags.GetBool("slow"); err != nil {
		return nil, err
	}
	if cfg.OutputFile, err = flags.GetString("output-file"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt("max-depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	cfg.DelaySet = flags.Changed("delay")
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = flags.GetString("log-level"); err != nil {
		return nil, err
	}
	if cfg.LogFile, err = flags.GetString("log-file"); err != nil {
		return nil, err
	}
	if cfg.Progress, err = flags.GetBool("progress"); err != nil {
		return nil, err
	}
	if cfg.CredFile, err = flags.GetString("cred-file"); err != nil {
		return nil, err
	}
	if cfg.Username, err = flags.GetString("username"); err != nil {
		return nil, err
	}
	if cfg.Password, err = flags.GetString("password"); err != nil {
		return nil, err
	}
	if cfg.AuthMode, err = flags.GetString("auth-mode"); err != nil {
		return nil, err
	}
	cfg.AuthMode = strings.ToLower(cfg.AuthMode)
	if cfg.LoginURL, err = flags.GetString("login-url"); err != nil {
		return nil, err
	}
	if cfg.SaveSession, err = flags.GetString("save-session"); err != nil {
		return nil, err
	}
	if cfg.LoadSession, err = flags.GetString("load-session"); err != nil {
		return nil, err
	}
	if cfg.Format, err = flags.GetString("format"); err != nil {
		return nil, err
	}
	cfg.Format = strings.ToLower(cfg.Format)
	if cfg.HistoryDir, err = flags.GetString("history-dir"); err != nil {
		return nil, err
	}
	if cfg.NoHistory, err = flags.GetBool("no-history"); err != nil {
		return nil, err
	}

	rawHeaders, err := flags.GetString("headers")
	if err != nil {
		return nil, err
	}
	if cfg.Headers, err = config.ParseHeaders(rawHeaders); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// An explicit site file must exist; the default locations are optional.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	// The site file fills in what the command line left at its default.
	site := siteConfigFor(cfg.SiteConfigs, cfg.URL)
	if site.Depth > 0 && !flags.Changed("max-depth") {
		cfg.MaxDepth = site.Depth
	}
	if site.UserAgent != "" && !flags.Changed("user-agent") {
		cfg.UserAgent = site.UserAgent
	}

	return cfg, nil
}

// siteConfigFor returns the site settings for the host of rawURL. An entry
// keyed by host:port wins over one keyed by the bare host name.
func siteConfigFor(cf *config.File, rawURL string) config.SiteConfig {
	if cf == nil {
		return config.SiteConfig{}
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return cf.Defaults
	}
	host := strings.ToLower(u.Host)
	if _, ok := cf.Sites[host]; ok {
		return cf.GetSiteConfig(host)
	}
	return cf.GetSiteConfig(strings.ToLower(u.Hostname()))
}

// setupLogger creates the logger of one crawl. DEBUG without --log-file also
// writes to a timestamped file under logs/.
func setupLogger(cfg *config.Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}

	logFile := cfg.LogFile
	if logFile == "" && level == slog.LevelDebug {
		logFile = log.DebugLogFile(time.Now())
	}

	return log.New(log.Options{
		Level:   level,
		Console: console,
		File:    logFile,
	})
}

// promptPassword asks for the password when only a username was given and
// stdin is a terminal.
func promptPassword(cfg *config.Config, prompt io.Writer) error {
	if cfg.Username == "" || cfg.Password != "" || cfg.LoadSession != "" {
		return nil
	}
	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return nil
	}

	fmt.Fprintf(prompt, "Password for %s: ", cfg.Username)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	cfg.Password = string(password)
	return nil
}

// runCrawl authenticates, crawls and writes the results. A non-nil
// indicator receives the engine's progress reports.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, indicator *progress.Indicator, out io.Writer) error {
	site := siteConfigFor(cfg.SiteConfigs, cfg.URL)

	session, err := establishSession(ctx, cfg, logger)
	if err != nil {
		return err
	}

	f, err := fetcher.New(fetcher.Options{
		UserAgent:      cfg.UserAgent,
		Headers:        mergeHeaders(site.Headers, cfg.Headers),
		Cookie:         site.Cookie,
		SessionHeaders: session.Headers,
		SessionHost:    session.Host(),
		Jar:            session.Jar,
		Proxy:          cfg.Proxy,
		MaxBodySize:    cfg.MaxBodySize,
		Retry:          fetcher.NoRetry(cfg.Timeout),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	opts := []crawler.Option{
		crawler.WithMaxDepth(cfg.MaxDepth),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithDelay(cfg.EffectiveDelay()),
		crawler.WithRobots(robots.NewChecker(f, cfg.UserAgent, logger)),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithLogger(logger),
	}

	if indicator != nil {
		opts = append(opts, crawler.WithProgress(indicator.Update))
	}

	result, err := crawler.NewEngine(f, opts...).Crawl(ctx, cfg.URL)
	if indicator != nil {
		indicator.Stop()
	}
	if err != nil {
		return err
	}

	if cfg.OutputFile != "" {
		if err := report.WriteFile(cfg.OutputFile, cfg.Format, getVersion(), result); err != nil {
			return err
		}
		logger.Info("results saved", "path", cfg.OutputFile, "format", cfg.Format)
	}

	if err := report.WriteSummary(out, result); err != nil {
		return err
	}
	if cfg.OutputFile != "" {
		fmt.Fprintf(out, "Results saved to '%s'\n", cfg.OutputFile)
	}

	if cfg.SaveSession != "" {
		if err := auth.SaveSession(cfg.SaveSession, session); err != nil {
			return err
		}
		logger.Info("session saved", "path", cfg.SaveSession)
	}

	if !cfg.NoHistory {
		saveHistory(cfg.HistoryDir, result, logger)
	}
	return nil
}

// establishSession loads a saved session or logs in with the configured
// credentials. It returns an empty session when no credentials are given.
func establishSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*auth.SessionContext, error) {
	if cfg.LoadSession != "" {
		session, err := auth.LoadSession(cfg.LoadSession, cfg.URL)
		if err != nil {
			return nil, err
		}
		logger.Info("session loaded", "path", cfg.LoadSession, "cookies", len(session.Cookies()))
		return session, nil
	}

	creds := &auth.Credentials{}
	if cfg.CredFile != "" {
		loaded, err := auth.LoadCredentials(cfg.CredFile)
		if err != nil {
			return nil, err
		}
		creds = loaded
		logger.Info("credentials loaded", "path", cfg.CredFile)
	}
	creds.Override(cfg.Username, cfg.Password)
	if cfg.AuthMode != "" {
		creds.Mode = cfg.AuthMode
	}
	if cfg.LoginURL != "" {
		creds.LoginURL = cfg.LoginURL
	}

	// Logging in uses its own fetcher so that the crawl's custom headers
	// never reach the login form; the jar is shared.
	client, err := fetcher.New(fetcher.Options{
		UserAgent:   cfg.UserAgent,
		Proxy:       cfg.Proxy,
		MaxBodySize: cfg.MaxBodySize,
		Retry:       fetcher.NoRetry(cfg.Timeout),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	if creds.IsEmpty() && creds.Mode != auth.ModeForm {
		return auth.NewSessionContext(cfg.URL, client.Jar()), nil
	}
	return auth.NewAuthenticator(client, auth.WithLogger(logger)).Authenticate(ctx, cfg.URL, creds)
}

// mergeHeaders overlays override on base. Command line headers win over the
// site file.
func mergeHeaders(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// saveHistory records result in the history database. Failures are logged
// and never fail the crawl.
func saveHistory(dir string, result *model.CrawlResult, logger *slog.Logger) {
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		logger.Warn("failed to open history database", "dir", dir, "error", err)
		return
	}
	defer db.Close()

	// The crawl context may already be cancelled after an interrupt.
	id, err := db.SaveCrawl(context.Background(), result)
	if err != nil {
		logger.Warn("failed to save crawl history", "error", err)
		return
	}
	logger.Info("crawl saved to history", "run_id", id, "path", db.Path())
}
