package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "crawlingchimp"

	// DefaultMaxDepth is the number of link hops followed from the start URL.
	DefaultMaxDepth = 3

	// DefaultMaxPages caps the number of successfully fetched pages.
	DefaultMaxPages = 100

	// DefaultDelay is the minimum spacing between two requests.
	DefaultDelay = 100 * time.Millisecond

	// SlowDelay is the delay selected by --slow.
	SlowDelay = 1 * time.Second

	// DefaultTimeout applies to each HTTP request, not the whole crawl.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the crawler in HTTP requests and is the
	// agent name matched against robots.txt groups.
	DefaultUserAgent = "CrawlingChimp/2.0 (Educational Web Crawler)"

	// DefaultMaxBodySize limits how much of a response body is read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultLogLevel is used when --log-level is not given.
	DefaultLogLevel = "INFO"

	// DefaultCredentialTemplate is the file written by --create-cred-template.
	DefaultCredentialTemplate = "credentials.json"

	// Output formats accepted by --format.
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"

	// Authentication modes accepted by --auth-mode.
	AuthModeBasic = "basic"
	AuthModeForm  = "form"
)

// Config holds all options for one crawl invocation. It is populated from CLI
// flags and passed explicitly to the components that need it.
type Config struct {
	// URL is the absolute http(s) start URL.
	URL string

	// MaxDepth is the maximum depth of a fetched page. Depth 0 fetches only
	// the start URL.
	MaxDepth int

	// MaxPages is the maximum number of pages fetched successfully.
	MaxPages int

	// Delay is the minimum interval between requests.
	Delay time.Duration

	// DelaySet reports whether --delay was given explicitly, which is
	// needed to detect a conflict with --slow.
	DelaySet bool

	// Slow selects SlowDelay.
	Slow bool

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// OutputFile is where discovered links are written. Empty means no file.
	OutputFile string

	// Format is one of FormatText, FormatJSON or FormatMarkdown.
	Format string

	// LogLevel is one of DEBUG, INFO, WARNING or ERROR.
	LogLevel string

	// LogFile receives log output in addition to stderr.
	LogFile string

	// CredFile is a JSON credentials file.
	CredFile string

	// Username and Password override the credentials file.
	Username string
	Password string

	// AuthMode selects AuthModeBasic or AuthModeForm. Empty keeps the mode
	// of the credentials file.
	AuthMode string

	// LoginURL is the login page used in form mode. When empty, well-known
	// login paths on the start host are probed.
	LoginURL string

	// CreateCredTemplate writes a sample credentials file and exits.
	CreateCredTemplate bool

	// SaveSession and LoadSession are session file paths.
	SaveSession string
	LoadSession string

	// Headers are custom request headers from --headers.
	Headers map[string]string

	// ConfigFilePath is the YAML site file given with --config.
	ConfigFilePath string

	// SiteConfigs holds the loaded site file, if any.
	SiteConfigs *File

	// Proxy is an optional SOCKS5 proxy address in "host:port" form.
	Proxy string

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodySize is the maximum number of bytes read from a response body.
	MaxBodySize int64

	// Progress enables the terminal spinner.
	Progress bool

	// HistoryDir is where the crawl history database lives.
	HistoryDir string

	// NoHistory disables recording the crawl in the history database.
	NoHistory bool
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxDepth:    DefaultMaxDepth,
		MaxPages:    DefaultMaxPages,
		Delay:       DefaultDelay,
		Timeout:     DefaultTimeout,
		Format:      FormatText,
		LogLevel:    DefaultLogLevel,
		UserAgent:   DefaultUserAgent,
		MaxBodySize: DefaultMaxBodySize,
		HistoryDir:  XDGDataDir(),
	}
}

// EffectiveDelay returns the delay the crawl uses after --slow is applied.
func (c *Config) EffectiveDelay() time.Duration {
	if c.Slow {
		return SlowDelay
	}
	return c.Delay
}

// XDGDataDir returns the XDG data directory for the crawler.
// On Linux: ~/.local/share/crawlingchimp
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for the crawler.
// On Linux: ~/.config/crawlingchimp
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration before any network activity and returns
// the first problem found.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrNoURL
	}
	if err := validateStartURL(c.URL); err != nil {
		return err
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.Slow && c.DelaySet {
		return ErrConflictingDelay
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	switch c.Format {
	case FormatText, FormatJSON, FormatMarkdown:
	default:
		return ErrInvalidFormat
	}

	switch c.AuthMode {
	case "", AuthModeBasic, AuthModeForm:
	default:
		return ErrInvalidAuthMode
	}

	if c.Password != "" && c.Username == "" {
		return ErrPasswordWithoutUsername
	}

	return nil
}
