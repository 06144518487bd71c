// Package robots answers whether a URL may be crawled according to the
// target host's robots.txt.
//
// The file is fetched once per host and cached for the lifetime of the
// Checker, including failed fetches. Any failure to obtain or parse the
// rules allows the URL (fail-open) and is logged at warn level.
package robots

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/crawlingchimp/crawlingchimp/internal/fetcher"
)

// Getter fetches a URL. *fetcher.HTTPFetcher implements it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetcher.Response, error)
}

// Checker evaluates robots.txt rules with a per-host cache.
type Checker struct {
	getter    Getter
	userAgent string
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]*robotstxt.Group
}

// NewChecker creates a Checker that fetches robots.txt through getter and
// matches groups against userAgent, falling back to "*".
func NewChecker(getter Getter, userAgent string, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Checker{
		getter:    getter,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotstxt.Group),
	}
}

// IsAllowed reports whether target may be fetched. Relative or non-HTTP
// URLs are never allowed.
func (c *Checker) IsAllowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() || target.Host == "" {
		return false
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return false
	}

	group := c.group(ctx, target)
	if group == nil {
		return true
	}

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return group.Test(path)
}

// group returns the cached group for the target's host, fetching the rules
// on first use. A nil group allows everything.
func (c *Checker) group(ctx context.Context, target *url.URL) *robotstxt.Group {
	key := strings.ToLower(target.Scheme + "://" + target.Host)

	c.mu.Lock()
	defer c.mu.Unlock()

	if group, ok := c.cache[key]; ok {
		return group
	}

	group := c.fetch(ctx, key+"/robots.txt")
	c.cache[key] = group
	return group
}

func (c *Checker) fetch(ctx context.Context, robotsURL string) *robotstxt.Group {
	resp, err := c.getter.Get(ctx, robotsURL)
	if err != nil {
		status := fetcher.StatusCode(err)
		switch {
		case status >= 400 && status < 500:
			// A missing robots.txt means there are no restrictions.
			c.logger.Debug("no robots.txt", "url", robotsURL, "status", status)
		case errors.Is(err, context.Canceled):
		default:
			c.logger.Warn("robots.txt unavailable, allowing all", "url", robotsURL, "error", err)
		}
		return nil
	}

	data, err := robotstxt.FromBytes(resp.Body)
	if err != nil {
		c.logger.Warn("robots.txt unparsable, allowing all", "url", robotsURL, "error", err)
		return nil
	}

	group := data.FindGroup(c.userAgent)
	c.logger.Debug("loaded robots.txt", "url", robotsURL)
	return group
}
