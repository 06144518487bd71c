package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Configuration validation errors returned by Config.Validate. They are all
// fatal and reported before any network activity.
var (
	// ErrNoURL is returned when no start URL is given.
	ErrNoURL = errors.New("no start URL specified: use --url")

	// ErrInvalidURL is returned when the start URL is not an absolute
	// http or https URL.
	ErrInvalidURL = errors.New("invalid start URL: must be an absolute http or https URL")

	// ErrInvalidMaxDepth is returned when the max depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the max pages is not positive.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidDelay is returned when the delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrConflictingDelay is returned when both --slow and --delay are given.
	ErrConflictingDelay = errors.New("conflicting delay options: --slow and --delay cannot be used together")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidFormat is returned for an unknown --format value.
	ErrInvalidFormat = errors.New("invalid output format: must be one of text, json, markdown")

	// ErrInvalidAuthMode is returned for an unknown --auth-mode value.
	ErrInvalidAuthMode = errors.New("invalid auth mode: must be basic or form")

	// ErrPasswordWithoutUsername is returned when --password is given alone.
	ErrPasswordWithoutUsername = errors.New("--password requires --username")

	// ErrInvalidHeaders is returned when --headers is not a JSON object of strings.
	ErrInvalidHeaders = errors.New("invalid headers: must be a JSON object of string values")
)

func validateStartURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
