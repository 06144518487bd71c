package crawler

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("not an absolute http or https URL")

// cleanURL parses raw as an absolute http(s) URL and returns it with the
// scheme and host lower-cased, the default port and the fragment removed
// and an empty path replaced by "/". This is the form that is fetched and
// reported.
func cleanURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	u.Host = strings.ToLower(u.Host)
	if host, port, err := net.SplitHostPort(u.Host); err == nil {
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			u.Host = host
			if strings.Contains(host, ":") {
				u.Host = "[" + host + "]"
			}
		}
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}

	return u.String(), nil
}

// normalizeURL returns the key used for visited-set membership: the
// cleanURL form with any trailing slash dropped from paths other than "/".
func normalizeURL(raw string) (string, error) {
	cleaned, err := cleanURL(raw)
	if err != nil {
		return "", err
	}
	return visitKey(cleaned), nil
}

// visitKey drops the trailing slash of a URL already in cleanURL form.
func visitKey(cleaned string) string {
	u, err := url.Parse(cleaned)
	if err != nil || u.Path == "/" || !strings.HasSuffix(u.Path, "/") {
		return cleaned
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawPath = ""
	return u.String()
}
