package fetcher

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// StoredCookie is a cookie with the scope it was accepted for.
type StoredCookie struct {
	Name  string
	Value string

	// Domain is the cookie domain. For host-only cookies it is the host
	// that set the cookie.
	Domain   string
	HostOnly bool
	Path     string

	Secure   bool
	HTTPOnly bool

	// Expires is zero for session cookies.
	Expires time.Time
}

// CookieJar is a public-suffix aware cookie jar that also remembers the
// scope of every cookie it accepted, so the jar's content can be listed.
type CookieJar struct {
	jar *cookiejar.Jar

	mu      sync.Mutex
	entries map[string]StoredCookie
}

// NewCookieJar returns an empty CookieJar.
func NewCookieJar() *CookieJar {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}) //nolint:errcheck // cookiejar.New never fails
	return &CookieJar{
		jar:     jar,
		entries: make(map[string]StoredCookie),
	}
}

// Cookies implements http.CookieJar.
func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// SetCookies implements http.CookieJar.
func (j *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	host := strings.ToLower(u.Hostname())
	now := time.Now()

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range cookies {
		sc, ok := scopeCookie(host, u.Path, c, now)
		if !ok {
			continue
		}
		key := sc.Domain + ";" + sc.Path + ";" + sc.Name
		if c.MaxAge < 0 || (c.MaxAge == 0 && !c.Expires.IsZero() && !c.Expires.After(now)) {
			delete(j.entries, key)
			continue
		}
		j.entries[key] = sc
	}
}

// All returns the unexpired cookies of the jar sorted by domain, path and
// name.
func (j *CookieJar) All() []StoredCookie {
	now := time.Now()

	j.mu.Lock()
	out := make([]StoredCookie, 0, len(j.entries))
	for _, c := range j.entries {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		out = append(out, c)
	}
	j.mu.Unlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].Domain != out[b].Domain {
			return out[a].Domain < out[b].Domain
		}
		if out[a].Path != out[b].Path {
			return out[a].Path < out[b].Path
		}
		return out[a].Name < out[b].Name
	})
	return out
}

// scopeCookie resolves the domain and path c applies to when set by host
// for a request to requestPath. It reports false for cookies the jar
// rejects because of their Domain attribute.
func scopeCookie(host, requestPath string, c *http.Cookie, now time.Time) (StoredCookie, bool) {
	sc := StoredCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   host,
		HostOnly: true,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
	}

	if domain := strings.TrimPrefix(strings.ToLower(c.Domain), "."); domain != "" && domain != host {
		if !strings.HasSuffix(host, "."+domain) {
			return StoredCookie{}, false
		}
		if ps, _ := publicsuffix.PublicSuffix(domain); ps == domain {
			return StoredCookie{}, false
		}
		sc.Domain = domain
		sc.HostOnly = false
	} else if domain == host {
		sc.HostOnly = false
	}

	if sc.Path == "" || sc.Path[0] != '/' {
		sc.Path = defaultCookiePath(requestPath)
	}

	switch {
	case c.MaxAge > 0:
		sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case c.MaxAge == 0 && !c.Expires.IsZero():
		sc.Expires = c.Expires
	}
	return sc, true
}

// defaultCookiePath is the directory of the request path (RFC 6265 5.1.4).
func defaultCookiePath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}
