package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/crawlingchimp/crawlingchimp/internal/fetcher"
)

// SessionContext is the authenticated state shared by every request of a
// crawl.
type SessionContext struct {
	// BaseURL is the origin the session belongs to. Headers are sent to its
	// host only.
	BaseURL string

	// Headers are authentication headers added to each request.
	Headers http.Header

	// Jar holds the session cookies.
	Jar http.CookieJar
}

// NewSessionContext returns an empty session for baseURL. A nil jar is
// replaced by a new public-suffix aware jar.
func NewSessionContext(baseURL string, jar http.CookieJar) *SessionContext {
	if jar == nil {
		jar = fetcher.NewCookieJar()
	}
	return &SessionContext{
		BaseURL: baseURL,
		Headers: make(http.Header),
		Jar:     jar,
	}
}

// Host returns the host of BaseURL, or "" when it cannot be parsed.
func (s *SessionContext) Host() string {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Cookies returns the jar's cookies for BaseURL.
func (s *SessionContext) Cookies() []*http.Cookie {
	u, err := url.Parse(s.BaseURL)
	if err != nil || s.Jar == nil {
		return nil
	}
	return s.Jar.Cookies(u)
}

// SetCookies stores name/value cookies for BaseURL.
func (s *SessionContext) SetCookies(values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid session URL: %w", err)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]*http.Cookie, 0, len(values))
	for _, name := range names {
		cookies = append(cookies, &http.Cookie{Name: name, Value: values[name], Path: "/"})
	}
	s.Jar.SetCookies(u, cookies)
	return nil
}

// sessionFile is the on-disk session format.
type sessionFile struct {
	BaseURL string            `json:"base_url"`
	SavedAt time.Time         `json:"saved_at"`
	Cookies []sessionCookie   `json:"cookies"`
	Headers map[string]string `json:"headers,omitempty"`
}

// sessionCookie is a saved cookie. Files written before cookie scopes were
// recorded carry only name and value; those cookies are bound to the
// session's base URL on load.
type sessionCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	HostOnly bool      `json:"host_only,omitempty"`
	Path     string    `json:"path,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
}

// cookieLister is implemented by jars that can enumerate their cookies,
// such as *fetcher.CookieJar.
type cookieLister interface {
	All() []fetcher.StoredCookie
}

// savedCookies returns every cookie of the session jar with its scope.
// Jars that cannot list their content contribute the cookies they would
// send to BaseURL.
func (s *SessionContext) savedCookies() []sessionCookie {
	out := []sessionCookie{}
	if lister, ok := s.Jar.(cookieLister); ok {
		for _, c := range lister.All() {
			out = append(out, sessionCookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				HostOnly: c.HostOnly,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
				Expires:  c.Expires,
			})
		}
		return out
	}
	for _, c := range s.Cookies() {
		out = append(out, sessionCookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// restoreCookie puts a scoped cookie back into jar.
func restoreCookie(jar http.CookieJar, c sessionCookie) {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		Expires:  c.Expires,
	}
	if !c.HostOnly {
		cookie.Domain = c.Domain
	}
	jar.SetCookies(&url.URL{Scheme: scheme, Host: c.Domain, Path: path}, []*http.Cookie{cookie})
}

// SaveSession writes the session's cookies and headers to path with mode
// 0600.
func SaveSession(path string, session *SessionContext) error {
	if session == nil {
		return errors.New("no session to save")
	}
	file := sessionFile{
		BaseURL: session.BaseURL,
		SavedAt: time.Now().UTC(),
		Cookies: session.savedCookies(),
	}
	if len(session.Headers) > 0 {
		file.Headers = make(map[string]string, len(session.Headers))
		for name := range session.Headers {
			file.Headers[name] = session.Headers.Get(name)
		}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// LoadSession reads a session file written by SaveSession and restores
// its cookies with their saved scope. Cookies without a domain are bound
// to baseURL. A flat {"name": "value"} object is read as a list of
// cookies.
func LoadSession(path, baseURL string) (*SessionContext, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided session path
	if err != nil {
		return nil, authError(fmt.Errorf("failed to read session file: %w", err))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, authError(fmt.Errorf("malformed session file %s: %w", path, err))
	}

	session := NewSessionContext(baseURL, nil)

	if _, ok := raw["cookies"]; ok {
		var file sessionFile
		if err := json.Unmarshal(data, &file); err == nil {
			cookies := make(map[string]string, len(file.Cookies))
			for _, c := range file.Cookies {
				if c.Domain == "" {
					cookies[c.Name] = c.Value
					continue
				}
				restoreCookie(session.Jar, c)
			}
			if err := session.SetCookies(cookies); err != nil {
				return nil, authError(err)
			}
			for name, value := range file.Headers {
				session.Headers.Set(name, value)
			}
			return session, nil
		}
	}

	legacy := make(map[string]string, len(raw))
	for name, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, authError(fmt.Errorf("malformed session file %s: cookie %q is not a string", path, name))
		}
		legacy[name] = s
	}
	if err := session.SetCookies(legacy); err != nil {
		return nil, authError(err)
	}
	return session, nil
}
