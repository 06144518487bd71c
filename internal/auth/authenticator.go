package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"

	"github.com/crawlingchimp/crawlingchimp/internal/fetcher"
	"github.com/crawlingchimp/crawlingchimp/internal/model"
)

// loginPaths are probed, in order, when no login URL is configured.
var loginPaths = []string{"/login", "/signin", "/auth/login", "/account/login", "/user/login"}

// Client is the HTTP surface used for logging in. *fetcher.HTTPFetcher
// implements it.
type Client interface {
	Get(ctx context.Context, rawURL string) (*fetcher.Response, error)
	PostForm(ctx context.Context, rawURL string, values url.Values) (*fetcher.Response, error)
	Jar() http.CookieJar
}

// Authenticator turns Credentials into a SessionContext.
type Authenticator struct {
	client  Client
	locator LoginFormLocator
	logger  *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLocator replaces the HeuristicLocator.
func WithLocator(l LoginFormLocator) Option {
	return func(a *Authenticator) {
		a.locator = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = l
	}
}

// NewAuthenticator creates an Authenticator that logs in through client.
// The session's cookies are kept in client's jar.
func NewAuthenticator(client Client, opts ...Option) *Authenticator {
	a := &Authenticator{
		client:  client,
		locator: HeuristicLocator{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a
}

// Authenticate builds the session for baseURL from creds:
//   - username and password in basic mode set Authorization: Basic
//   - otherwise a token sets Authorization: Bearer
//   - an API key sets X-API-Key
//   - cookies are stored in the jar
//   - form mode logs in through the site's login form
//
// Nil credentials yield an empty session. Every error wraps ErrAuth.
func (a *Authenticator) Authenticate(ctx context.Context, baseURL string, creds *Credentials) (*SessionContext, error) {
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() || base.Host == "" {
		return nil, authError(fmt.Errorf("invalid base URL %q", baseURL))
	}

	session := NewSessionContext(baseURL, a.client.Jar())
	if creds == nil {
		return session, nil
	}

	if err := session.SetCookies(creds.Cookies); err != nil {
		return nil, authError(err)
	}
	if len(creds.Cookies) > 0 {
		a.logger.Info("session cookies configured", "count", len(creds.Cookies))
	}

	mode := creds.EffectiveMode()
	switch {
	case creds.HasLogin() && mode == ModeBasic:
		session.Headers.Set("Authorization", "Basic "+basicAuth(creds.Username, creds.Password))
		a.logger.Info("basic authentication configured", "username", creds.Username)
	case creds.Token != "":
		session.Headers.Set("Authorization", "Bearer "+creds.Token)
		a.logger.Info("token authentication configured")
	}
	if creds.APIKey != "" {
		session.Headers.Set("X-API-Key", creds.APIKey)
		a.logger.Info("API key authentication configured")
	}

	if mode == ModeForm {
		if !creds.HasLogin() {
			return nil, authError(ErrMissingCredentials)
		}
		if err := a.formLogin(ctx, base, creds); err != nil {
			return nil, err
		}
	}

	return session, nil
}

func (a *Authenticator) formLogin(ctx context.Context, base *url.URL, creds *Credentials) error {
	a.logger.Info("attempting form-based login")

	form, err := a.findLoginForm(ctx, base, creds.LoginURL)
	if err != nil {
		return authError(err)
	}

	values := FillForm(form, creds.Username, creds.Password)
	fields := make([]string, 0, len(values))
	for name := range values {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	a.logger.Info("submitting login form", "action", form.Action, "method", form.Method, "fields", fields)

	var resp *fetcher.Response
	if form.IsPost() {
		resp, err = a.client.PostForm(ctx, form.Action, values)
	} else {
		var target *url.URL
		target, err = url.Parse(form.Action)
		if err != nil {
			return authError(fmt.Errorf("invalid form action: %w", err))
		}
		target.RawQuery = values.Encode()
		resp, err = a.client.Get(ctx, target.String())
	}
	if err != nil {
		return authError(fmt.Errorf("login request failed: %w", err))
	}

	if resp.IsHTML() {
		if _, err := a.locator.Locate(resp.Body, pageURL(resp, form.Action)); err == nil {
			a.logger.Warn("login form shown again after submit", "url", pageURL(resp, form.Action))
			return authError(ErrLoginRejected)
		}
	}

	a.logger.Info("login successful", "url", pageURL(resp, form.Action))
	return nil
}

// findLoginForm returns the first login form among the candidate pages.
func (a *Authenticator) findLoginForm(ctx context.Context, base *url.URL, loginURL string) (*model.Form, error) {
	candidates, err := loginCandidates(base, loginURL)
	if err != nil {
		return nil, err
	}

	lastErr := ErrNoLoginPage
	for _, candidate := range candidates {
		resp, err := a.client.Get(ctx, candidate)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Debug("no login page", "url", candidate, "error", err)
			continue
		}
		a.logger.Info("found login page", "url", candidate)

		form, err := a.locator.Locate(resp.Body, pageURL(resp, candidate))
		if err != nil {
			a.logger.Warn("no login form on page", "url", candidate, "error", err)
			lastErr = ErrNoLoginForm
			continue
		}
		a.logger.Debug("login form located", "action", form.Action, "inputs", len(form.Inputs))
		return form, nil
	}
	return nil, lastErr
}

// loginCandidates returns the configured login URL resolved against base,
// or the common login paths on base's origin.
func loginCandidates(base *url.URL, loginURL string) ([]string, error) {
	if loginURL != "" {
		ref, err := url.Parse(loginURL)
		if err != nil {
			return nil, fmt.Errorf("invalid login URL %q: %w", loginURL, err)
		}
		return []string{base.ResolveReference(ref).String()}, nil
	}

	origin := url.URL{Scheme: base.Scheme, Host: base.Host}
	candidates := make([]string, 0, len(loginPaths))
	for _, path := range loginPaths {
		u := origin
		u.Path = path
		candidates = append(candidates, u.String())
	}
	return candidates, nil
}

func pageURL(resp *fetcher.Response, fallback string) string {
	if resp.FinalURL != "" {
		return resp.FinalURL
	}
	return fallback
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
