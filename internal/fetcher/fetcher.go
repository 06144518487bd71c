package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

// Default request headers.
const (
	DefaultUserAgent      = "CrawlingChimp/2.0 (Educational Web Crawler)"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultAcceptLanguage = "en-US,en;q=0.5"
	DefaultAcceptEncoding = "gzip, deflate, br"

	// DefaultMaxBodySize caps response bodies at 5MB.
	DefaultMaxBodySize = 5 * 1024 * 1024

	// DefaultTimeout bounds one request attempt.
	DefaultTimeout = 30 * time.Second
)

// Options controls HTTP fetching behaviour.
type Options struct {
	// UserAgent replaces DefaultUserAgent when set.
	UserAgent string

	// Headers are custom headers set on every request. They override the
	// defaults and the session headers.
	Headers map[string]string

	// Cookie is a raw "name=value; name2=value2" string sent with every
	// request in addition to the jar's cookies.
	Cookie string

	// SessionHeaders are authentication headers established by a login.
	SessionHeaders http.Header

	// SessionHost restricts SessionHeaders to one host. Empty sends them
	// everywhere.
	SessionHost string

	// Jar stores cookies across requests. A new public-suffix aware jar is
	// created when nil.
	Jar http.CookieJar

	// Proxy is an optional SOCKS5 proxy in "host:port" form.
	Proxy string

	// MaxBodySize truncates response bodies. Zero selects DefaultMaxBodySize.
	MaxBodySize int64

	// Retry is the retry policy. The zero value makes one attempt with
	// DefaultTimeout.
	Retry RetryPolicy

	// Logger receives per-request debug output. Nil discards it.
	Logger *slog.Logger
}

// Response is a fetched HTTP response with its decoded body.
type Response struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after redirects.
	FinalURL string

	StatusCode int
	Header     http.Header

	// Body is decompressed and converted to UTF-8 for textual content.
	Body []byte

	// ContentType is the media type without parameters, lower-cased.
	ContentType string
}

// IsHTML reports whether the response carries an HTML document.
func (r *Response) IsHTML() bool {
	return r.ContentType == "text/html" || r.ContentType == "application/xhtml+xml"
}

// HTTPFetcher implements fetching over net/http.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	retry       RetryPolicy
	logger      *slog.Logger
}

// New constructs an HTTPFetcher from opts.
func New(opts Options) (*HTTPFetcher, error) {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.Retry.Timeout <= 0 {
		opts.Retry.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Jar == nil {
		opts.Jar = NewCookieJar()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	base, err := newTransport(opts.Proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to configure transport: %w", err)
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	client := &http.Client{
		Transport: &sessionTransport{
			base:           base,
			sessionHeaders: opts.SessionHeaders.Clone(),
			sessionHost:    opts.SessionHost,
			cookie:         opts.Cookie,
			headers:        headers,
		},
		Jar: opts.Jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &HTTPFetcher{
		client:      client,
		userAgent:   opts.UserAgent,
		maxBodySize: opts.MaxBodySize,
		retry:       opts.Retry,
		logger:      opts.Logger,
	}, nil
}

// Jar returns the cookie jar shared by all requests of this fetcher.
func (f *HTTPFetcher) Jar() http.CookieJar {
	return f.client.Jar
}

// UserAgent returns the User-Agent sent with requests.
func (f *HTTPFetcher) UserAgent() string {
	return f.userAgent
}

// Get fetches rawURL with a GET request.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return f.Fetch(ctx, req)
}

// PostForm submits values as an urlencoded form to rawURL.
func (f *HTTPFetcher) PostForm(ctx context.Context, rawURL string, values url.Values) (*Response, error) {
	encoded := values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(encoded)), nil
	}
	return f.Fetch(ctx, req)
}

// Fetch performs req according to the retry policy. Responses outside the
// 2xx range are returned as *StatusError; transport failures wrap ErrNetwork.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	f.setDefaultHeaders(req)

	var (
		resp *Response
		err  error
	)
	for attempt := 1; attempt <= f.retry.attempts(); attempt++ {
		if attempt > 1 {
			f.logger.Debug("retrying request", "url", req.URL.String(), "attempt", attempt)
			if waitErr := sleep(ctx, f.retry.Backoff); waitErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrNetwork, waitErr)
			}
			if req.GetBody != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return nil, fmt.Errorf("rewind request body: %w", bodyErr)
				}
				req.Body = body
			}
		}

		resp, err = f.do(ctx, req)
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		if !retryable(err, status) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (f *HTTPFetcher) do(ctx context.Context, req *http.Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.retry.Timeout)
	defer cancel()

	start := time.Now()
	httpResp, err := f.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer httpResp.Body.Close()

	body, err := f.readBody(httpResp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	finalURL := req.URL.String()
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}

	f.logger.Debug("fetched",
		"method", req.Method,
		"url", req.URL.String(),
		"status", httpResp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start),
	)

	return &Response{
		URL:         req.URL.String(),
		FinalURL:    finalURL,
		StatusCode:  httpResp.StatusCode,
		Header:      httpResp.Header.Clone(),
		Body:        body,
		ContentType: mediaType(httpResp.Header.Get("Content-Type")),
	}, nil
}

func (f *HTTPFetcher) setDefaultHeaders(req *http.Request) {
	defaults := map[string]string{
		"User-Agent":      f.userAgent,
		"Accept":          DefaultAccept,
		"Accept-Language": DefaultAcceptLanguage,
		"Accept-Encoding": DefaultAcceptEncoding,
	}
	for k, v := range defaults {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
}

// readBody decompresses, converts to UTF-8 and truncates the body.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isText(mediaType(contentType)) {
		return body, nil
	}

	utf8Reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body, nil
	}
	converted, err := io.ReadAll(utf8Reader)
	if err != nil {
		return body, nil
	}
	return converted, nil
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func isText(mt string) bool {
	return strings.HasPrefix(mt, "text/") || mt == "application/xhtml+xml" || mt == ""
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}
