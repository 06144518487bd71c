package fetcher

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// maxRedirects bounds redirect chains.
const maxRedirects = 10

// newTransport builds the base transport. When proxyAddress is set, all
// connections are dialed through that SOCKS5 proxy.
func newTransport(proxyAddress string) (*http.Transport, error) {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Bodies are decoded by readBody, which also understands brotli.
		DisableCompression: true,
	}

	if proxyAddress == "" {
		return transport, nil
	}

	address := strings.TrimPrefix(proxyAddress, "socks5://")
	if !isValidProxyAddress(address) {
		return nil, ErrInvalidProxyAddress
	}

	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	}
	return transport, nil
}

// isValidProxyAddress checks for "host:port" with a port in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// sessionTransport injects the session headers, the site cookie and custom
// headers into every request.
type sessionTransport struct {
	base http.RoundTripper

	// sessionHeaders and cookie are only sent to sessionHost so credentials
	// never leak to another host through a redirect.
	sessionHeaders http.Header
	sessionHost    string

	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.sessionHost == "" || strings.EqualFold(clone.URL.Host, t.sessionHost) {
		for key, values := range t.sessionHeaders {
			clone.Header.Del(key)
			for _, v := range values {
				clone.Header.Add(key, v)
			}
		}

		if t.cookie != "" {
			if existing := clone.Header.Get("Cookie"); existing != "" {
				clone.Header.Set("Cookie", existing+"; "+t.cookie)
			} else {
				clone.Header.Set("Cookie", t.cookie)
			}
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
