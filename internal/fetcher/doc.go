// Package fetcher issues the HTTP requests of a crawl.
//
// HTTPFetcher wraps a net/http client configured with a cookie jar, an
// optional SOCKS5 proxy, and a transport that injects session headers into
// every request. Response bodies are decompressed (gzip, deflate, brotli),
// converted to UTF-8 and capped in size before they are returned.
//
// Requests are attempted according to a RetryPolicy. The default policy makes
// exactly one attempt per URL: a failed fetch is reported to the caller and
// never retried.
//
// Errors come in two kinds:
//   - *StatusError for responses outside the 2xx range
//   - errors wrapping ErrNetwork for transport failures and timeouts
package fetcher
