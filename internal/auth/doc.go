// Package auth establishes the authenticated session a crawl runs with.
//
// A crawl can carry any combination of:
//   - HTTP basic credentials (Authorization: Basic)
//   - a bearer token (Authorization: Bearer)
//   - an API key (X-API-Key)
//   - pre-seeded cookies
//   - a form login whose cookies are captured in the session jar
//
// The result is a SessionContext: headers scoped to the crawl host plus a
// cookie jar. It is read-only once the crawl starts and can be saved to and
// loaded from a JSON session file, which bypasses the live login.
//
// Every failure in this package wraps ErrAuth and is fatal for the crawl.
package auth
