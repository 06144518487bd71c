package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork wraps every transport-level failure: DNS errors, refused
	// connections, timeouts and broken bodies.
	ErrNetwork = errors.New("network error")

	// ErrInvalidProxyAddress is returned when the proxy address is not in
	// "host:port" form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: must be host:port")
)

// StatusError reports a response with a status code outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s for %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// StatusCode extracts the HTTP status from err, or 0 if err is not a
// *StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
