package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is the root of every authentication failure. Callers check it
	// with errors.Is and abort the crawl.
	ErrAuth = errors.New("authentication failed")

	// ErrNoLoginPage is returned when none of the probed URLs serves a page.
	ErrNoLoginPage = errors.New("could not find login page")

	// ErrNoLoginForm is returned when a page holds no form with a password
	// field.
	ErrNoLoginForm = errors.New("no login form found")

	// ErrLoginRejected is returned when the login response shows the login
	// form again.
	ErrLoginRejected = errors.New("login rejected: still on the login page")

	// ErrMissingCredentials is returned when form login is requested
	// without a username and password.
	ErrMissingCredentials = errors.New("form login requires a username and password")
)

// authError wraps cause so that both it and ErrAuth match errors.Is.
func authError(cause error) error {
	return fmt.Errorf("%w: %w", ErrAuth, cause)
}
