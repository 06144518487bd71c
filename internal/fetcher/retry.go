package fetcher

import "time"

// RetryPolicy controls how often a request is attempted.
type RetryPolicy struct {
	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration

	// Retries is the number of additional attempts after the first one.
	// Only network errors and 5xx responses are retried.
	Retries int

	// Backoff is the pause between attempts.
	Backoff time.Duration
}

// NoRetry is the crawl's policy: one attempt per URL, no backoff.
func NoRetry(timeout time.Duration) RetryPolicy {
	return RetryPolicy{Timeout: timeout}
}

func (p RetryPolicy) attempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

func retryable(err error, status int) bool {
	return err != nil || status >= 500
}
