package uploader

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

// RetryPolicy decides whether a failed attempt will be retried, and how long
// to wait first. It is consulted before the recovery hook gets a chance to
// rewrite the retried request.
type RetryPolicy interface {
	// ShouldRetry is called once per failed attempt. resp is non-nil for a
	// non-2xx/308 HTTP response; err is non-nil for a transport-level
	// failure. It returns the wait duration and whether to retry at all.
	ShouldRetry(attempt int, resp *http.Response, err error) (wait time.Duration, retry bool)
	// Reset clears any accumulated backoff state. Transport.Do calls it at
	// the start of each request so one request's failures don't bias the next.
	Reset()
}

// BackoffRetryPolicy is the default RetryPolicy, built on
// github.com/cenkalti/backoff's exponential backoff. 4xx responses are
// classified as permanent and never retried; 5xx responses and transport
// errors are retried with exponential backoff up to MaxRetries attempts.
type BackoffRetryPolicy struct {
	backoff    *backoff.ExponentialBackOff
	MaxRetries int
}

// NewBackoffRetryPolicy builds a BackoffRetryPolicy with the given maximum
// number of retry attempts. maxRetries <= 0 means "unbounded": MaxElapsedTime
// is disabled as well, so retries stop only when the request's context ends.
func NewBackoffRetryPolicy(maxRetries int) *BackoffRetryPolicy {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // unbounded; MaxRetries governs attempt count instead
	return &BackoffRetryPolicy{backoff: b, MaxRetries: maxRetries}
}

func (p *BackoffRetryPolicy) Reset() {
	p.backoff.Reset()
}

func (p *BackoffRetryPolicy) ShouldRetry(attempt int, resp *http.Response, err error) (time.Duration, bool) {
	if p.MaxRetries > 0 && attempt >= p.MaxRetries {
		return 0, false
	}

	if resp != nil && resp.StatusCode < 500 {
		// 4xx (or any non-5xx failure) is permanent; never retried.
		return 0, false
	}

	wait := p.backoff.NextBackOff()
	if wait == backoff.Stop {
		return 0, false
	}
	return wait, true
}
