package uploader

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// RecoveryHook mutates an about-to-be-retried request in place — typically
// rewriting it into a status-query — on a transient failure. It reports
// whether it recognized and rewrote req.
type RecoveryHook interface {
	BeforeRetry(req *http.Request, failure error) (rewritten bool)
}

// Transport wraps a base *http.Client with a retry policy and a recovery hook
// chain. It is the shared HTTP client and handler chain that multiple
// concurrent Sessions may use safely: a golang.org/x/sync/semaphore.Weighted
// bounds the number of in-flight requests, and per-session RecoveryHooks are
// registered/deregistered in a sync.Map keyed by session URI so a hook only
// ever mutates requests aimed at its own session.
type Transport struct {
	client *http.Client
	sem    *semaphore.Weighted
	hooks  sync.Map // sessionURI string -> RecoveryHook
	logger *log.Logger
}

// NewTransport builds a Transport over client, bounding concurrent in-flight
// requests to maxConcurrent. A nil client uses http.DefaultClient; a
// non-positive maxConcurrent disables the bound (treated as unbounded).
func NewTransport(client *http.Client, maxConcurrent int64, logger *log.Logger) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[uploader] ", log.Flags())
	}
	var sem *semaphore.Weighted
	if maxConcurrent > 0 {
		sem = semaphore.NewWeighted(maxConcurrent)
	}
	return &Transport{client: client, sem: sem, logger: logger}
}

// registerHook binds hook to sessionURI for the lifetime of one session; the
// caller deregisters it when the session ends.
func (t *Transport) registerHook(sessionURI string, hook RecoveryHook) {
	if sessionURI == "" {
		return
	}
	t.hooks.Store(sessionURI, hook)
}

func (t *Transport) deregisterHook(sessionURI string) {
	t.hooks.Delete(sessionURI)
}

// Do sends req, retrying transient failures per policy and giving the
// registered recovery hook (if any, matched by req.URL) a chance to rewrite
// each retried request into a status-query. It returns the final response:
// either a success/308 (possibly after recovery), or the terminal
// failure response/error once the policy gives up.
func (t *Transport) Do(ctx context.Context, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	if t.sem != nil {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer t.sem.Release(1)
	}

	policy.Reset()
	attempt := 0
	for {
		resp, err := t.client.Do(req.WithContext(ctx))
		if err == nil && !isTransientStatus(resp.StatusCode) {
			return resp, nil
		}

		failure := err
		if failure == nil {
			failure = &ServerError{Code: resp.StatusCode}
		}

		wait, retry := policy.ShouldRetry(attempt, resp, err)
		if !retry {
			return resp, err
		}
		attempt++

		if hookVal, ok := t.hooks.Load(req.URL.String()); ok {
			hook := hookVal.(RecoveryHook)
			if hook.BeforeRetry(req, failure) {
				t.logger.Printf("recovery hook rewrote request to %s after attempt %d", req.URL, attempt)
			}
		}
		if resp != nil {
			resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func isTransientStatus(code int) bool {
	return code >= 500
}
