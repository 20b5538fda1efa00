package uploader

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// sessionRecoveryHook is the concrete RecoveryHook installed by a Session for
// the duration of one upload. It only ever rewrites the request it is bound
// to (the Transport's URI-keyed lookup already guarantees that), so
// BeforeRetry does no further URI comparison itself.
type sessionRecoveryHook struct {
	sessionURI    string
	idempotencyID string

	// totalLength reads the driver's current notion of the total length,
	// which for the unknown-size regime only becomes known partway through
	// the upload (once the final chunk is detected). A hook that captured
	// totalKnown/totalLength once at registration time would keep emitting
	// "bytes */*" even after the total became known.
	totalLength func() (length int64, known bool)
}

// BeforeRetry clears all headers but the idempotency key, sets the method to
// PUT, empties the body, and sets Content-Range to a status query. Returning
// true signals the caller to reissue req as-is.
func (h *sessionRecoveryHook) BeforeRetry(req *http.Request, failure error) bool {
	if failure == nil {
		return false
	}
	if errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded) {
		// A cancellation is never treated as a recoverable failure.
		return false
	}

	req.Method = http.MethodPut
	req.Header = make(http.Header)
	req.Header.Set("X-Idempotency-Key", h.idempotencyID)
	length, known := h.totalLength()
	req.Header.Set("Content-Range", formatStatusQueryRange(totalLengthString(length, known)))
	req.ContentLength = 0
	req.Body = http.NoBody
	req.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
	return true
}
