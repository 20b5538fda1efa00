package uploader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	// DefaultChunkSize is used when SessionOptions.ChunkSize is zero.
	DefaultChunkSize = 10 << 20 // 10 MiB
	// MinChunkSize is the protocol-defined minimum chunk size; the final
	// chunk of an upload is exempt from it.
	MinChunkSize = 256 << 10 // 256 KiB
)

// SessionOptions configures a Session at construction. Source, Path, and
// Method are required; ContentType is sent as given (NewSession does not
// check it); everything else has a sensible default.
type SessionOptions struct {
	Transport *Transport

	BaseURI     string
	Path        string // may contain "{name}" path-parameter placeholders
	Method      string // HTTP method of the init request, e.g. POST or PUT
	ContentType string // content type of the payload (X-Upload-Content-Type)

	Source      io.Reader // the byte stream to upload; owned by the caller
	TotalLength int64     // explicit override when positive; 0 or negative means "detect"

	Metadata   any // serialized and sent as the init request body; nil = no body
	Serializer Serializer

	// Params, when non-nil, is introspected via `param:"name,location"`
	// struct tags to populate path/query parameters on the init request.
	Params any
	APIKey string

	ChunkSize int

	RetryPolicy RetryPolicy

	OnProgress  ProgressFunc
	OnResponse  ResponseFunc
	NewResponse func() any // builds a fresh zero value to decode the completion response into

	Logger *log.Logger
}

// Session is the unit of one upload attempt. It is not reusable: once Upload
// or UploadAsync has been called, construct a new Session to retry the whole
// exchange from scratch.
type Session struct {
	transport   *Transport
	retryPolicy RetryPolicy

	baseURI     string
	path        string
	method      string
	contentType string
	apiKey      string

	metadata   any
	serializer Serializer
	params     any

	chunkSize int

	onProgress ProgressFunc
	onResponse ResponseFunc
	logger     *log.Logger

	idempotencyID string

	source      io.Reader
	seekSource  io.ReadSeeker
	totalLength int64
	totalKnown  bool
	windower    *knownSizeWindower
	buffer      *chunkBuffer

	sessionURI string
	bytesSent  int64

	progress atomic.Pointer[Progress]
	started  bool
}

// NewSession validates opts and constructs a Session. Caller misuse (nil
// source, empty method/path, invalid chunk size) is rejected here, never at
// Upload time.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Source == nil {
		return nil, ErrNilSource
	}
	if strings.TrimSpace(opts.Method) == "" {
		return nil, ErrEmptyMethod
	}
	if strings.TrimSpace(opts.Path) == "" {
		return nil, ErrEmptyPath
	}

	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}

	transport := opts.Transport
	if transport == nil {
		transport = NewTransport(nil, 0, opts.Logger)
	}
	retryPolicy := opts.RetryPolicy
	if retryPolicy == nil {
		retryPolicy = NewBackoffRetryPolicy(0)
	}
	serializer := opts.Serializer
	if serializer == nil {
		serializer = newJSONSerializer(opts.NewResponse)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[uploader] ", log.Flags())
	}

	s := &Session{
		transport:     transport,
		retryPolicy:   retryPolicy,
		baseURI:       opts.BaseURI,
		path:          opts.Path,
		method:        opts.Method,
		contentType:   opts.ContentType,
		apiKey:        opts.APIKey,
		metadata:      opts.Metadata,
		serializer:    serializer,
		params:        opts.Params,
		chunkSize:     chunkSize,
		onProgress:    opts.OnProgress,
		onResponse:    opts.OnResponse,
		logger:        logger,
		idempotencyID: uuid.New().String(),
		source:        opts.Source,
	}

	if seeker, total, ok := detectSize(opts.Source, opts.TotalLength); ok {
		s.seekSource = seeker
		s.totalLength = total
		s.totalKnown = true
		s.windower = newKnownSizeWindower(seeker, total, chunkSize)
	} else {
		s.buffer = newChunkBuffer(opts.Source, chunkSize)
	}

	s.progress.Store(&Progress{Status: Starting})
	return s, nil
}

// detectSize tries to establish a finite total length for src, selecting the
// known-size regime. override, when positive, is used as the total length
// provided src is an io.ReadSeeker; for any other src the unknown-size regime
// is selected and override is ignored. Otherwise src must be an io.ReadSeeker
// that also reports its own size (the sizer interface, satisfied by
// *bytes.Reader and *strings.Reader out of the box) or an *os.File.
func detectSize(src io.Reader, override int64) (io.ReadSeeker, int64, bool) {
	if override > 0 {
		if seeker, ok := src.(io.ReadSeeker); ok {
			return seeker, override, true
		}
		return nil, 0, false
	}

	seeker, ok := src.(io.ReadSeeker)
	if !ok {
		return nil, 0, false
	}
	if sz, ok := src.(sizer); ok {
		return seeker, sz.Size(), true
	}
	if f, ok := src.(*os.File); ok {
		if info, err := f.Stat(); err == nil {
			return seeker, info.Size(), true
		}
	}
	return nil, 0, false
}

// Progress returns the latest progress snapshot. Safe for concurrent use
// alongside UploadAsync: published via atomic.Pointer.
func (s *Session) Progress() Progress {
	return *s.progress.Load()
}

func (s *Session) emit(p Progress) {
	s.progress.Store(&p)
	if s.onProgress != nil {
		s.onProgress(p)
	}
}

// Upload runs the session to completion, blocking the calling goroutine. It
// must be called at most once.
func (s *Session) Upload(ctx context.Context) (Progress, error) {
	if s.started {
		return Progress{}, errors.New("uploader: session already started")
	}
	s.started = true

	s.emit(Progress{Status: Starting})

	if err := ctx.Err(); err != nil {
		return s.cancel(err)
	}

	if err := s.init(ctx); err != nil {
		return s.fail(err)
	}

	hook := &sessionRecoveryHook{
		sessionURI:    s.sessionURI,
		idempotencyID: s.idempotencyID,
		totalLength:   func() (int64, bool) { return s.totalLength, s.totalKnown },
	}
	s.transport.registerHook(s.sessionURI, hook)
	defer s.transport.deregisterHook(s.sessionURI)

	if s.totalKnown && s.totalLength == 0 {
		return s.runEmptyPayload(ctx)
	}

	for {
		if err := ctx.Err(); err != nil {
			return s.cancel(err)
		}

		req, startOffset, length, err := s.buildChunkRequest(ctx)
		if err != nil {
			if isCancellation(err) {
				return s.cancel(err)
			}
			return s.fail(err)
		}

		resp, err := s.transport.Do(ctx, req, s.retryPolicy)
		if err != nil {
			if isCancellation(err) {
				return s.cancel(err)
			}
			return s.fail(err)
		}

		done, progressErr := s.classify(resp, startOffset, length)
		if progressErr != nil {
			return s.fail(progressErr)
		}
		if done {
			return s.Progress(), nil
		}
	}
}

// UploadAsync runs Upload on a new goroutine and delivers its single
// terminal Result on the returned channel.
func (s *Session) UploadAsync(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		p, err := s.Upload(ctx)
		ch <- Result{Progress: p, Err: err}
		close(ch)
	}()
	return ch
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Session) fail(err error) (Progress, error) {
	s.emit(Progress{Status: Failed, BytesSent: s.bytesSent, Err: err})
	return s.Progress(), err
}

func (s *Session) cancel(err error) (Progress, error) {
	s.emit(Progress{Status: Cancelled, BytesSent: s.bytesSent, Err: err})
	return s.Progress(), err
}

// init sends the initialization request and stores the returned session URI.
func (s *Session) init(ctx context.Context) error {
	body, contentType, err := s.serializer.Marshal(s.metadata)
	if err != nil {
		return err
	}

	bindings := projectParams(s.params)
	target := s.baseURI + applyParams(s.path, bindings, s.apiKey)

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, s.method, target, bodyReader)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Upload-Content-Type", s.contentType)
	if s.totalKnown {
		req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(s.totalLength, 10))
	}
	req.Header.Set("X-Idempotency-Key", s.idempotencyID)

	resp, err := s.transport.Do(ctx, req, s.retryPolicy)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return DecodeErrorDocument(resp.StatusCode, data)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return ErrMissingLocation
	}
	s.sessionURI = location
	s.emit(Progress{Status: Uploading, BytesSent: 0})
	return nil
}

// runEmptyPayload handles the empty-payload special case: exactly one chunk
// request, empty body, "bytes */0".
func (s *Session) runEmptyPayload(ctx context.Context) (Progress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.sessionURI, http.NoBody)
	if err != nil {
		return s.fail(err)
	}
	req.Header.Set("Content-Range", "bytes */0")
	req.Header.Set("Content-Length", "0")
	req.Header.Set("X-Idempotency-Key", s.idempotencyID)
	req.ContentLength = 0

	resp, err := s.transport.Do(ctx, req, s.retryPolicy)
	if err != nil {
		if isCancellation(err) {
			return s.cancel(err)
		}
		return s.fail(err)
	}
	done, progressErr := s.classify(resp, 0, 0)
	if progressErr != nil {
		return s.fail(progressErr)
	}
	if !done {
		return s.fail(errors.New("uploader: empty-payload upload did not complete in one request"))
	}
	return s.Progress(), nil
}

// buildChunkRequest produces the next chunk PUT request against the session
// URI, using the windower when the total length is known or the buffer
// otherwise. It returns the request plus the absolute start offset and byte
// length of its body, for bytesSent bookkeeping once the response is
// classified.
func (s *Session) buildChunkRequest(ctx context.Context) (req *http.Request, startOffset int64, length int64, err error) {
	checkCancel := func() error { return ctx.Err() }

	var data []byte

	if s.windower != nil {
		data, _, err = s.windower.next(s.bytesSent)
		if err != nil {
			return nil, 0, 0, err
		}
		startOffset = s.bytesSent
		length = int64(len(data))
	} else {
		s.buffer.window(s.bytesSent)
		isFinal, total, fillErr := s.buffer.fill(checkCancel)
		if fillErr != nil {
			return nil, 0, 0, fillErr
		}
		if isFinal {
			s.totalLength = total
			s.totalKnown = true
		}
		data = s.buffer.buf[:s.buffer.usedLen]
		startOffset = s.buffer.startOffset
		length = int64(s.buffer.usedLen)
	}

	totalStr := totalLengthString(s.totalLength, s.totalKnown)
	req, err = http.NewRequestWithContext(ctx, http.MethodPut, s.sessionURI, bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}
	req.ContentLength = length
	req.Header.Set("Content-Range", formatContentRange(startOffset, length, totalStr))
	req.Header.Set("X-Idempotency-Key", s.idempotencyID)

	return req, startOffset, length, nil
}

// classify interprets a chunk response, updating bytesSent and emitting
// progress. done reports whether the session reached a terminal success.
func (s *Session) classify(resp *http.Response, startOffset, length int64) (done bool, err error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return false, readErr
		}
		s.bytesSent = startOffset + length

		if len(data) > 0 {
			decoded, decErr := s.serializer.Unmarshal(data)
			if decErr != nil {
				return false, decErr
			}
			if decoded != nil && s.onResponse != nil {
				s.onResponse(decoded)
			}
		}
		s.emit(Progress{Status: Completed, BytesSent: s.bytesSent})
		return true, nil

	case resp.StatusCode == http.StatusPermanentRedirect: // 308 Resume Incomplete
		rangeHeader := resp.Header.Get("Range")
		next, ok := parseRangeHeader(rangeHeader)
		if !ok {
			if rangeHeader == "" {
				return false, ErrMissingRangeOnMVR
			}
			return false, ErrMalformedRange
		}
		s.bytesSent = next
		s.emit(Progress{Status: Uploading, BytesSent: s.bytesSent})
		return false, nil

	default:
		data, _ := io.ReadAll(resp.Body)
		return false, DecodeErrorDocument(resp.StatusCode, data)
	}
}
