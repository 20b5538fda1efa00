package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a convenience façade over Session: a small object-storage-shaped
// API whose PutObject drives the resumable protocol, while the read-side
// calls (Delete/Download/Get/List/Stat) send a single JSON request/response
// against the same backend. Every call, upload or not, goes through the
// shared Transport so it benefits from the same bounded concurrency and
// retry policy.
type Client struct {
	accessKey  string
	chunkSize  int
	endpoint   string
	logger     *log.Logger
	transport  *Transport
	maxRetries int
}

// IUploadClient is the interface implemented by Client; kept so callers that
// depend on it by interface type can substitute a fake in tests.
type IUploadClient interface {
	DeleteObject(ctx context.Context, bucketName, objectName string) error
	DownloadObject(ctx context.Context, bucketName, objectName string, w io.Writer) error
	GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error)
	ListObjects(ctx context.Context, bucketName, path string) ([]ObjectInfo, error)
	PutObject(ctx context.Context, bucketName, objectName string, r io.Reader, size int64, opts *PutOptions) (*UploadResult, error)
	StatObject(ctx context.Context, bucketName, objectName string) (*ObjectInfo, error)
}

// NewClient creates a new upload client.
func NewClient(options *UploadClientOptions) *Client {
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{
			Timeout: 30 * time.Second, // 30 seconds timeout
		}
	}
	if options.Logger == nil {
		options.Logger = log.New(log.Writer(), "[UPLOADER] ", log.Flags())
	}

	return &Client{
		accessKey:  options.AccessKey,
		chunkSize:  options.ChunkSize,
		endpoint:   options.Endpoint,
		logger:     options.Logger,
		transport:  NewTransport(options.HTTPClient, options.MaxConcurrentRequests, options.Logger),
		maxRetries: options.MaxRetries,
	}
}

// NewClientWithDefaults creates a new upload client with default options.
func NewClientWithDefaults(endpoint, accessKey string) *Client {
	return NewClient(&UploadClientOptions{
		AccessKey: accessKey,
		ChunkSize: DefaultChunkSize,
		Endpoint:  endpoint,
	})
}

// PutObject uploads r (size bytes, or a non-positive size if unknown) to
// bucket/objectName via the resumable session driver. When
// opts.ChecksumAlgorithm is set, the payload is buffered in memory so its
// checksum can be computed before the session starts.
func (c *Client) PutObject(ctx context.Context, bucketName, objectName string, r io.Reader, size int64, opts *PutOptions) (*UploadResult, error) {
	source := r
	var checksum string

	if opts != nil && opts.ChecksumAlgorithm != "" {
		data, err := io.ReadAll(r)
		if err != nil {
			c.logger.Printf("Failed to read object: %v", err)
			return nil, ErrClientFailedToReadObject
		}
		sum, err := c.calculateChecksum(data, opts.ChecksumAlgorithm)
		if err != nil {
			return nil, err
		}
		checksum = sum
		source = bytes.NewReader(data)
		size = int64(len(data))
	}

	contentType := "application/octet-stream"
	var onProgress ProgressFunc
	if opts != nil {
		if opts.ContentType != "" {
			contentType = opts.ContentType
		}
		if opts.OnProgress != nil {
			onProgress = opts.OnProgress
		}
	}

	sess, err := NewSession(SessionOptions{
		Transport:   c.transport,
		BaseURI:     c.endpoint,
		Path:        fmt.Sprintf("/upload/%s/%s", bucketName, objectName),
		Method:      http.MethodPost,
		ContentType: contentType,
		Source:      source,
		TotalLength: size,
		APIKey:      c.accessKey,
		ChunkSize:   c.chunkSize,
		RetryPolicy: c.retryPolicy(),
		OnProgress:  onProgress,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, err
	}

	progress, err := sess.Upload(ctx)
	if err != nil {
		c.logger.Printf("Failed to upload object: %v", err)
		return nil, err
	}

	return &UploadResult{
		Checksum:   checksum,
		Size:       progress.BytesSent,
		SessionURI: sess.sessionURI,
	}, nil
}

// calculateChecksum calculates file checksum using the selected algorithm.
func (c *Client) calculateChecksum(data []byte, algorithm string) (string, error) {
	return checksumOf(data, algorithm, c.logger)
}

// retryPolicy builds the retry policy used for one call. Each call gets its
// own instance so one request's backoff state never carries over to the
// next.
func (c *Client) retryPolicy() RetryPolicy {
	return NewBackoffRetryPolicy(c.maxRetries)
}

// doJSON builds a JSON POST request against path and sends it through the
// shared Transport, so every façade call benefits from the same bounded
// concurrency and retry policy as the resumable upload path. The caller owns
// the response body and must close it.
func (c *Client) doJSON(ctx context.Context, path string, reqBody any) (*http.Response, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		c.logger.Printf("Failed to marshal request body: %v", err)
		return nil, ErrFailedToParseRequest
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewBuffer(jsonData))
	if err != nil {
		c.logger.Printf("Failed to create request: %v", err)
		return nil, ErrFailedToParseRequest
	}
	req.Header.Set("X-API-KEY", c.accessKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.transport.Do(ctx, req, c.retryPolicy())
	if err != nil {
		c.logger.Printf("Failed to send request: %v", err)
		return nil, ErrFailedToConnect
	}
	return resp, nil
}

// DeleteObject calls the DeleteFile handler on the server.
func (c *Client) DeleteObject(ctx context.Context, bucketName, objectName string) error {
	resp, err := c.doJSON(ctx, "/upload/delete", deleteFileRequest{Bucket: bucketName, Path: objectName})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.parseServerResponse(resp, nil)
}

// DownloadObject streams an object to the provided writer (e.g. a file).
func (c *Client) DownloadObject(ctx context.Context, bucketName, objectName string, w io.Writer) error {
	resp, err := c.doJSON(ctx, "/upload/download", downloadFileRequest{Bucket: bucketName, Path: objectName})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.parseServerResponse(resp, nil); err != nil {
		return err
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		c.logger.Printf("Failed to stream object: %v", err)
		return ErrClientFailedToReadObject
	}

	return nil
}

// GetObject calls the server's download handler and returns the raw bytes.
func (c *Client) GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	resp, err := c.doJSON(ctx, "/upload/download", downloadFileRequest{Bucket: bucketName, Path: objectName})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if err := c.parseServerResponse(resp, nil); err != nil {
			return nil, err
		}
		return nil, ErrUnknown
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Printf("Failed to read object body: %v", err)
		return nil, ErrClientFailedToReadObject
	}

	return data, nil
}

// ListObjects lists objects in a bucket.
func (c *Client) ListObjects(ctx context.Context, bucketName, path string) ([]ObjectInfo, error) {
	var result []ObjectInfo

	resp, err := c.doJSON(ctx, "/upload/list", listObjectsRequest{Bucket: bucketName, Path: path})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.parseServerResponse(resp, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// parseServerError parses the error response from the server.
func (c *Client) parseServerError(err *serverErrorBody) error {
	if err == nil {
		return nil
	}

	switch err.ErrorCode {
	case "ErrNotFound":
		return ErrResourceNotFound
	case "ErrAuthApiKey":
		return ErrUnauthorized
	case "ErrBucketNotFound":
		return ErrBucketNotFound
	case "ErrObjectNotFound":
		return ErrObjectNotFound
	case "ErrObjectFailedToCreateDir":
		return ErrObjectFailedToCreateDir
	case "ErrObjectFailedToCreateObj":
		return ErrObjectFailedToCreateObject
	case "ErrObjectFailedToOpen":
		return ErrObjectFailedToOpen
	case "ErrObjectInvalidDataURI":
		return ErrObjectInvalidDataURI
	}

	return ErrUnknown
}

// parseServerResponse parses the response from the server.
func (c *Client) parseServerResponse(resp *http.Response, out any) error {
	var response serverResponse

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Printf("Failed to read response body: %v", err)
		return ErrParseResponseFailed
	}

	err = json.Unmarshal(body, &response)
	if err != nil {
		c.logger.Printf("Failed to unmarshal response body: %v", err)
		return ErrParseResponseFailed
	}

	if out != nil {
		err = json.Unmarshal(response.Data, out)
		if err != nil {
			c.logger.Printf("Failed to unmarshal response body: %v", err)
			return ErrParseResponseFailed
		}
	}

	return c.parseServerError(response.Error)
}

// StatObject returns information about an object in a bucket.
func (c *Client) StatObject(ctx context.Context, bucketName, objectName string) (*ObjectInfo, error) {
	var result ObjectInfo

	resp, err := c.doJSON(ctx, "/upload/stat", statObjectRequest{Bucket: bucketName, Path: objectName})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.parseServerResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}
