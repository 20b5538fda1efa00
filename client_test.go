package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&UploadClientOptions{
		AccessKey: "test-key",
		Endpoint:  srv.URL,
	})
}

func writeServerResponse(w http.ResponseWriter, status int, data any) {
	body, _ := json.Marshal(serverResponse{Data: mustRawMessage(data)})
	w.WriteHeader(status)
	w.Write(body)
}

func mustRawMessage(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, _ := json.Marshal(v)
	return raw
}

func TestClientDeleteObject(t *testing.T) {
	var gotPath, gotReq string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotReq = string(body)
		writeServerResponse(w, http.StatusOK, nil)
	})

	err := client.DeleteObject(context.Background(), "mybucket", "a/b.txt")
	require.NoError(t, err)
	require.Equal(t, "/upload/delete", gotPath)
	require.JSONEq(t, `{"bucket":"mybucket","path":"a/b.txt"}`, gotReq)
}

func TestClientDeleteObjectNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(serverResponse{Error: &serverErrorBody{ErrorCode: "ErrObjectNotFound"}})
		w.WriteHeader(http.StatusNotFound)
		w.Write(body)
	})

	err := client.DeleteObject(context.Background(), "mybucket", "missing.txt")
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestClientStatObject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload/stat", r.URL.Path)
		writeServerResponse(w, http.StatusOK, ObjectInfo{Name: "a/b.txt", Size: 453, Modified: "2026-08-02"})
	})

	info, err := client.StatObject(context.Background(), "mybucket", "a/b.txt")
	require.NoError(t, err)
	require.Equal(t, "a/b.txt", info.Name)
	require.Equal(t, int64(453), info.Size)
}

func TestClientListObjects(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload/list", r.URL.Path)
		writeServerResponse(w, http.StatusOK, []ObjectInfo{
			{Name: "a.txt", Size: 10},
			{Name: "b.txt", Size: 20},
		})
	})

	objs, err := client.ListObjects(context.Background(), "mybucket", "prefix/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	require.Equal(t, "a.txt", objs[0].Name)
	require.Equal(t, "b.txt", objs[1].Name)
}

func TestClientGetObject(t *testing.T) {
	payload := []byte("file contents")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload/download", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	})

	data, err := client.GetObject(context.Background(), "mybucket", "a/b.txt")
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestClientGetObjectNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(serverResponse{Error: &serverErrorBody{ErrorCode: "ErrObjectNotFound"}})
		w.WriteHeader(http.StatusNotFound)
		w.Write(body)
	})

	_, err := client.GetObject(context.Background(), "mybucket", "missing.txt")
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestClientDownloadObject(t *testing.T) {
	// DownloadObject parses the whole response body as the JSON envelope
	// before streaming whatever is left to w; a success response is the
	// envelope itself, with nothing left over.
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload/download", r.URL.Path)
		writeServerResponse(w, http.StatusOK, nil)
	})

	var out bytes.Buffer
	err := client.DownloadObject(context.Background(), "mybucket", "a/b.txt", &out)
	require.NoError(t, err)
	require.Empty(t, out.Bytes())
}

func TestClientDownloadObjectNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(serverResponse{Error: &serverErrorBody{ErrorCode: "ErrObjectNotFound"}})
		w.WriteHeader(http.StatusNotFound)
		w.Write(body)
	})

	var out bytes.Buffer
	err := client.DownloadObject(context.Background(), "mybucket", "missing.txt", &out)
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestClientFacadeRetriesOn503(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeServerResponse(w, http.StatusOK, ObjectInfo{Name: "a/b.txt", Size: 1})
	})
	client.maxRetries = 5

	info, err := client.StatObject(context.Background(), "mybucket", "a/b.txt")
	require.NoError(t, err)
	require.Equal(t, "a/b.txt", info.Name)
	require.Equal(t, 2, calls)
}
