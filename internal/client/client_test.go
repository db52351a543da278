package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/quickrank/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *APIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.NewConfig()
	cfg.BaseURL = server.URL
	cfg.APIToken = "token-123"
	cfg.RateLimit = 100
	return NewAPIClient(cfg, opts...)
}

func TestGet_DecodesAndSendsHeaders(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks/abc", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("batch"))
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	var out struct {
		Success bool `json:"success"`
	}
	require.NoError(t, c.Get(context.Background(), "/tasks/abc?batch=true", &out))
	assert.True(t, out.Success)
}

func TestGet_NonOKReturnsHTTPError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	err := c.Get(context.Background(), "/tasks/x", nil)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, "boom", httpErr.Body)
	assert.Equal(t, "/tasks/x", httpErr.Endpoint)
}

func TestGet_MalformedJSON(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	var out map[string]any
	err := c.Get(context.Background(), "/tasks/x", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error decoding response")
}

func TestPostJSON_WithoutTokenMakesNoRequest(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, WithToken(""))

	err := c.PostJSON(context.Background(), "/ranking/job/1", map[string]any{}, nil)

	assert.ErrorIs(t, err, ErrMissingToken)
	assert.Zero(t, calls.Load())
}

func TestPostJSON_SendsBody(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["sync"])
		_, _ = w.Write([]byte(`{"success":true,"taskId":"t-1"}`))
	})

	var out struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, c.PostJSON(context.Background(), "/ranking/job/1", map[string]any{"sync": false}, &out))
	assert.Equal(t, "t-1", out.TaskID)
}

func TestPostFile_Multipart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cvs.zip")
	require.NoError(t, os.WriteFile(path, []byte("zip-bytes"), 0600))

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "cvs.zip", header.Filename)
		assert.Equal(t, "zip-bytes", string(data))
		_, _ = w.Write([]byte(`{"success":true,"batchTaskId":"cv-1","totalFiles":3}`))
	})

	var out struct {
		BatchTaskID string `json:"batchTaskId"`
	}
	require.NoError(t, c.PostFile(context.Background(), "/employer/quick-rank/upload-cv", "file", path, &out))
	assert.Equal(t, "cv-1", out.BatchTaskID)
}

func TestRequest_CancelledContext(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Get(ctx, "/tasks/x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
