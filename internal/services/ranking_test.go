package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/quickrank/internal/client"
	"github.com/kelsos/quickrank/internal/config"
	"github.com/kelsos/quickrank/internal/models"
)

func newService(t *testing.T, token string, handler http.HandlerFunc) *RankingService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.NewConfig()
	cfg.BaseURL = server.URL
	cfg.APIToken = token
	cfg.RateLimit = 100
	return NewRankingService(client.NewAPIClient(cfg))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestUploadCV(t *testing.T) {
	t.Parallel()
	svc := newService(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/employer/quick-rank/upload-cv", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "cvs.zip", header.Filename)
		assert.Equal(t, "PK", string(body))

		_, _ = w.Write([]byte(`{"success":true,"batchTaskId":"b-cv","totalFiles":3}`))
	})

	handle, err := svc.UploadCV(context.Background(), writeFile(t, "cvs.zip", "PK"))

	require.NoError(t, err)
	assert.Equal(t, models.TaskHandle{ID: "b-cv", Kind: models.KindBatch}, handle)
}

func TestUploadJD(t *testing.T) {
	t.Parallel()
	svc := newService(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/employer/quick-rank/upload-jd", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"batchTaskId":"b-jd"}`))
	})

	handle, err := svc.UploadJD(context.Background(), writeFile(t, "jd.pdf", "%PDF"))

	require.NoError(t, err)
	assert.Equal(t, models.TaskHandle{ID: "b-jd", Kind: models.KindBatch}, handle)
}

func TestUpload_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "success false with message", body: `{"success":false,"message":"quota exceeded"}`, want: "quota exceeded"},
		{name: "success false with object error", body: `{"success":false,"error":{"message":"bad archive"}}`, want: "bad archive"},
		{name: "missing id", body: `{"success":true}`, want: "no batch task id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := newService(t, "tok", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := svc.UploadCV(context.Background(), writeFile(t, "cvs.zip", "PK"))

			assert.ErrorIs(t, err, ErrRejected)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestUpload_HTTPError(t *testing.T) {
	t.Parallel()
	svc := newService(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported media", http.StatusUnsupportedMediaType)
	})

	_, err := svc.UploadJD(context.Background(), writeFile(t, "jd.txt", "x"))

	var httpErr *client.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnsupportedMediaType, httpErr.StatusCode)
}

func TestStartRanking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		candidates []string
		wantBody   string
	}{
		{name: "with candidates", candidates: []string{"c-1", "c-2"}, wantBody: `{"sync":false,"skipHardGate":true,"candidateIds":["c-1","c-2"]}`},
		{name: "without candidates", wantBody: `{"sync":false,"skipHardGate":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := newService(t, "tok", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/ranking/job/job-7", r.URL.Path)
				body, _ := io.ReadAll(r.Body)
				assert.JSONEq(t, tt.wantBody, string(body))
				_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "taskId": "rank-1"})
			})

			handle, err := svc.StartRanking(context.Background(), "job-7", tt.candidates)

			require.NoError(t, err)
			assert.Equal(t, models.TaskHandle{ID: "rank-1", Kind: models.KindSingle}, handle)
		})
	}
}

func TestMissingTokenSendsNothing(t *testing.T) {
	t.Parallel()
	svc := newService(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a token")
	})

	assert.False(t, svc.HasToken())

	_, err := svc.UploadCV(context.Background(), writeFile(t, "cvs.zip", "PK"))
	assert.ErrorIs(t, err, client.ErrMissingToken)

	_, err = svc.StartRanking(context.Background(), "job-7", nil)
	assert.ErrorIs(t, err, client.ErrMissingToken)
}
