package media

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnledger/editor-api/pkg/config"
)

func newTestClient(t *testing.T, handler http.Handler, chunkSize int64) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.MediaConfig{BaseURL: srv.URL, ChunkSize: chunkSize}, nil)
}

func TestCreateProcessingJob(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/assets", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			MimeType string `json:"mimeType"`
			Size     int64  `json:"size"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "intro.mp4", req.Name)
		assert.Equal(t, int64(2048), req.Size)
		json.NewEncoder(w).Encode(ProcessingJob{AssetID: "asset-1", UploadTarget: "http://upload.test/asset-1"})
	})
	client := newTestClient(t, mux, 0)

	job, err := client.CreateProcessingJob(context.Background(), "intro.mp4", JobOptions{MimeType: "video/mp4", Size: 2048})
	require.NoError(t, err)
	assert.Equal(t, "asset-1", job.AssetID)
	assert.Equal(t, "http://upload.test/asset-1", job.UploadTarget)
}

func TestUploadChunksStreamsWithRanges(t *testing.T) {
	var ranges []string
	var received bytes.Buffer
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ranges = append(ranges, r.Header.Get("Content-Range"))
		body, _ := io.ReadAll(r.Body)
		received.Write(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(config.MediaConfig{BaseURL: srv.URL, ChunkSize: 4}, nil)

	payload := "0123456789"
	var progress []int64
	err := client.UploadChunks(context.Background(), srv.URL, strings.NewReader(payload), int64(len(payload)), func(sent, total int64) {
		progress = append(progress, sent)
		assert.Equal(t, int64(len(payload)), total)
	})
	require.NoError(t, err)

	assert.Equal(t, payload, received.String())
	assert.Equal(t, []string{"bytes 0-3/10", "bytes 4-7/10", "bytes 8-9/10"}, ranges)
	assert.Equal(t, []int64{4, 8, 10}, progress)
}

func TestUploadChunksFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(config.MediaConfig{BaseURL: srv.URL, ChunkSize: 4}, nil)
	err := client.UploadChunks(context.Background(), srv.URL, strings.NewReader("abcd"), 4, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestGetAssetStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/assets/asset-1/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(AssetStatus{Phase: PhaseReady, ContentCID: "cid-123"})
	})
	client := newTestClient(t, mux, 0)

	status, err := client.GetAssetStatus(context.Background(), "asset-1")
	require.NoError(t, err)
	assert.Equal(t, PhaseReady, status.Phase)
	assert.Equal(t, "cid-123", status.ContentCID)
}
