package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/learnledger/editor-api/pkg/config"
)

// AssetPhase is the remote processing state of an uploaded asset.
type AssetPhase string

const (
	PhaseWaiting    AssetPhase = "waiting"
	PhaseProcessing AssetPhase = "processing"
	PhaseReady      AssetPhase = "ready"
	PhaseFailed     AssetPhase = "failed"
)

// ProcessingJob is the remote side of one upload: the asset record plus the
// target URL the file bytes stream to.
type ProcessingJob struct {
	AssetID      string `json:"assetId"`
	UploadTarget string `json:"uploadTarget"`
}

// AssetStatus is the polled processing state. ContentCID is present only once
// the phase is ready.
type AssetStatus struct {
	Phase        AssetPhase `json:"phase"`
	ContentCID   string     `json:"contentCid,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// JobOptions tunes the remote processing job.
type JobOptions struct {
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ProgressFunc receives byte-level upload progress.
type ProgressFunc func(sent, total int64)

// Client talks to the external media processing service over HTTP. Uploads
// stream in fixed-size chunks with Content-Range headers so an interrupted
// transfer can resume from the last acknowledged offset.
type Client struct {
	baseURL   string
	apiKey    string
	chunkSize int64
	http      *http.Client
	logger    *zap.Logger
}

// NewClient constructs the media client from config.
func NewClient(cfg config.MediaConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = 1 << 20
	}
	timeout := cfg.UploadTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		chunkSize: chunk,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// CreateProcessingJob registers a new asset and returns its upload target.
func (c *Client) CreateProcessingJob(ctx context.Context, name string, opts JobOptions) (*ProcessingJob, error) {
	payload, err := json.Marshal(struct {
		Name string `json:"name"`
		JobOptions
	}{Name: name, JobOptions: opts})
	if err != nil {
		return nil, fmt.Errorf("marshal asset request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/assets", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create asset: status %d", resp.StatusCode)
	}

	var job ProcessingJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode asset response: %w", err)
	}
	if job.AssetID == "" || job.UploadTarget == "" {
		return nil, fmt.Errorf("create asset: incomplete response")
	}
	return &job, nil
}

// UploadChunks streams size bytes from r to the upload target in chunks,
// reporting progress after each acknowledged chunk.
func (c *Client) UploadChunks(ctx context.Context, target string, r io.Reader, size int64, onProgress ProgressFunc) error {
	buf := make([]byte, c.chunkSize)
	var sent int64

	for sent < size {
		n, err := io.ReadFull(r, buf[:min64(c.chunkSize, size-sent)])
		if err != nil && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("read chunk at %d: %w", sent, err)
		}
		if n == 0 {
			return fmt.Errorf("short read at %d of %d", sent, size)
		}

		if err := c.putChunk(ctx, target, buf[:n], sent, size); err != nil {
			return err
		}
		sent += int64(n)
		if onProgress != nil {
			onProgress(sent, size)
		}
	}
	return nil
}

func (c *Client) putChunk(ctx context.Context, target string, chunk []byte, offset, total int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(chunk))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+int64(len(chunk))-1, total))
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload chunk at %d: %w", offset, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("upload chunk at %d: status %d", offset, resp.StatusCode)
	}
	return nil
}

// GetAssetStatus returns the current processing phase for an asset.
func (c *Client) GetAssetStatus(ctx context.Context, assetID string) (*AssetStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/assets/%s/status", c.baseURL, assetID), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asset status %s: status %d", assetID, resp.StatusCode)
	}

	var status AssetStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode asset status: %w", err)
	}
	return &status, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
