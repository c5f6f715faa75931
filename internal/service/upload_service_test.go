package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/learnledger/editor-api/internal/media"
	"github.com/learnledger/editor-api/internal/models"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

type fakeMediaClient struct {
	jobErr    error
	uploadErr error
	statuses  []media.AssetStatus
	statusErr error

	statusCalls int
	uploaded    string
}

func (f *fakeMediaClient) CreateProcessingJob(_ context.Context, name string, _ media.JobOptions) (*media.ProcessingJob, error) {
	if f.jobErr != nil {
		return nil, f.jobErr
	}
	return &media.ProcessingJob{AssetID: "asset-1", UploadTarget: "https://upload.example/asset-1"}, nil
}

func (f *fakeMediaClient) UploadChunks(_ context.Context, _ string, r io.Reader, _ int64, _ media.ProgressFunc) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	b, _ := io.ReadAll(r)
	f.uploaded = string(b)
	return nil
}

func (f *fakeMediaClient) GetAssetStatus(_ context.Context, _ string) (*media.AssetStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	i := f.statusCalls
	f.statusCalls++
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	s := f.statuses[i]
	return &s, nil
}

func newUploadService(client MediaClient, attempts int) *UploadService {
	return NewUploadService(client, nil, UploadServiceConfig{
		PollInterval: time.Millisecond,
		PollAttempts: attempts,
	}, zap.NewNop())
}

func uploadReq(body string) UploadRequest {
	return UploadRequest{
		LocalID:  "local-1",
		Filename: "lesson.mp4",
		MimeType: "video/mp4",
		Size:     int64(len(body)),
		Content:  strings.NewReader(body),
	}
}

func TestUploadHappyPath(t *testing.T) {
	client := &fakeMediaClient{statuses: []media.AssetStatus{
		{Phase: media.PhaseProcessing},
		{Phase: media.PhaseReady, ContentCID: "bafy-lesson"},
	}}

	asset, err := newUploadService(client, 10).Upload(context.Background(), uploadReq("video-bytes"))
	assert.NoError(t, err)
	assert.Equal(t, models.MediaReady, asset.Status)
	assert.Equal(t, "asset-1", asset.RemoteAssetID)
	assert.Equal(t, "bafy-lesson", asset.ContentCID)
	assert.Equal(t, "video-bytes", client.uploaded)
}

func TestUploadProcessingTimeout(t *testing.T) {
	client := &fakeMediaClient{statuses: []media.AssetStatus{{Phase: media.PhaseProcessing}}}

	asset, err := newUploadService(client, 3).Upload(context.Background(), uploadReq("x"))
	assert.ErrorIs(t, err, appErrors.ErrProcessingTimeout)
	assert.Equal(t, models.MediaFailed, asset.Status)
	assert.Equal(t, 3, client.statusCalls)
}

func TestUploadProcessingFailed(t *testing.T) {
	client := &fakeMediaClient{statuses: []media.AssetStatus{
		{Phase: media.PhaseFailed, ErrorMessage: "transcode error"},
	}}

	asset, err := newUploadService(client, 10).Upload(context.Background(), uploadReq("x"))
	assert.ErrorIs(t, err, appErrors.ErrProcessingFailed)
	assert.Contains(t, err.Error(), "transcode error")
	assert.Equal(t, models.MediaFailed, asset.Status)
}

func TestUploadChunkFailureAborts(t *testing.T) {
	client := &fakeMediaClient{uploadErr: errors.New("connection reset")}

	asset, err := newUploadService(client, 10).Upload(context.Background(), uploadReq("x"))
	assert.ErrorIs(t, err, appErrors.ErrUpload)
	assert.Equal(t, models.MediaFailed, asset.Status)
	assert.Zero(t, client.statusCalls)
}

func TestUploadStatusErrorsToleratedUntilBudget(t *testing.T) {
	client := &fakeMediaClient{statusErr: errors.New("temporarily unavailable")}

	_, err := newUploadService(client, 2).Upload(context.Background(), uploadReq("x"))
	assert.ErrorIs(t, err, appErrors.ErrProcessingTimeout)
}
