package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/learnledger/editor-api/internal/media"
	"github.com/learnledger/editor-api/internal/models"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
	"github.com/learnledger/editor-api/pkg/retry"
)

// MediaClient is the slice of the media service this orchestrator consumes.
type MediaClient interface {
	CreateProcessingJob(ctx context.Context, name string, opts media.JobOptions) (*media.ProcessingJob, error)
	UploadChunks(ctx context.Context, target string, r io.Reader, size int64, onProgress media.ProgressFunc) error
	GetAssetStatus(ctx context.Context, assetID string) (*media.AssetStatus, error)
}

// UploadRequest describes one file to push through the media pipeline.
type UploadRequest struct {
	LocalID  string
	Filename string
	MimeType string
	Size     int64
	Content  io.Reader
	Progress media.ProgressFunc
}

// UploadServiceConfig bounds the processing-status poll loop.
type UploadServiceConfig struct {
	PollInterval time.Duration
	PollAttempts int
}

// UploadService drives one chunked upload end to end: create the remote
// processing job, stream the bytes, then poll status until the content
// identifier exists. The remote side finalizes asynchronously, so transport
// completion never implies the identifier is available yet.
type UploadService struct {
	client  MediaClient
	metrics *MetricsService
	cfg     UploadServiceConfig
	logger  *zap.Logger
}

// NewUploadService constructs the orchestrator.
func NewUploadService(client MediaClient, metrics *MetricsService, cfg UploadServiceConfig, logger *zap.Logger) *UploadService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadService{client: client, metrics: metrics, cfg: cfg, logger: logger}
}

// Upload runs the full pipeline for one file. The returned asset is ready
// (content identifier set) on success; on failure the asset records the
// failure alongside the returned error.
func (s *UploadService) Upload(ctx context.Context, req UploadRequest) (*models.MediaAsset, error) {
	asset := &models.MediaAsset{LocalID: req.LocalID, Status: models.MediaQueued}
	start := time.Now()

	job, err := s.client.CreateProcessingJob(ctx, req.Filename, media.JobOptions{MimeType: req.MimeType, Size: req.Size})
	if err != nil {
		return s.fail(asset, appErrors.Wrap(err, appErrors.ErrUpload.Code, appErrors.ErrUpload.Status, "failed to create processing job"))
	}
	asset.RemoteAssetID = job.AssetID
	asset.Status = models.MediaUploading

	if err := s.client.UploadChunks(ctx, job.UploadTarget, req.Content, req.Size, req.Progress); err != nil {
		return s.fail(asset, appErrors.Wrap(err, appErrors.ErrUpload.Code, appErrors.ErrUpload.Status, "chunked upload failed"))
	}
	asset.Status = models.MediaProcessing

	err = retry.Poll(ctx, retry.Config{Interval: s.cfg.PollInterval, MaxAttempts: s.cfg.PollAttempts}, func(ctx context.Context) (bool, error) {
		status, err := s.client.GetAssetStatus(ctx, job.AssetID)
		if err != nil {
			s.logger.Warn("asset status poll failed", zap.String("asset", job.AssetID), zap.Error(err))
			return false, nil
		}
		switch status.Phase {
		case media.PhaseReady:
			asset.ContentCID = status.ContentCID
			return true, nil
		case media.PhaseFailed:
			detail := status.ErrorMessage
			if detail == "" {
				detail = "processing failed"
			}
			return false, appErrors.Clone(appErrors.ErrProcessingFailed, detail)
		default:
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, retry.ErrAttemptsExhausted) {
			budget := time.Duration(s.cfg.PollAttempts) * s.cfg.PollInterval
			err = appErrors.Clone(appErrors.ErrProcessingTimeout, fmt.Sprintf("asset %s not ready after %s", job.AssetID, budget))
		}
		return s.fail(asset, err)
	}

	asset.Status = models.MediaReady
	if s.metrics != nil {
		s.metrics.ObserveUpload(time.Since(start))
	}
	s.logger.Info("media upload finished",
		zap.String("asset", asset.RemoteAssetID),
		zap.String("cid", asset.ContentCID),
		zap.Duration("took", time.Since(start)))
	return asset, nil
}

func (s *UploadService) fail(asset *models.MediaAsset, err error) (*models.MediaAsset, error) {
	asset.Status = models.MediaFailed
	asset.Error = err.Error()
	return asset, err
}
