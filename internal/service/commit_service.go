package service

import (
	"context"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/learnledger/editor-api/internal/models"
	"github.com/learnledger/editor-api/pkg/config"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
	"github.com/learnledger/editor-api/pkg/jobs"
)

// DraftAccess is the slice of the draft store the commit pipeline consumes.
type DraftAccess interface {
	Get(ctx context.Context, key DraftKey) (models.DraftSnapshot, error)
	Diff(ctx context.Context, key DraftKey) (models.PendingChangeSet, error)
	SetSectionContent(ctx context.Context, key DraftKey, localID, contentCID string) error
	ApplyReport(ctx context.Context, key DraftKey, meta models.CourseMetadata, results []models.JobResult) error
	Discard(ctx context.Context, key DraftKey) error
}

// Uploader pushes one staged file through the media pipeline.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*models.MediaAsset, error)
}

// BatchExecutor runs a batch of ledger writes in order.
type BatchExecutor interface {
	Execute(ctx context.Context, batch []models.TransactionJob, offset, total int, onProgress ProgressFunc) (models.CommitReport, error)
}

// CacheInvalidator drops cached reads after a successful write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// MediaSource provides the staged bytes for a section's pending upload.
type MediaSource interface {
	Open(courseID int64, author, localID string) (io.ReadCloser, int64, error)
	Remove(courseID int64, author, localID string)
}

// CommitService turns a draft's pending change set into an ordered batch of
// ledger writes and drives it to completion. Commits run asynchronously on a
// serial queue: the signing account has one write counter, so two runs must
// never interleave.
type CommitService struct {
	drafts    DraftAccess
	uploader  Uploader
	sequencer BatchExecutor
	cache     CacheInvalidator
	media     MediaSource
	registry  *CommitRegistry
	metrics   *MetricsService
	limits    config.LimitsConfig
	warm      func(ctx context.Context, courseID int64)
	cfg       config.CommitsConfig
	logger    *zap.Logger

	queue *jobs.Queue
}

type commitPayload struct {
	RunID string
	Key   DraftKey
}

// NewCommitService constructs the controller. cache and media may be nil.
func NewCommitService(
	drafts DraftAccess,
	uploader Uploader,
	sequencer BatchExecutor,
	cache CacheInvalidator,
	media MediaSource,
	registry *CommitRegistry,
	metrics *MetricsService,
	limits config.LimitsConfig,
	cfg config.CommitsConfig,
	logger *zap.Logger,
) *CommitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CommitService{
		drafts:    drafts,
		uploader:  uploader,
		sequencer: sequencer,
		cache:     cache,
		media:     media,
		registry:  registry,
		metrics:   metrics,
		limits:    limits,
		cfg:       cfg,
		logger:    logger,
	}
	s.queue = jobs.NewQueue("commits", s.handleJob, jobs.QueueConfig{
		BufferSize: cfg.QueueSize,
		Logger:     logger,
	})
	return s
}

// SetCacheWarmer installs an optional hook that refreshes the cached course
// read after the stale entries have been dropped.
func (s *CommitService) SetCacheWarmer(fn func(ctx context.Context, courseID int64)) {
	s.warm = fn
}

// Start begins consuming queued commit runs.
func (s *CommitService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatcher.
func (s *CommitService) Stop() {
	s.queue.Stop()
}

// Submit queues a commit run for the draft and returns its tracking record.
// At most one run per draft may be in flight.
func (s *CommitService) Submit(courseID int64, author string) (models.CommitRun, error) {
	run, ok := s.registry.CreateIfIdle(courseID, author)
	if !ok {
		return models.CommitRun{}, appErrors.Clone(appErrors.ErrConflict, "a commit is already in progress for this draft")
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      run.ID,
		Type:    "commit",
		Payload: commitPayload{RunID: run.ID, Key: DraftKey{CourseID: courseID, Author: author}},
	})
	if err != nil {
		s.registry.Finish(run.ID, nil, err)
		return models.CommitRun{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue commit")
	}
	return run, nil
}

// Status returns the tracked state of one run.
func (s *CommitService) Status(runID string) (models.CommitRun, error) {
	return s.registry.Get(runID)
}

func (s *CommitService) handleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(commitPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	outcome, err := s.run(ctx, payload.RunID, payload.Key)
	s.registry.Finish(payload.RunID, outcome, err)

	status := "failed"
	if outcome != nil {
		status = string(outcome.Status)
	}
	if s.metrics != nil {
		s.metrics.RecordCommit(status)
	}
	s.logger.Info("commit run finished",
		zap.String("run", payload.RunID),
		zap.Int64("course", payload.Key.CourseID),
		zap.String("status", status))
	return err
}

// run executes the full pipeline. A returned outcome always describes the
// terminal state; err is reserved for failures outside the draft's control.
func (s *CommitService) run(ctx context.Context, runID string, key DraftKey) (*models.CommitOutcome, error) {
	s.registry.SetPhase(runID, models.PhaseValidating)

	snap, err := s.drafts.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if violations := s.validate(snap); len(violations) > 0 {
		return &models.CommitOutcome{Status: models.CommitStatusRejected, Errors: violations}, nil
	}

	s.registry.SetPhase(runID, models.PhaseUploading)
	if err := s.uploadPending(ctx, key, snap); err != nil {
		return &models.CommitOutcome{
			Status: models.CommitStatusFailed,
			Errors: []string{err.Error()},
		}, err
	}

	diff, err := s.drafts.Diff(ctx, key)
	if err != nil {
		return nil, err
	}
	if diff.Empty() {
		return &models.CommitOutcome{Status: models.CommitStatusNoChanges}, nil
	}

	batch := s.buildBatch(key.CourseID, snap.Metadata, diff)
	total := len(batch)
	if diff.ReorderNeeded {
		total++
	}

	s.registry.SetPhase(runID, models.PhaseSubmitting)
	onProgress := func(e models.ProgressEvent) { s.registry.SetProgress(runID, e) }

	report, execErr := s.sequencer.Execute(ctx, batch, 0, total, onProgress)
	report.Total = total

	// The reorder payload can only be finalized once every add receipt has
	// assigned a ledger ID, so it runs as a second batch and is skipped when
	// anything in the first batch failed.
	if diff.ReorderNeeded {
		if execErr == nil && report.Completed == len(batch) {
			ids, resolveErr := resolveOrder(diff.FinalOrder, report.Results)
			if resolveErr != nil {
				report.Results = append(report.Results, models.JobResult{
					Kind:   models.JobReorder,
					Status: models.JobFailed,
					Detail: resolveErr.Error(),
				})
				execErr = resolveErr
			} else {
				reorder := []models.TransactionJob{{
					Kind:   models.JobReorder,
					Class:  models.ClassReorder,
					Method: "reorderSections",
					Args:   []interface{}{key.CourseID, ids},
				}}
				second, reorderErr := s.sequencer.Execute(ctx, reorder, report.Completed, total, onProgress)
				report.Results = append(report.Results, second.Results...)
				report.Completed += second.Completed
				execErr = reorderErr
			}
		} else {
			report.Results = append(report.Results, models.JobResult{
				Kind:   models.JobReorder,
				Status: models.JobFailed,
				Detail: "skipped: earlier job in the batch did not confirm",
			})
		}
	}

	outcome := summarize(diff, report)

	// On a partial outcome the confirmed writes are already on the ledger.
	// Fold them into the session so a retried commit only resubmits the
	// remainder instead of duplicating confirmed adds.
	if outcome.Status == models.CommitStatusPartial {
		if err := s.drafts.ApplyReport(ctx, key, snap.Metadata, report.Results); err != nil {
			s.logger.Warn("draft reconciliation failed", zap.Int64("course", key.CourseID), zap.Error(err))
		}
	}

	if report.Completed > 0 && s.cache != nil {
		if err := s.cache.Invalidate(ctx, CourseKeyPattern(key.CourseID)); err != nil {
			s.logger.Warn("cache invalidation failed", zap.Int64("course", key.CourseID), zap.Error(err))
		}
		if s.warm != nil {
			s.warm(ctx, key.CourseID)
		}
	}
	if outcome.Status == models.CommitStatusCommitted {
		if err := s.drafts.Discard(ctx, key); err != nil {
			s.logger.Warn("draft discard failed", zap.Int64("course", key.CourseID), zap.Error(err))
		}
	}

	if execErr != nil {
		s.logger.Warn("commit run ended early", zap.String("run", runID), zap.Error(execErr))
	}
	return outcome, nil
}

// validate aggregates every limit violation before any network work.
func (s *CommitService) validate(snap models.DraftSnapshot) []string {
	var violations []string
	meta := snap.Metadata

	if meta.Title == "" {
		violations = append(violations, "title is required")
	} else if s.limits.TitleMax > 0 && len(meta.Title) > s.limits.TitleMax {
		violations = append(violations, fmt.Sprintf("title exceeds %d characters", s.limits.TitleMax))
	}
	if s.limits.DescriptionMax > 0 && len(meta.Description) > s.limits.DescriptionMax {
		violations = append(violations, fmt.Sprintf("description exceeds %d characters", s.limits.DescriptionMax))
	}
	if meta.Price < 0 {
		violations = append(violations, "price must not be negative")
	} else if s.limits.PriceMax > 0 && meta.Price > s.limits.PriceMax {
		violations = append(violations, fmt.Sprintf("price exceeds %d", s.limits.PriceMax))
	}

	visible := 0
	for _, sec := range snap.Sections {
		if sec.State == models.SectionDeleted {
			continue
		}
		visible++
		if sec.Title == "" {
			violations = append(violations, fmt.Sprintf("section %s: title is required", sec.LocalID))
		} else if s.limits.TitleMax > 0 && len(sec.Title) > s.limits.TitleMax {
			violations = append(violations, fmt.Sprintf("section %s: title exceeds %d characters", sec.LocalID, s.limits.TitleMax))
		}
		if sec.Duration < 0 {
			violations = append(violations, fmt.Sprintf("section %s: duration must not be negative", sec.LocalID))
		} else if s.limits.DurationMaxSec > 0 && sec.Duration > s.limits.DurationMaxSec {
			violations = append(violations, fmt.Sprintf("section %s: duration exceeds %d seconds", sec.LocalID, s.limits.DurationMaxSec))
		}
		// an add or update write needs a content identifier; pending media
		// provides one during the upload phase
		if (sec.State == models.SectionNew || sec.State == models.SectionModified) &&
			sec.ContentCID == "" && sec.PendingMedia == nil {
			violations = append(violations, fmt.Sprintf("section %s: content is required", sec.LocalID))
		}
	}
	if s.limits.SectionMax > 0 && visible > s.limits.SectionMax {
		violations = append(violations, fmt.Sprintf("course exceeds %d sections", s.limits.SectionMax))
	}
	return violations
}

// uploadPending pushes every staged media file sequentially. The first
// failure aborts before any ledger write has been submitted.
func (s *CommitService) uploadPending(ctx context.Context, key DraftKey, snap models.DraftSnapshot) error {
	for _, sec := range snap.Sections {
		if sec.State == models.SectionDeleted || sec.PendingMedia == nil {
			continue
		}
		if s.media == nil {
			return appErrors.Clone(appErrors.ErrUpload, fmt.Sprintf("no staged media for section %s", sec.LocalID))
		}

		rc, size, err := s.media.Open(key.CourseID, key.Author, sec.LocalID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrUpload.Code, appErrors.ErrUpload.Status, "staged media unavailable")
		}
		asset, err := s.uploader.Upload(ctx, UploadRequest{
			LocalID:  sec.LocalID,
			Filename: sec.PendingMedia.Filename,
			MimeType: sec.PendingMedia.MimeType,
			Size:     size,
			Content:  rc,
		})
		rc.Close()
		if err != nil {
			return err
		}

		if err := s.drafts.SetSectionContent(ctx, key, sec.LocalID, asset.ContentCID); err != nil {
			return err
		}
		s.media.Remove(key.CourseID, key.Author, sec.LocalID)
	}
	return nil
}

// buildBatch encodes the diff as write jobs in their fixed ordering classes:
// metadata, deletes, updates, adds. The reorder job is built later from
// confirmed add receipts.
func (s *CommitService) buildBatch(courseID int64, meta models.CourseMetadata, diff models.PendingChangeSet) []models.TransactionJob {
	var batch []models.TransactionJob

	if diff.MetadataChanged {
		batch = append(batch, models.TransactionJob{
			Kind:   models.JobUpdateMetadata,
			Class:  models.ClassMetadata,
			Method: "updateCourse",
			Args: []interface{}{
				courseID, meta.Title, meta.Description, meta.ThumbnailCID,
				meta.CreatorName, meta.Category, meta.Difficulty, meta.Price, meta.Active,
			},
		})
	}

	for _, id := range sortedIDs(diff.SectionsToDelete) {
		batch = append(batch, models.TransactionJob{
			Kind:     models.JobDeleteSection,
			Class:    models.ClassDelete,
			Method:   "removeSection",
			Args:     []interface{}{courseID, id},
			TargetID: id,
		})
	}

	updateIDs := make([]int64, 0, len(diff.SectionsToUpdate))
	for id := range diff.SectionsToUpdate {
		updateIDs = append(updateIDs, id)
	}
	sort.Slice(updateIDs, func(i, j int) bool { return updateIDs[i] < updateIDs[j] })
	for _, id := range updateIDs {
		sec := diff.SectionsToUpdate[id]
		batch = append(batch, models.TransactionJob{
			Kind:     models.JobUpdateSection,
			Class:    models.ClassUpdate,
			Method:   "updateSection",
			Args:     []interface{}{courseID, id, sec.Title, sec.ContentCID, sec.Duration},
			TargetID: id,
		})
	}

	for _, sec := range diff.SectionsToAdd {
		batch = append(batch, models.TransactionJob{
			Kind:    models.JobAddSection,
			Class:   models.ClassAdd,
			Method:  "addSection",
			Args:    []interface{}{courseID, sec.Title, sec.ContentCID, sec.Duration},
			LocalID: sec.LocalID,
		})
	}

	SortJobs(batch)
	return batch
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// resolveOrder substitutes confirmed add receipts into the final order.
func resolveOrder(order []models.OrderRef, results []models.JobResult) ([]int64, error) {
	assigned := make(map[string]int64)
	for _, r := range results {
		if r.Kind == models.JobAddSection && r.Status == models.JobSucceeded && r.LocalID != "" {
			assigned[r.LocalID] = r.AssignedID
		}
	}

	ids := make([]int64, 0, len(order))
	for _, ref := range order {
		if ref.LedgerID != 0 {
			ids = append(ids, ref.LedgerID)
			continue
		}
		id, ok := assigned[ref.LocalID]
		if !ok || id == 0 {
			return nil, fmt.Errorf("no assigned id for section %s", ref.LocalID)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// summarize folds the per-job report into the commit outcome.
func summarize(diff models.PendingChangeSet, report models.CommitReport) *models.CommitOutcome {
	outcome := &models.CommitOutcome{Report: report}

	for _, r := range report.Results {
		if r.Status != models.JobSucceeded {
			if r.Detail != "" {
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %s", r.Kind, r.Detail))
			}
			continue
		}
		switch r.Kind {
		case models.JobUpdateMetadata:
			outcome.Metadata = true
		case models.JobAddSection:
			outcome.Added++
		case models.JobUpdateSection:
			outcome.Updated++
		case models.JobDeleteSection:
			outcome.Deleted++
		case models.JobReorder:
			outcome.Reordered = true
		}
	}

	switch {
	case report.Succeeded():
		outcome.Status = models.CommitStatusCommitted
	case report.Completed == 0:
		outcome.Status = models.CommitStatusFailed
	default:
		outcome.Status = models.CommitStatusPartial
	}
	return outcome
}
