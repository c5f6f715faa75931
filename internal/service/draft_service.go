package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnledger/editor-api/internal/models"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

// DraftPersistence stores draft snapshots between sessions.
type DraftPersistence interface {
	Save(ctx context.Context, snapshot models.DraftSnapshot) error
	Load(ctx context.Context, courseID int64, author string) (*models.DraftSnapshot, error)
	Delete(ctx context.Context, courseID int64, author string) error
}

// DraftKey identifies one editing session.
type DraftKey struct {
	CourseID int64
	Author   string
}

type draftSession struct {
	baselineMeta  models.CourseMetadata
	baselineOrder []int64

	meta     models.CourseMetadata
	sections []models.DraftSection
}

// DraftService maintains the draft overlay for each editing session and
// computes the pending change set against the baseline. Deletion is logical
// until commit: deleted sections keep their slot so index-based reordering in
// the UI stays stable.
type DraftService struct {
	mu       sync.Mutex
	sessions map[DraftKey]*draftSession
	repo     DraftPersistence
	logger   *zap.Logger
}

// NewDraftService constructs the service. repo may be nil when draft
// persistence is disabled.
func NewDraftService(repo DraftPersistence, logger *zap.Logger) *DraftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftService{
		sessions: make(map[DraftKey]*draftSession),
		repo:     repo,
		logger:   logger,
	}
}

// SectionInput carries the editable fields for add and update operations.
type SectionInput struct {
	Title        string
	ContentCID   string
	Duration     int64
	PendingMedia *models.MediaUpload
}

// Open starts or resumes an editing session from the course baseline. A
// persisted snapshot, if any, wins over a fresh baseline mirror.
func (s *DraftService) Open(ctx context.Context, key DraftKey, course *models.Course, baseline []models.BaselineSection) (models.DraftSnapshot, error) {
	session := &draftSession{
		baselineMeta:  course.Metadata,
		baselineOrder: baselineIDs(baseline),
		meta:          course.Metadata,
		sections:      mirrorBaseline(baseline),
	}

	if s.repo != nil {
		stored, err := s.repo.Load(ctx, key.CourseID, key.Author)
		switch {
		case err == nil:
			session.meta = stored.Metadata
			session.sections = append([]models.DraftSection(nil), stored.Sections...)
		case errors.Is(err, sql.ErrNoRows):
			// fresh session
		default:
			s.logger.Warn("draft snapshot load failed", zap.Int64("course", key.CourseID), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.sessions[key] = session
	s.mu.Unlock()

	return s.snapshot(key, session), nil
}

// Get returns the current draft state for an open session.
func (s *DraftService) Get(ctx context.Context, key DraftKey) (models.DraftSnapshot, error) {
	s.mu.Lock()
	session, ok := s.sessions[key]
	s.mu.Unlock()
	if !ok {
		return models.DraftSnapshot{}, appErrors.Clone(appErrors.ErrNotFound, "no open draft session")
	}
	return s.snapshot(key, session), nil
}

// SetMetadata replaces the draft metadata.
func (s *DraftService) SetMetadata(ctx context.Context, key DraftKey, meta models.CourseMetadata) error {
	return s.mutate(ctx, key, func(session *draftSession) error {
		session.meta = meta
		return nil
	})
}

// AddSection appends a new draft section and returns it.
func (s *DraftService) AddSection(ctx context.Context, key DraftKey, input SectionInput) (models.DraftSection, error) {
	section := models.DraftSection{
		BaselineSection: models.BaselineSection{
			Title:      input.Title,
			ContentCID: input.ContentCID,
			Duration:   input.Duration,
		},
		LocalID:      uuid.NewString(),
		State:        models.SectionNew,
		PendingMedia: input.PendingMedia,
	}
	err := s.mutate(ctx, key, func(session *draftSession) error {
		session.sections = append(session.sections, section)
		return nil
	})
	if err != nil {
		return models.DraftSection{}, err
	}
	return section, nil
}

// UpdateSection applies the input to the section addressed by localID.
func (s *DraftService) UpdateSection(ctx context.Context, key DraftKey, localID string, input SectionInput) error {
	return s.mutate(ctx, key, func(session *draftSession) error {
		idx := findSection(session.sections, localID)
		if idx < 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found in draft")
		}
		section := &session.sections[idx]
		if section.State == models.SectionDeleted {
			return appErrors.Clone(appErrors.ErrConflict, "section is deleted in draft")
		}
		section.Title = input.Title
		section.Duration = input.Duration
		if input.ContentCID != "" {
			section.ContentCID = input.ContentCID
		}
		section.PendingMedia = input.PendingMedia
		if section.State == models.SectionUnchanged {
			section.State = models.SectionModified
		}
		return nil
	})
}

// RemoveSection deletes the section addressed by localID. A section created
// in this draft is discarded outright; a baseline section is flagged deleted
// and keeps its slot.
func (s *DraftService) RemoveSection(ctx context.Context, key DraftKey, localID string) error {
	return s.mutate(ctx, key, func(session *draftSession) error {
		idx := findSection(session.sections, localID)
		if idx < 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found in draft")
		}
		if session.sections[idx].State == models.SectionNew {
			session.sections = append(session.sections[:idx], session.sections[idx+1:]...)
			return nil
		}
		session.sections[idx].State = models.SectionDeleted
		session.sections[idx].PendingMedia = nil
		return nil
	})
}

// Move repositions a section to newIndex within the visible (non-deleted)
// ordering.
func (s *DraftService) Move(ctx context.Context, key DraftKey, localID string, newIndex int) error {
	return s.mutate(ctx, key, func(session *draftSession) error {
		idx := findSection(session.sections, localID)
		if idx < 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found in draft")
		}
		if session.sections[idx].State == models.SectionDeleted {
			return appErrors.Clone(appErrors.ErrConflict, "section is deleted in draft")
		}

		section := session.sections[idx]
		rest := make([]models.DraftSection, 0, len(session.sections)-1)
		rest = append(rest, session.sections[:idx]...)
		rest = append(rest, session.sections[idx+1:]...)

		visible := make([]int, 0, len(rest))
		for i, sec := range rest {
			if sec.State != models.SectionDeleted {
				visible = append(visible, i)
			}
		}
		if newIndex < 0 {
			newIndex = 0
		}
		insertAt := len(rest)
		if newIndex < len(visible) {
			insertAt = visible[newIndex]
		}

		out := make([]models.DraftSection, 0, len(rest)+1)
		out = append(out, rest[:insertAt]...)
		out = append(out, section)
		out = append(out, rest[insertAt:]...)
		session.sections = out
		return nil
	})
}

// SetOrder replaces the visible ordering with the provided localID sequence.
// The sequence must contain exactly the visible sections.
func (s *DraftService) SetOrder(ctx context.Context, key DraftKey, order []string) error {
	return s.mutate(ctx, key, func(session *draftSession) error {
		byLocal := make(map[string]models.DraftSection, len(session.sections))
		visibleCount := 0
		for _, sec := range session.sections {
			if sec.State != models.SectionDeleted {
				byLocal[sec.LocalID] = sec
				visibleCount++
			}
		}
		if len(order) != visibleCount {
			return appErrors.Clone(appErrors.ErrValidation, "order must list every visible section exactly once")
		}
		for _, id := range order {
			if _, ok := byLocal[id]; !ok {
				return appErrors.Clone(appErrors.ErrValidation, "order references unknown or deleted section")
			}
		}

		next := 0
		out := make([]models.DraftSection, 0, len(session.sections))
		for _, sec := range session.sections {
			if sec.State == models.SectionDeleted {
				out = append(out, sec)
				continue
			}
			out = append(out, byLocal[order[next]])
			next++
		}
		session.sections = out
		return nil
	})
}

// AttachMedia records a pending media file for the section. The bytes are
// staged separately; the upload itself happens during commit.
func (s *DraftService) AttachMedia(ctx context.Context, key DraftKey, localID string, upload *models.MediaUpload) error {
	return s.mutate(ctx, key, func(session *draftSession) error {
		idx := findSection(session.sections, localID)
		if idx < 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found in draft")
		}
		section := &session.sections[idx]
		if section.State == models.SectionDeleted {
			return appErrors.Clone(appErrors.ErrConflict, "section is deleted in draft")
		}
		section.PendingMedia = upload
		if section.State == models.SectionUnchanged {
			section.State = models.SectionModified
		}
		return nil
	})
}

// SetSectionContent records the content identifier produced by a finished
// upload and clears the pending media reference.
func (s *DraftService) SetSectionContent(ctx context.Context, key DraftKey, localID, contentCID string) error {
	return s.mutate(ctx, key, func(session *draftSession) error {
		idx := findSection(session.sections, localID)
		if idx < 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found in draft")
		}
		session.sections[idx].ContentCID = contentCID
		session.sections[idx].PendingMedia = nil
		return nil
	})
}

// Diff computes the pending change set. It is pure: calling it twice without
// intervening mutation yields value-equal results.
func (s *DraftService) Diff(ctx context.Context, key DraftKey) (models.PendingChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	if !ok {
		return models.PendingChangeSet{}, appErrors.Clone(appErrors.ErrNotFound, "no open draft session")
	}

	diff := models.PendingChangeSet{
		MetadataChanged:  session.meta != session.baselineMeta,
		SectionsToUpdate: make(map[int64]models.DraftSection),
		SectionsToDelete: make(map[int64]struct{}),
	}

	for _, sec := range session.sections {
		switch sec.State {
		case models.SectionNew:
			diff.SectionsToAdd = append(diff.SectionsToAdd, sec)
		case models.SectionModified:
			if sec.HasLedgerID() {
				diff.SectionsToUpdate[sec.ID] = sec
			}
		case models.SectionDeleted:
			if sec.HasLedgerID() {
				diff.SectionsToDelete[sec.ID] = struct{}{}
			}
		}
	}

	diff.FinalOrder = finalOrder(session.sections)
	diff.ReorderNeeded = reorderNeeded(session)

	return diff, nil
}

// ApplyReport folds confirmed write results back into the session after a
// partial commit. Confirmed adds become baseline-backed sections with their
// assigned ledger ID, confirmed updates and deletes stop being pending, and a
// confirmed metadata write moves the baseline. A retried commit then only
// resubmits what actually failed. meta is the metadata the batch carried.
func (s *DraftService) ApplyReport(ctx context.Context, key DraftKey, meta models.CourseMetadata, results []models.JobResult) error {
	return s.mutate(ctx, key, func(session *draftSession) error {
		for _, r := range results {
			if r.Status != models.JobSucceeded {
				continue
			}
			switch r.Kind {
			case models.JobUpdateMetadata:
				session.baselineMeta = meta
			case models.JobAddSection:
				idx := findSection(session.sections, r.LocalID)
				if idx < 0 || r.AssignedID == 0 {
					continue
				}
				session.sections[idx].ID = r.AssignedID
				session.sections[idx].State = models.SectionUnchanged
				// the ledger appends adds at the end of the committed order
				session.baselineOrder = append(session.baselineOrder, r.AssignedID)
			case models.JobUpdateSection:
				for i := range session.sections {
					if session.sections[i].ID == r.TargetID && session.sections[i].State == models.SectionModified {
						session.sections[i].State = models.SectionUnchanged
					}
				}
			case models.JobDeleteSection:
				for i := range session.sections {
					if session.sections[i].ID == r.TargetID && session.sections[i].State == models.SectionDeleted {
						session.sections = append(session.sections[:i], session.sections[i+1:]...)
						break
					}
				}
				session.baselineOrder = withoutID(session.baselineOrder, r.TargetID)
			case models.JobReorder:
				session.baselineOrder = committedOrder(session.sections)
			}
		}
		return nil
	})
}

// Discard drops the session and any persisted snapshot.
func (s *DraftService) Discard(ctx context.Context, key DraftKey) error {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Delete(ctx, key.CourseID, key.Author); err != nil {
			s.logger.Warn("draft snapshot delete failed", zap.Int64("course", key.CourseID), zap.Error(err))
		}
	}
	return nil
}

func (s *DraftService) mutate(ctx context.Context, key DraftKey, fn func(*draftSession) error) error {
	s.mu.Lock()
	session, ok := s.sessions[key]
	if !ok {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrNotFound, "no open draft session")
	}
	err := fn(session)
	var snapshot models.DraftSnapshot
	if err == nil {
		snapshot = s.snapshotLocked(key, session)
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if s.repo != nil {
		if saveErr := s.repo.Save(ctx, snapshot); saveErr != nil {
			s.logger.Warn("draft snapshot save failed", zap.Int64("course", key.CourseID), zap.Error(saveErr))
		}
	}
	return nil
}

func (s *DraftService) snapshot(key DraftKey, session *draftSession) models.DraftSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(key, session)
}

func (s *DraftService) snapshotLocked(key DraftKey, session *draftSession) models.DraftSnapshot {
	return models.DraftSnapshot{
		CourseID: key.CourseID,
		Author:   key.Author,
		Metadata: session.meta,
		Sections: append([]models.DraftSection(nil), session.sections...),
	}
}

func mirrorBaseline(baseline []models.BaselineSection) []models.DraftSection {
	sections := make([]models.DraftSection, 0, len(baseline))
	for _, b := range baseline {
		sections = append(sections, models.DraftSection{
			BaselineSection: b,
			LocalID:         uuid.NewString(),
			State:           models.SectionUnchanged,
		})
	}
	return sections
}

func baselineIDs(baseline []models.BaselineSection) []int64 {
	ids := make([]int64, 0, len(baseline))
	for _, b := range baseline {
		ids = append(ids, b.ID)
	}
	return ids
}

func withoutID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// committedOrder is the visible baseline-backed ordering after a confirmed
// reorder.
func committedOrder(sections []models.DraftSection) []int64 {
	var ids []int64
	for _, sec := range sections {
		if sec.State != models.SectionDeleted && sec.HasLedgerID() {
			ids = append(ids, sec.ID)
		}
	}
	return ids
}

func findSection(sections []models.DraftSection, localID string) int {
	for i, sec := range sections {
		if sec.LocalID == localID {
			return i
		}
	}
	return -1
}

func finalOrder(sections []models.DraftSection) []models.OrderRef {
	var order []models.OrderRef
	for _, sec := range sections {
		if sec.State == models.SectionDeleted {
			continue
		}
		if sec.HasLedgerID() {
			order = append(order, models.OrderRef{LedgerID: sec.ID})
		} else {
			order = append(order, models.OrderRef{LocalID: sec.LocalID})
		}
	}
	return order
}

// reorderNeeded compares the surviving baseline-backed order against the
// baseline order restricted to the same survivors. New sections only force a
// reorder when they sit before a baseline-backed section, because the ledger
// appends adds at the end.
func reorderNeeded(session *draftSession) bool {
	var surviving []int64
	seenNew := false
	for _, sec := range session.sections {
		switch sec.State {
		case models.SectionDeleted:
			continue
		case models.SectionNew:
			seenNew = true
		default:
			if seenNew {
				return true
			}
			surviving = append(surviving, sec.ID)
		}
	}

	deleted := make(map[int64]struct{})
	for _, sec := range session.sections {
		if sec.State == models.SectionDeleted && sec.HasLedgerID() {
			deleted[sec.ID] = struct{}{}
		}
	}

	var restricted []int64
	for _, id := range session.baselineOrder {
		if _, gone := deleted[id]; gone {
			continue
		}
		restricted = append(restricted, id)
	}

	if len(surviving) != len(restricted) {
		return true
	}
	for i := range surviving {
		if surviving[i] != restricted[i] {
			return true
		}
	}
	return false
}
