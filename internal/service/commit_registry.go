package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnledger/editor-api/internal/models"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

// CommitRegistry tracks asynchronous commit runs in memory so callers can
// poll progress after the accepted response. Runs are pruned after a
// retention window rather than on read, so a slow poller still sees the
// terminal state.
type CommitRegistry struct {
	mu        sync.RWMutex
	runs      map[string]*models.CommitRun
	retention time.Duration
}

// NewCommitRegistry constructs the registry. Retention bounds how long a
// finished run stays queryable.
func NewCommitRegistry(retention time.Duration) *CommitRegistry {
	if retention <= 0 {
		retention = time.Hour
	}
	return &CommitRegistry{
		runs:      make(map[string]*models.CommitRun),
		retention: retention,
	}
}

// Create registers a new queued run and returns it.
func (r *CommitRegistry) Create(courseID int64, author string) models.CommitRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(courseID, author)
}

// CreateIfIdle registers a new queued run unless the author already has an
// unfinished run for the course. Check and insert happen under one lock, so
// two concurrent submissions for the same draft cannot both pass.
func (r *CommitRegistry) CreateIfIdle(courseID int64, author string) (models.CommitRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeLocked(courseID, author) {
		return models.CommitRun{}, false
	}
	return r.createLocked(courseID, author), true
}

func (r *CommitRegistry) createLocked(courseID int64, author string) models.CommitRun {
	run := models.CommitRun{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		Author:    author,
		Phase:     models.PhaseQueued,
		StartedAt: time.Now(),
	}
	r.prune()
	r.runs[run.ID] = &run
	return run
}

// Get returns a snapshot of the run.
func (r *CommitRegistry) Get(id string) (models.CommitRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return models.CommitRun{}, appErrors.Clone(appErrors.ErrNotFound, "commit run not found")
	}
	return *run, nil
}

// ActiveFor reports whether the author already has an unfinished run for the
// course. Commits are serialized per draft, so a second submission while one
// is in flight is rejected up front.
func (r *CommitRegistry) ActiveFor(courseID int64, author string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked(courseID, author)
}

func (r *CommitRegistry) activeLocked(courseID int64, author string) bool {
	for _, run := range r.runs {
		if run.CourseID == courseID && run.Author == author && run.Phase != models.PhaseFinished {
			return true
		}
	}
	return false
}

// SetPhase advances the run's phase.
func (r *CommitRegistry) SetPhase(id string, phase models.CommitPhase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[id]; ok {
		run.Phase = phase
	}
}

// SetProgress records the latest progress event.
func (r *CommitRegistry) SetProgress(id string, event models.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[id]; ok {
		run.Progress = event
	}
}

// Finish marks the run terminal with its outcome, or an error when the run
// never produced one.
func (r *CommitRegistry) Finish(id string, outcome *models.CommitOutcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return
	}
	now := time.Now()
	run.Phase = models.PhaseFinished
	run.Outcome = outcome
	run.EndedAt = &now
	if err != nil {
		run.Error = err.Error()
	}
}

// prune drops finished runs past retention. Caller holds the write lock.
func (r *CommitRegistry) prune() {
	cutoff := time.Now().Add(-r.retention)
	for id, run := range r.runs {
		if run.EndedAt != nil && run.EndedAt.Before(cutoff) {
			delete(r.runs, id)
		}
	}
}
