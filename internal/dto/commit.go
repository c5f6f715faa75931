package dto

import (
	"time"

	"github.com/learnledger/editor-api/internal/models"
)

// CommitAcceptedResponse acknowledges a queued commit run.
type CommitAcceptedResponse struct {
	RunID    string             `json:"runId"`
	CourseID int64              `json:"courseId"`
	Phase    models.CommitPhase `json:"phase"`
}

// CommitRunResponse is the polled run status with progress and, once the run
// finishes, the outcome.
type CommitRunResponse struct {
	RunID     string                `json:"runId"`
	CourseID  int64                 `json:"courseId"`
	Phase     models.CommitPhase    `json:"phase"`
	Progress  models.ProgressEvent  `json:"progress"`
	Outcome   *models.CommitOutcome `json:"outcome,omitempty"`
	Error     string                `json:"error,omitempty"`
	StartedAt string                `json:"startedAt"`
	EndedAt   string                `json:"endedAt,omitempty"`
}

// FromRun maps the tracked run into the response payload.
func FromRun(run models.CommitRun) CommitRunResponse {
	resp := CommitRunResponse{
		RunID:     run.ID,
		CourseID:  run.CourseID,
		Phase:     run.Phase,
		Progress:  run.Progress,
		Outcome:   run.Outcome,
		Error:     run.Error,
		StartedAt: run.StartedAt.UTC().Format(time.RFC3339),
	}
	if run.EndedAt != nil {
		resp.EndedAt = run.EndedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
