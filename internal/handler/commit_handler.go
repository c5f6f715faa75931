package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnledger/editor-api/internal/dto"
	"github.com/learnledger/editor-api/internal/models"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
	"github.com/learnledger/editor-api/pkg/response"
)

type commitRunner interface {
	Submit(courseID int64, author string) (models.CommitRun, error)
	Status(runID string) (models.CommitRun, error)
}

// CommitHandler exposes the asynchronous commit pipeline: submit returns a
// run ID immediately and the client polls the run for progress.
type CommitHandler struct {
	commits commitRunner
}

// NewCommitHandler constructs the handler.
func NewCommitHandler(commits commitRunner) *CommitHandler {
	return &CommitHandler{commits: commits}
}

// Submit queues a commit run for the caller's draft.
func (h *CommitHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courseID, err := courseIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	run, err := h.commits.Submit(courseID, claims.Account)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.CommitAcceptedResponse{
		RunID:    run.ID,
		CourseID: run.CourseID,
		Phase:    run.Phase,
	})
}

// Status returns progress and, once finished, the outcome of a run. Authors
// can only read their own runs.
func (h *CommitHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	run, err := h.commits.Status(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if run.Author != claims.Account {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "not your commit run"))
		return
	}
	response.JSON(c, http.StatusOK, dto.FromRun(run))
}
