package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/learnledger/editor-api/internal/dto"
	"github.com/learnledger/editor-api/internal/models"
	"github.com/learnledger/editor-api/internal/service"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
	"github.com/learnledger/editor-api/pkg/response"
)

type draftStore interface {
	Open(ctx context.Context, key service.DraftKey, course *models.Course, baseline []models.BaselineSection) (models.DraftSnapshot, error)
	Get(ctx context.Context, key service.DraftKey) (models.DraftSnapshot, error)
	Diff(ctx context.Context, key service.DraftKey) (models.PendingChangeSet, error)
	SetMetadata(ctx context.Context, key service.DraftKey, meta models.CourseMetadata) error
	AddSection(ctx context.Context, key service.DraftKey, input service.SectionInput) (models.DraftSection, error)
	UpdateSection(ctx context.Context, key service.DraftKey, localID string, input service.SectionInput) error
	RemoveSection(ctx context.Context, key service.DraftKey, localID string) error
	Move(ctx context.Context, key service.DraftKey, localID string, newIndex int) error
	SetOrder(ctx context.Context, key service.DraftKey, order []string) error
	AttachMedia(ctx context.Context, key service.DraftKey, localID string, upload *models.MediaUpload) error
	Discard(ctx context.Context, key service.DraftKey) error
}

type baselineReader interface {
	Baseline(ctx context.Context, courseID int64) (*models.Course, []models.BaselineSection, error)
}

type mediaStager interface {
	Stage(courseID int64, author, localID string, r io.Reader) (int64, error)
	Remove(courseID int64, author, localID string)
}

// DraftHandler exposes the draft editing session over HTTP. Ownership is
// enforced on open; every other operation is scoped to the caller's own
// session key, so there is no session to hit for anyone else.
type DraftHandler struct {
	drafts   draftStore
	courses  baselineReader
	staging  mediaStager
	validate *validator.Validate
}

// NewDraftHandler constructs the handler.
func NewDraftHandler(drafts draftStore, courses baselineReader, staging mediaStager, validate *validator.Validate) *DraftHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &DraftHandler{drafts: drafts, courses: courses, staging: staging, validate: validate}
}

func (h *DraftHandler) sessionKey(c *gin.Context) (service.DraftKey, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return service.DraftKey{}, appErrors.ErrUnauthorized
	}
	courseID, err := courseIDParam(c)
	if err != nil {
		return service.DraftKey{}, err
	}
	return service.DraftKey{CourseID: courseID, Author: claims.Account}, nil
}

// Open starts or resumes an editing session from fresh committed state.
func (h *DraftHandler) Open(c *gin.Context) {
	key, err := h.sessionKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	course, baseline, err := h.courses.Baseline(c.Request.Context(), key.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if course.CreatorAddress != key.Author {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only the course creator can edit it"))
		return
	}

	snap, err := h.drafts.Open(c.Request.Context(), key, course, baseline)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondDraft(c, http.StatusCreated, key, snap)
}

// Get returns the current draft state with its pending change set.
func (h *DraftHandler) Get(c *gin.Context) {
	key, err := h.sessionKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	snap, err := h.drafts.Get(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondDraft(c, http.StatusOK, key, snap)
}

// SetMetadata replaces the draft metadata.
func (h *DraftHandler) SetMetadata(c *gin.Context) {
	key, err := h.sessionKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.MetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid metadata payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid metadata payload"))
		return
	}
	if err := h.drafts.SetMetadata(c.Request.Context(), key, req.ToModel()); err != nil {
		response.Error(c, err)
		return
	}
	h.respondCurrent(c, key)
}

// AddSection appends a new section to the draft.
func (h *DraftHandler) AddSection(c *gin.Context) {
	key, err := h.sessionKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	input, err := h.bindSection(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	section, err := h.drafts.AddSection(c.Request.Context(), key, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, section)
}

// UpdateSection applies edits to the addressed section.
func (h *DraftHandler) UpdateSection(c *gin.Context) {
	key, err := h.sessionKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	input, err := h.bindSection(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.drafts.UpdateSection(c.Request.Context(), key, c.Param("sectionId"), input); err != nil {
		response.Error(c, err)
		return
	}
	h.respondCurrent(c, key)
}

// RemoveSection deletes the addressed section from the draft.
func (h *DraftHandler) RemoveSection(c *gin.Context) {
	key, err := h.sessionKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.drafts.RemoveSection(c.Request.Context(), key, c.Param("sectionId")); err != nil {
		response.Error(c, err)
		return
	}
	h.respondCurrent(c, key)
}

// Move repositions the addressed section within the visible ordering.
func (h *DraftHandler) Move(c *gin.Context) {
	key, err := h.sessionKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid move payload"))
		return
	}
	if err := h.drafts.Move(c.Request.Context(), key, c.Param("sectionId"), req.NewIndex); err != nil {
		response.Error(c, err)
		return
	}
	h.respondCurrent(c, key)
}

// SetOrder replaces the visible section ordering.
func (h *DraftHandler) SetOrder(c *gin.Context) {
	key, err := h.sessionKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid order payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid order payload"))
		return
	}
	if err := h.drafts.SetOrder(c.Request.Context(), key, req.Order); err != nil {
		response.Error(c, err)
		return
	}
	h.respondCurrent(c, key)
}

// StageMedia spools the request body as the section's pending media file.
func (h *DraftHandler) StageMedia(c *gin.Context) {
	key, err := h.sessionKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.staging == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "media staging is not configured"))
		return
	}
	localID := c.Param("sectionId")
	filename := c.Query("filename")
	if filename == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "filename query parameter is required"))
		return
	}

	size, err := h.staging.Stage(key.CourseID, key.Author, localID, c.Request.Body)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUpload.Code, appErrors.ErrUpload.Status, "failed to stage media"))
		return
	}
	upload := &models.MediaUpload{
		Filename: filename,
		Size:     size,
		MimeType: c.ContentType(),
	}
	if err := h.drafts.AttachMedia(c.Request.Context(), key, localID, upload); err != nil {
		// the bytes belong to no draft section, do not leave them spooled
		h.staging.Remove(key.CourseID, key.Author, localID)
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.StagedMediaResponse{LocalID: localID, Size: size})
}

// Discard drops the draft session.
func (h *DraftHandler) Discard(c *gin.Context) {
	key, err := h.sessionKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.drafts.Discard(c.Request.Context(), key); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *DraftHandler) bindSection(c *gin.Context) (service.SectionInput, error) {
	var req dto.SectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return service.SectionInput{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return service.SectionInput{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	return service.SectionInput{
		Title:        req.Title,
		ContentCID:   req.ContentCID,
		Duration:     req.Duration,
		PendingMedia: req.PendingMedia,
	}, nil
}

func (h *DraftHandler) respondCurrent(c *gin.Context, key service.DraftKey) {
	snap, err := h.drafts.Get(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondDraft(c, http.StatusOK, key, snap)
}

func (h *DraftHandler) respondDraft(c *gin.Context, status int, key service.DraftKey, snap models.DraftSnapshot) {
	diff, err := h.drafts.Diff(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, status, dto.DraftResponse{
		CourseID: key.CourseID,
		Metadata: snap.Metadata,
		Sections: snap.Sections,
		Pending:  diff,
	})
}
