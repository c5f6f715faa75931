package dto

import "github.com/learnledger/editor-api/internal/models"

// DraftResponse is the session payload returned by the draft endpoints.
type DraftResponse struct {
	CourseID int64                   `json:"courseId"`
	Metadata models.CourseMetadata   `json:"metadata"`
	Sections []models.DraftSection   `json:"sections"`
	Pending  models.PendingChangeSet `json:"pending"`
}

// SectionRequest carries the editable fields of one section. PendingMedia is
// declared here and the bytes are staged through the media endpoint.
type SectionRequest struct {
	Title        string              `json:"title" validate:"required"`
	ContentCID   string              `json:"contentCid"`
	Duration     int64               `json:"duration" validate:"min=0"`
	PendingMedia *models.MediaUpload `json:"pendingMedia"`
}

// OrderRequest replaces the visible section ordering.
type OrderRequest struct {
	Order []string `json:"order" validate:"required,min=1,dive,required"`
}

// MoveRequest repositions one section within the visible ordering.
type MoveRequest struct {
	NewIndex int `json:"newIndex" validate:"min=0"`
}

// StagedMediaResponse acknowledges a staged media upload.
type StagedMediaResponse struct {
	LocalID string `json:"localId"`
	Size    int64  `json:"size"`
}
