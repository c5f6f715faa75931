package dto

import "github.com/learnledger/editor-api/internal/models"

// CourseDetailResponse is the read-model payload for GET /courses/:id.
type CourseDetailResponse struct {
	Course   models.Course            `json:"course"`
	Sections []models.BaselineSection `json:"sections"`
}

// MetadataRequest carries a full replacement of the editable course fields.
type MetadataRequest struct {
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	ThumbnailCID string `json:"thumbnailCid"`
	CreatorName  string `json:"creatorName"`
	Category     string `json:"category"`
	Difficulty   string `json:"difficulty"`
	Price        int64  `json:"price" validate:"min=0"`
	Active       bool   `json:"active"`
}

// ToModel converts the request into the domain metadata struct.
func (r MetadataRequest) ToModel() models.CourseMetadata {
	return models.CourseMetadata{
		Title:        r.Title,
		Description:  r.Description,
		ThumbnailCID: r.ThumbnailCID,
		CreatorName:  r.CreatorName,
		Category:     r.Category,
		Difficulty:   r.Difficulty,
		Price:        r.Price,
		Active:       r.Active,
	}
}
