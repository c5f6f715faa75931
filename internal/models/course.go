package models

// CourseMetadata groups the author-editable course fields. It is mutated as a
// unit: the ledger exposes a single metadata-update method.
type CourseMetadata struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailCID string `json:"thumbnailCid"`
	CreatorName  string `json:"creatorName"`
	Category     string `json:"category"`
	Difficulty   string `json:"difficulty"`
	Price        int64  `json:"price"`
	Active       bool   `json:"active"`
}

// Course is the on-chain course record as read from the query service.
type Course struct {
	ID             int64          `json:"id"`
	CreatorAddress string         `json:"creatorAddress"`
	Metadata       CourseMetadata `json:"metadata"`
}

// BaselineSection is a section as last committed to the ledger. It is only
// replaced wholesale on reload; edits happen on the draft overlay.
type BaselineSection struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	ContentCID string `json:"contentCid"`
	Duration   int64  `json:"duration"`
	OrderIndex int    `json:"orderIndex"`
}
