package models

// MediaStatus tracks the lifecycle of one uploaded asset.
type MediaStatus string

const (
	MediaQueued     MediaStatus = "queued"
	MediaUploading  MediaStatus = "uploading"
	MediaProcessing MediaStatus = "processing"
	MediaReady      MediaStatus = "ready"
	MediaFailed     MediaStatus = "failed"
)

// MediaAsset records the outcome of uploading one section's media file.
// ContentCID is set only once the remote service reports the asset ready;
// Error is set only on failure.
type MediaAsset struct {
	LocalID       string      `json:"localId"`
	RemoteAssetID string      `json:"remoteAssetId,omitempty"`
	Status        MediaStatus `json:"status"`
	ContentCID    string      `json:"contentCid,omitempty"`
	Error         string      `json:"error,omitempty"`
}
