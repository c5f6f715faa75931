package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SectionState is the overlay state of a draft section. A single tagged state
// replaces independent new/modified/deleted flags so illegal combinations
// cannot be represented. A New section that the author removes is discarded
// from the draft outright, so Deleted never applies to a New section.
type SectionState string

const (
	SectionUnchanged SectionState = "UNCHANGED"
	SectionNew       SectionState = "NEW"
	SectionModified  SectionState = "MODIFIED"
	SectionDeleted   SectionState = "DELETED"
)

// DraftSection is a baseline section plus overlay state. Sections created in
// the draft carry a client-generated LocalID and no ledger ID until the add
// job is confirmed.
type DraftSection struct {
	BaselineSection

	LocalID      string       `json:"localId"`
	State        SectionState `json:"state"`
	PendingMedia *MediaUpload `json:"pendingMedia,omitempty"`
}

// HasLedgerID reports whether the section already exists on the ledger.
func (s DraftSection) HasLedgerID() bool {
	return s.ID != 0
}

// MediaUpload references a local file awaiting upload for a section.
type MediaUpload struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// OrderRef identifies a section in the final draft order. Sections added in
// the same commit have no ledger ID at diff time, so the reference carries the
// local ID until the add receipt assigns one.
type OrderRef struct {
	LedgerID int64  `json:"ledgerId,omitempty"`
	LocalID  string `json:"localId,omitempty"`
}

// PendingChangeSet is the derived diff between draft and baseline. It is
// recomputed on demand and never mutated by callers.
type PendingChangeSet struct {
	MetadataChanged  bool                   `json:"metadataChanged"`
	SectionsToAdd    []DraftSection         `json:"sectionsToAdd"`
	SectionsToUpdate map[int64]DraftSection `json:"sectionsToUpdate"`
	SectionsToDelete map[int64]struct{}     `json:"sectionsToDelete"`
	ReorderNeeded    bool                   `json:"reorderNeeded"`
	FinalOrder       []OrderRef             `json:"finalOrder"`
}

// Empty reports whether the diff carries no work at all.
func (p PendingChangeSet) Empty() bool {
	return !p.MetadataChanged &&
		len(p.SectionsToAdd) == 0 &&
		len(p.SectionsToUpdate) == 0 &&
		len(p.SectionsToDelete) == 0 &&
		!p.ReorderNeeded
}

// DraftSnapshot is the persisted form of a draft session, stored so authors
// can resume an interrupted editing session.
type DraftSnapshot struct {
	CourseID int64          `json:"courseId"`
	Author   string         `json:"author"`
	Metadata CourseMetadata `json:"metadata"`
	Sections []DraftSection `json:"sections"`
}

// Value marshals the snapshot to JSON for persistence.
func (s DraftSnapshot) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal draft snapshot: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the snapshot struct.
func (s *DraftSnapshot) Scan(value interface{}) error {
	if value == nil {
		*s = DraftSnapshot{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for DraftSnapshot", value)
	}
	if len(data) == 0 {
		*s = DraftSnapshot{}
		return nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("unmarshal draft snapshot: %w", err)
	}
	return nil
}
