package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/learnledger/editor-api/internal/models"
)

// DraftRepository persists draft overlay snapshots so an author can resume an
// interrupted editing session. The overlay is stored as JSONB keyed by
// (course, author); the ledger remains the only durable home for committed
// state.
type DraftRepository struct {
	db *sqlx.DB
}

// NewDraftRepository constructs the repository.
func NewDraftRepository(db *sqlx.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

type draftRow struct {
	CourseID  int64                `db:"course_id"`
	Author    string               `db:"author"`
	Snapshot  models.DraftSnapshot `db:"snapshot"`
	UpdatedAt time.Time            `db:"updated_at"`
}

// Save upserts the snapshot for (course, author).
func (r *DraftRepository) Save(ctx context.Context, snapshot models.DraftSnapshot) error {
	const query = `INSERT INTO draft_snapshots (course_id, author, snapshot, updated_at)
	VALUES (:course_id, :author, :snapshot, :updated_at)
	ON CONFLICT (course_id, author) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`
	row := draftRow{
		CourseID:  snapshot.CourseID,
		Author:    snapshot.Author,
		Snapshot:  snapshot,
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("save draft snapshot: %w", err)
	}
	return nil
}

// Load fetches the snapshot for (course, author).
func (r *DraftRepository) Load(ctx context.Context, courseID int64, author string) (*models.DraftSnapshot, error) {
	const query = `SELECT course_id, author, snapshot, updated_at FROM draft_snapshots WHERE course_id = $1 AND author = $2`
	var row draftRow
	if err := r.db.GetContext(ctx, &row, query, courseID, author); err != nil {
		return nil, err
	}
	snapshot := row.Snapshot
	snapshot.CourseID = row.CourseID
	snapshot.Author = row.Author
	return &snapshot, nil
}

// Delete removes the snapshot for (course, author).
func (r *DraftRepository) Delete(ctx context.Context, courseID int64, author string) error {
	const query = `DELETE FROM draft_snapshots WHERE course_id = $1 AND author = $2`
	if _, err := r.db.ExecContext(ctx, query, courseID, author); err != nil {
		return fmt.Errorf("delete draft snapshot: %w", err)
	}
	return nil
}
