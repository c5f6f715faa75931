package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/learnledger/editor-api/internal/models"
)

func newDraftRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestDraftRepositorySaveAndLoad(t *testing.T) {
	db, mock, cleanup := newDraftRepoMock(t)
	defer cleanup()

	repo := NewDraftRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO draft_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	snapshot := models.DraftSnapshot{
		CourseID: 7,
		Author:   "0xabc",
		Metadata: models.CourseMetadata{Title: "Solidity Basics", Price: 500},
		Sections: []models.DraftSection{
			{BaselineSection: models.BaselineSection{Title: "Intro", Duration: 120}, LocalID: "local-1", State: models.SectionNew},
		},
	}
	require.NoError(t, repo.Save(context.Background(), snapshot))

	payload, err := snapshot.Value()
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"course_id", "author", "snapshot", "updated_at"}).
		AddRow(int64(7), "0xabc", payload, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT course_id, author, snapshot, updated_at FROM draft_snapshots")).
		WithArgs(int64(7), "0xabc").
		WillReturnRows(rows)

	loaded, err := repo.Load(context.Background(), 7, "0xabc")
	require.NoError(t, err)
	require.Equal(t, "Solidity Basics", loaded.Metadata.Title)
	require.Len(t, loaded.Sections, 1)
	require.Equal(t, models.SectionNew, loaded.Sections[0].State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepositoryLoadMissing(t *testing.T) {
	db, mock, cleanup := newDraftRepoMock(t)
	defer cleanup()

	repo := NewDraftRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT course_id, author, snapshot, updated_at FROM draft_snapshots")).
		WithArgs(int64(9), "0xdef").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Load(context.Background(), 9, "0xdef")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newDraftRepoMock(t)
	defer cleanup()

	repo := NewDraftRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM draft_snapshots")).
		WithArgs(int64(7), "0xabc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), 7, "0xabc"))
	require.NoError(t, mock.ExpectationsWereMet())
}
