package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnledger/editor-api/internal/models"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

func TestCommitRegistryLifecycle(t *testing.T) {
	reg := NewCommitRegistry(time.Hour)

	run := reg.Create(7, "0xabc")
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.PhaseQueued, run.Phase)

	reg.SetPhase(run.ID, models.PhaseSubmitting)
	reg.SetProgress(run.ID, models.ProgressEvent{Completed: 2, Total: 5, CurrentJobKind: models.JobAddSection})

	got, err := reg.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseSubmitting, got.Phase)
	assert.Equal(t, 2, got.Progress.Completed)

	outcome := &models.CommitOutcome{Status: models.CommitStatusCommitted}
	reg.Finish(run.ID, outcome, nil)

	got, err = reg.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFinished, got.Phase)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, models.CommitStatusCommitted, got.Outcome.Status)
	require.NotNil(t, got.EndedAt)
	assert.Empty(t, got.Error)
}

func TestCommitRegistryFinishWithError(t *testing.T) {
	reg := NewCommitRegistry(time.Hour)
	run := reg.Create(7, "0xabc")

	reg.Finish(run.ID, nil, errors.New("upload failed"))

	got, err := reg.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "upload failed", got.Error)
	assert.Nil(t, got.Outcome)
}

func TestCommitRegistryUnknownRun(t *testing.T) {
	reg := NewCommitRegistry(time.Hour)
	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCommitRegistryActiveFor(t *testing.T) {
	reg := NewCommitRegistry(time.Hour)
	run := reg.Create(7, "0xabc")

	assert.True(t, reg.ActiveFor(7, "0xabc"))
	assert.False(t, reg.ActiveFor(7, "0xdef"))
	assert.False(t, reg.ActiveFor(8, "0xabc"))

	reg.Finish(run.ID, &models.CommitOutcome{Status: models.CommitStatusNoChanges}, nil)
	assert.False(t, reg.ActiveFor(7, "0xabc"))
}

func TestCommitRegistryCreateIfIdle(t *testing.T) {
	reg := NewCommitRegistry(time.Hour)

	first, ok := reg.CreateIfIdle(7, "0xabc")
	require.True(t, ok)

	// the same draft cannot start a second run while one is unfinished
	_, ok = reg.CreateIfIdle(7, "0xabc")
	assert.False(t, ok)

	// other drafts are unaffected
	_, ok = reg.CreateIfIdle(7, "0xdef")
	assert.True(t, ok)

	reg.Finish(first.ID, &models.CommitOutcome{Status: models.CommitStatusCommitted}, nil)
	_, ok = reg.CreateIfIdle(7, "0xabc")
	assert.True(t, ok)
}

func TestCommitRegistryPruneOnCreate(t *testing.T) {
	reg := NewCommitRegistry(time.Millisecond)
	old := reg.Create(1, "0xabc")
	reg.Finish(old.ID, nil, nil)

	time.Sleep(5 * time.Millisecond)
	reg.Create(2, "0xdef")

	_, err := reg.Get(old.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
