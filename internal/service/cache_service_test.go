package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/learnledger/editor-api/internal/repository"
)

type failingCacheRepo struct{}

func (failingCacheRepo) Get(context.Context, string, interface{}) error {
	return errors.New("connection refused")
}

func (failingCacheRepo) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("connection refused")
}

func (failingCacheRepo) DeleteByPattern(context.Context, string) error {
	return errors.New("connection refused")
}

func TestCacheServiceRoundTrip(t *testing.T) {
	svc := NewCacheService(repository.NewMemoryCache(), nil, 30*time.Second, zap.NewNop(), true)

	require.NoError(t, svc.Set(context.Background(), CourseDetailKey(7), map[string]string{"title": "A"}, 0))

	var got map[string]string
	hit, err := svc.Get(context.Background(), CourseDetailKey(7), &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "A", got["title"])
}

func TestCacheServiceReadFailureDegradesToMiss(t *testing.T) {
	svc := NewCacheService(failingCacheRepo{}, nil, 30*time.Second, zap.NewNop(), true)

	var got map[string]string
	hit, err := svc.Get(context.Background(), CourseDetailKey(7), &got)
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceDisabledNeverHits(t *testing.T) {
	svc := NewCacheService(repository.NewMemoryCache(), nil, 30*time.Second, zap.NewNop(), false)

	require.NoError(t, svc.Set(context.Background(), "k", "v", 0))
	var got string
	hit, err := svc.Get(context.Background(), "k", &got)
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceKeyBuilders(t *testing.T) {
	assert.Equal(t, "course:detail:7", CourseDetailKey(7))
	assert.Equal(t, "course:sections:7", CourseSectionsKey(7))
	assert.Equal(t, "course:*:7", CourseKeyPattern(7))
	assert.Equal(t, "license:0xabc:7", LicenseKey("0xabc", 7))
	assert.Equal(t, "progress:0xabc:7", ProgressKey("0xabc", 7))
}
