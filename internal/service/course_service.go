package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/learnledger/editor-api/internal/models"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

// CourseSource reads the committed course state.
type CourseSource interface {
	FetchCourse(ctx context.Context, courseID int64) (*models.Course, []models.BaselineSection, error)
}

// CourseDetail is the cached read model: course record plus sections in
// committed order.
type CourseDetail struct {
	Course   models.Course            `json:"course"`
	Sections []models.BaselineSection `json:"sections"`
}

// CourseService serves course reads through the cache. The ledger gateway is
// the source of truth; the cache only absorbs repeated reads within the TTL.
type CourseService struct {
	source CourseSource
	cache  *CacheService
	logger *zap.Logger
}

// NewCourseService constructs the service. cache may be nil.
func NewCourseService(source CourseSource, cache *CacheService, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{source: source, cache: cache, logger: logger}
}

// GetCourse returns the course detail, reporting whether it was served from
// cache.
func (s *CourseService) GetCourse(ctx context.Context, courseID int64) (*CourseDetail, bool, error) {
	key := CourseDetailKey(courseID)

	if s.cache != nil {
		var detail CourseDetail
		if hit, _ := s.cache.Get(ctx, key, &detail); hit {
			return &detail, true, nil
		}
	}

	course, sections, err := s.source.FetchCourse(ctx, courseID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read course")
	}
	if course.ID == 0 {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	detail := &CourseDetail{Course: *course, Sections: sections}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, detail, s.cache.DefaultTTL()); err != nil {
			s.logger.Warn("course cache write failed", zap.Int64("course", courseID), zap.Error(err))
		}
	}
	return detail, false, nil
}

// Baseline fetches the committed state directly, bypassing the cache. Draft
// sessions must open against fresh state, never a cached read.
func (s *CourseService) Baseline(ctx context.Context, courseID int64) (*models.Course, []models.BaselineSection, error) {
	course, sections, err := s.source.FetchCourse(ctx, courseID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read course baseline")
	}
	if course.ID == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return course, sections, nil
}

// WarmCourse refreshes the cached detail after a commit, best effort.
func (s *CourseService) WarmCourse(ctx context.Context, courseID int64, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	course, sections, err := s.source.FetchCourse(ctx, courseID)
	if err != nil || course.ID == 0 {
		return
	}
	if ttl <= 0 {
		ttl = s.cache.DefaultTTL()
	}
	if err := s.cache.Set(ctx, CourseDetailKey(courseID), &CourseDetail{Course: *course, Sections: sections}, ttl); err != nil {
		s.logger.Warn("course cache warm failed", zap.Int64("course", courseID), zap.Error(err))
	}
}
