package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnledger/editor-api/internal/dto"
	"github.com/learnledger/editor-api/internal/middleware"
	"github.com/learnledger/editor-api/internal/service"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
	"github.com/learnledger/editor-api/pkg/response"
)

type courseReader interface {
	GetCourse(ctx context.Context, courseID int64) (*service.CourseDetail, bool, error)
}

// CourseHandler serves course reads.
type CourseHandler struct {
	service courseReader
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(service courseReader) *CourseHandler {
	return &CourseHandler{service: service}
}

// Get returns the committed course detail, served through the cache.
func (h *CourseHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	courseID, err := courseIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	start := time.Now()
	detail, cacheHit, err := h.service.GetCourse(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, dto.CourseDetailResponse{
		Course:   detail.Course,
		Sections: detail.Sections,
	}, meta)
}
