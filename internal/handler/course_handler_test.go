package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnledger/editor-api/internal/dto"
	"github.com/learnledger/editor-api/internal/service"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

type fakeCourseReader struct {
	detail *service.CourseDetail
	hit    bool
	err    error
}

func (f *fakeCourseReader) GetCourse(context.Context, int64) (*service.CourseDetail, bool, error) {
	return f.detail, f.hit, f.err
}

func TestCourseGetSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewCourseHandler(&fakeCourseReader{
		detail: &service.CourseDetail{Course: *editorCourse(), Sections: editorBaseline()},
		hit:    true,
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses/7", nil)
	c.Params = gin.Params{{Key: "id", Value: "7"}}

	h.Get(c)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var detail dto.CourseDetailResponse
	require.NoError(t, json.Unmarshal(envelope.Data, &detail))
	assert.Equal(t, int64(7), detail.Course.ID)
	assert.Len(t, detail.Sections, 2)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
}

func TestCourseGetInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewCourseHandler(&fakeCourseReader{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	h.Get(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCourseGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewCourseHandler(&fakeCourseReader{err: appErrors.ErrNotFound})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses/7", nil)
	c.Params = gin.Params{{Key: "id", Value: "7"}}

	h.Get(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
