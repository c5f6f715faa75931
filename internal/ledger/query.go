package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/learnledger/editor-api/internal/models"
)

// CourseQuery reads course state for the editor baseline. Reads go through
// the same gateway the writes use; the indexing service that serves richer
// queries is a separate system.
type CourseQuery struct {
	client  Client
	address string
}

// NewCourseQuery constructs a query helper bound to the course contract.
func NewCourseQuery(client Client, address string) *CourseQuery {
	return &CourseQuery{client: client, address: address}
}

// FetchCourse returns the course record and its sections in baseline order.
func (q *CourseQuery) FetchCourse(ctx context.Context, courseID int64) (*models.Course, []models.BaselineSection, error) {
	raw, err := q.client.ReadValue(ctx, q.address, "getCourse", []interface{}{courseID})
	if err != nil {
		return nil, nil, fmt.Errorf("read course %d: %w", courseID, err)
	}
	var course models.Course
	if err := json.Unmarshal(raw, &course); err != nil {
		return nil, nil, fmt.Errorf("decode course %d: %w", courseID, err)
	}

	raw, err = q.client.ReadValue(ctx, q.address, "getCourseSections", []interface{}{courseID})
	if err != nil {
		return nil, nil, fmt.Errorf("read course %d sections: %w", courseID, err)
	}
	var sections []models.BaselineSection
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, nil, fmt.Errorf("decode course %d sections: %w", courseID, err)
	}
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].OrderIndex < sections[j].OrderIndex
	})

	return &course, sections, nil
}
