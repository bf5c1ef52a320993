package client

import (
	"context"

	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/pkg/config"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
)

// CatalogClient reads course facts from the catalog service.
type CatalogClient struct {
	caller *caller
}

// NewCatalogClient constructs a catalog client.
func NewCatalogClient(cfg config.DependencyConfig, opts Options) *CatalogClient {
	return &CatalogClient{caller: newCaller("catalog", cfg.BaseURL, cfg.Timeout, opts)}
}

type courseDTO struct {
	ID            string     `json:"id"`
	MongoID       string     `json:"_id"`
	Code          string     `json:"code"`
	Title         string     `json:"title"`
	InstructorID  flexString `json:"instructorId"`
	Instructor    flexString `json:"instructor"`
	Capacity      int        `json:"capacity"`
	EnrolledCount int        `json:"enrolledCount"`
	Enrolled      int        `json:"enrolled"`
	Status        string     `json:"status"`
}

func (d courseDTO) toModel() (*models.Course, bool) {
	course := &models.Course{
		ID:            firstNonEmpty(d.ID, d.MongoID),
		Code:          d.Code,
		Title:         d.Title,
		InstructorID:  firstNonEmpty(string(d.InstructorID), string(d.Instructor)),
		Capacity:      d.Capacity,
		EnrolledCount: d.EnrolledCount,
		Status:        models.CourseStatus(d.Status),
	}
	if course.EnrolledCount == 0 {
		course.EnrolledCount = d.Enrolled
	}
	return course, course.ID != ""
}

// GetCourse fetches one course. Missing courses yield CourseNotFound.
func (c *CatalogClient) GetCourse(ctx context.Context, principal *models.Principal, courseID string) (*models.Course, error) {
	var dto courseDTO
	if err := c.caller.get(ctx, "get_course", "/api/courses/"+escape(courseID), principal, appErrors.ErrCourseNotFound, &dto); err != nil {
		return nil, err
	}
	course, ok := dto.toModel()
	if !ok {
		return nil, c.caller.unavailable(nil, "returned a course without an id")
	}
	return course, nil
}

// ListCourses fetches the full course list in a single call.
func (c *CatalogClient) ListCourses(ctx context.Context, principal *models.Principal) ([]models.Course, error) {
	var dtos []courseDTO
	if err := c.caller.get(ctx, "list_courses", "/api/courses", principal, appErrors.ErrNotFound, &dtos); err != nil {
		return nil, err
	}
	courses := make([]models.Course, 0, len(dtos))
	for _, dto := range dtos {
		course, ok := dto.toModel()
		if !ok {
			continue
		}
		courses = append(courses, *course)
	}
	return courses, nil
}
