package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/course-ledger/internal/dto"
	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/internal/repository"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
	"github.com/noah-isme/course-ledger/pkg/export"
)

type enrollmentRepository interface {
	Enroll(ctx context.Context, studentID, courseID string, status models.EnrollmentStatus, reusable []models.EnrollmentStatus) (*models.Enrollment, bool, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	TransitionStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (*models.Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	ListByCourse(ctx context.Context, courseID string, statuses []models.EnrollmentStatus) ([]models.Enrollment, error)
	CountByCourse(ctx context.Context, courseID string, statuses []models.EnrollmentStatus) (int, error)
}

type courseCatalog interface {
	GetCourse(ctx context.Context, principal *models.Principal, courseID string) (*models.Course, error)
	ListCourses(ctx context.Context, principal *models.Principal) ([]models.Course, error)
}

type profileDirectory interface {
	GetProfile(ctx context.Context, principal *models.Principal, userID string) (*models.Profile, error)
}

// EnrollmentServiceConfig tunes the ledger.
type EnrollmentServiceConfig struct {
	Workflow          models.Workflow
	EnforceCapacity   bool
	EnrichConcurrency int
}

// EnrollmentService runs the enrollment ledger state machine.
type EnrollmentService struct {
	repo      enrollmentRepository
	catalog   courseCatalog
	directory profileDirectory
	journal   writeJournal
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       EnrollmentServiceConfig
}

// NewEnrollmentService constructs the ledger service.
func NewEnrollmentService(repo enrollmentRepository, catalog courseCatalog, directory profileDirectory, journal writeJournal, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg EnrollmentServiceConfig) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workflow == "" {
		cfg.Workflow = models.WorkflowImmediate
	}
	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = 8
	}
	return &EnrollmentService{
		repo:      repo,
		catalog:   catalog,
		directory: directory,
		journal:   journal,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Workflow returns the configured status machine.
func (s *EnrollmentService) Workflow() models.Workflow {
	return s.cfg.Workflow
}

// Enroll enrolls the calling student in a course. A previously dropped record
// is reused in place with a fresh enrollment date; created reports whether a
// new record was inserted.
func (s *EnrollmentService) Enroll(ctx context.Context, principal *models.Principal, req dto.EnrollRequest) (*models.Enrollment, bool, error) {
	if !principal.HasRole(models.RoleStudent) {
		return nil, false, appErrors.Clone(appErrors.ErrNotAuthorized, "only students may enroll")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	course, err := s.catalog.GetCourse(ctx, principal, req.CourseID)
	if err != nil {
		return nil, false, err
	}

	if s.cfg.EnforceCapacity && course.Capacity > 0 {
		taken, err := s.repo.CountByCourse(ctx, course.ID, s.cfg.Workflow.OccupyingStatuses())
		if err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count course enrollments")
		}
		if taken >= course.Capacity {
			return nil, false, appErrors.Clone(appErrors.ErrCourseFull, fmt.Sprintf("course %s is at capacity (%d)", course.ID, course.Capacity))
		}
	}

	enrollment, created, err := s.repo.Enroll(ctx, principal.ID, req.CourseID, s.cfg.Workflow.InitialStatus(), s.cfg.Workflow.ReusableStatuses())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotReusable):
			return nil, false, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "already enrolled in this course")
		case errors.Is(err, repository.ErrUniqueViolation):
			return nil, false, appErrors.CloneWrap(appErrors.ErrConflictOnWrite, err, "concurrent enrollment for this course; retry the request")
		}
		recordWriteFailure(ctx, s.journal, "enroll", principal, principal.ID, req.CourseID, "", err)
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
	}

	operation := "re-enroll"
	if created {
		operation = "enroll"
	}
	s.metrics.RecordEnrollmentTransition(operation, string(enrollment.Status))
	s.logger.Info("enrollment recorded",
		zap.String("operation", operation),
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("course_id", enrollment.CourseID),
		zap.String("status", string(enrollment.Status)),
	)
	return enrollment, created, nil
}

// Drop marks the caller's record dropped. ref may be a record id or a course
// id. Dropping an already dropped record returns it unchanged.
func (s *EnrollmentService) Drop(ctx context.Context, principal *models.Principal, ref string) (*models.Enrollment, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment or course id is required")
	}

	enrollment, err := s.resolveRef(ctx, principal, ref)
	if err != nil {
		return nil, err
	}
	if enrollment.StudentID != principal.ID {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "only the enrolled student may drop this enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusDropped {
		return enrollment, nil
	}

	dropped, err := s.repo.TransitionStatus(ctx, enrollment.ID, enrollment.Status, models.EnrollmentStatusDropped)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
		}
		current, findErr := s.repo.FindByID(ctx, enrollment.ID)
		if findErr == nil && current.Status == models.EnrollmentStatusDropped {
			return current, nil
		}
		return nil, appErrors.Clone(appErrors.ErrConflictOnWrite, "enrollment changed while dropping; retry the request")
	}

	s.metrics.RecordEnrollmentTransition("drop", string(dropped.Status))
	s.logger.Info("enrollment dropped",
		zap.String("enrollment_id", dropped.ID),
		zap.String("student_id", dropped.StudentID),
		zap.String("course_id", dropped.CourseID),
	)
	return dropped, nil
}

func (s *EnrollmentService) resolveRef(ctx context.Context, principal *models.Principal, ref string) (*models.Enrollment, error) {
	if _, err := uuid.Parse(ref); err == nil {
		enrollment, err := s.repo.FindByID(ctx, ref)
		if err == nil {
			return enrollment, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
	}
	enrollment, err := s.repo.FindByStudentAndCourse(ctx, principal.ID, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// ListForPrincipal returns the calling student's records, most recent first,
// with course code and title. Faculty and admin access is course scoped, see
// ListByCourse.
func (s *EnrollmentService) ListForPrincipal(ctx context.Context, principal *models.Principal) ([]models.EnrollmentView, error) {
	if !principal.HasRole(models.RoleStudent) {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "enrollment listings are course scoped for faculty and administrators")
	}
	enrollments, err := s.repo.ListByStudent(ctx, principal.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	var mu sync.Mutex
	courses := make(map[string]*models.CourseSummary)
	failures := make(map[string]string)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.EnrichConcurrency)
	seen := make(map[string]bool)
	for _, enrollment := range enrollments {
		courseID := enrollment.CourseID
		if seen[courseID] {
			continue
		}
		seen[courseID] = true
		g.Go(func() error {
			course, err := s.catalog.GetCourse(ctx, principal, courseID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[courseID] = err.Error()
				return nil
			}
			courses[courseID] = course.Summary()
			return nil
		})
	}
	_ = g.Wait()

	views := make([]models.EnrollmentView, len(enrollments))
	degraded := 0
	for i, enrollment := range enrollments {
		view := models.EnrollmentView{Enrollment: enrollment, Course: courses[enrollment.CourseID]}
		if msg, ok := failures[enrollment.CourseID]; ok {
			view.EnrichmentErrors = []string{fmt.Sprintf("course: %s", msg)}
			degraded++
		}
		views[i] = view
	}
	if len(failures) > 0 {
		s.logger.Warn("enrollment listing enrichment degraded", zap.String("student_id", principal.ID), zap.Int("failed_lookups", len(failures)))
	}
	s.metrics.RecordDegraded("enrollment_view", degraded)
	return views, nil
}

// ListByCourse returns the enrolled students of a course with their directory
// profiles. Faculty must teach the course. A failed profile lookup degrades
// that row to a placeholder instead of failing the roster.
func (s *EnrollmentService) ListByCourse(ctx context.Context, principal *models.Principal, courseID string) (*models.Roster, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}
	if _, err := s.authorizeCourse(ctx, principal, courseID); err != nil {
		return nil, err
	}

	enrollments, err := s.repo.ListByCourse(ctx, courseID, s.cfg.Workflow.EnrolledStatuses())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course enrollments")
	}

	entries := make([]models.RosterEntry, len(enrollments))
	var degraded int64
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.EnrichConcurrency)
	for i := range enrollments {
		i := i
		g.Go(func() error {
			entry := models.RosterEntry{Enrollment: enrollments[i]}
			profile, err := s.directory.GetProfile(ctx, principal, enrollments[i].StudentID)
			if err != nil {
				atomic.AddInt64(&degraded, 1)
				entry.Student = models.PlaceholderProfile(enrollments[i].StudentID)
				entry.Degraded = true
				s.logger.Warn("roster profile enrichment degraded",
					zap.String("course_id", courseID),
					zap.String("student_id", enrollments[i].StudentID),
					zap.Error(err),
				)
			} else {
				entry.Student = *profile
			}
			entries[i] = entry
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.RecordDegraded("student_profile", int(degraded))
	return &models.Roster{CourseID: courseID, Entries: entries, Degraded: int(degraded)}, nil
}

// authorizeCourse confirms the course exists and, for faculty, that the caller teaches it.
func (s *EnrollmentService) authorizeCourse(ctx context.Context, principal *models.Principal, courseID string) (*models.Course, error) {
	if !principal.HasRole(models.RoleFaculty, models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "course rosters are limited to faculty and administrators")
	}
	course, err := s.catalog.GetCourse(ctx, principal, courseID)
	if err != nil {
		return nil, err
	}
	if principal.Role == models.RoleFaculty && course.InstructorID != principal.ID {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "not the instructor of this course")
	}
	return course, nil
}

// CheckEnrollment reports whether a student is currently enrolled in a course.
// Students may only check themselves.
func (s *EnrollmentService) CheckEnrollment(ctx context.Context, principal *models.Principal, studentID, courseID string) (*models.EnrollmentCheck, error) {
	studentID = strings.TrimSpace(studentID)
	courseID = strings.TrimSpace(courseID)
	if studentID == "" || courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id and course id are required")
	}
	if principal.Role == models.RoleStudent && principal.ID != studentID {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "students may only check their own enrollment")
	}

	enrollment, err := s.repo.FindByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.EnrollmentCheck{Enrolled: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !s.cfg.Workflow.IsEnrolled(enrollment.Status) {
		return &models.EnrollmentCheck{Enrolled: false}, nil
	}
	return &models.EnrollmentCheck{Enrolled: true, EnrollmentID: enrollment.ID}, nil
}

// ReviewStatus approves or rejects a pending enrollment. Only available under
// the approval workflow, to the course instructor or an administrator.
func (s *EnrollmentService) ReviewStatus(ctx context.Context, principal *models.Principal, id string, req dto.ReviewStatusRequest) (*models.Enrollment, error) {
	if s.cfg.Workflow != models.WorkflowApproval {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status review requires the approval workflow")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if _, err := s.authorizeCourse(ctx, principal, enrollment.CourseID); err != nil {
		return nil, err
	}

	target := models.EnrollmentStatus(req.Status)
	if !s.cfg.Workflow.CanTransition(enrollment.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot move enrollment from %s to %s", enrollment.Status, target))
	}

	updated, err := s.repo.TransitionStatus(ctx, enrollment.ID, enrollment.Status, target)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflictOnWrite, "enrollment changed during review; reload and retry")
		}
		recordWriteFailure(ctx, s.journal, "review_status", principal, enrollment.StudentID, enrollment.CourseID, enrollment.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}

	s.metrics.RecordEnrollmentTransition("review", string(updated.Status))
	s.logger.Info("enrollment reviewed",
		zap.String("enrollment_id", updated.ID),
		zap.String("reviewer_id", principal.ID),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportRoster renders the course roster as CSV or PDF under the same
// authorization as ListByCourse.
func (s *EnrollmentService) ExportRoster(ctx context.Context, principal *models.Principal, courseID, format string) (*dto.ExportFile, *models.Roster, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	roster, err := s.ListByCourse(ctx, principal, courseID)
	if err != nil {
		return nil, nil, err
	}

	table := export.Table{
		Title:   fmt.Sprintf("Roster %s", roster.CourseID),
		Caption: fmt.Sprintf("Generated %s, %d students", time.Now().UTC().Format(time.RFC3339), len(roster.Entries)),
		Headers: []string{"enrollment_id", "student_id", "first_name", "last_name", "email", "status", "enrollment_date"},
	}
	for _, entry := range roster.Entries {
		table.Rows = append(table.Rows, []string{
			entry.ID,
			entry.StudentID,
			entry.Student.FirstName,
			entry.Student.LastName,
			entry.Student.Email,
			string(entry.Status),
			entry.EnrollmentDate.UTC().Format(time.RFC3339),
		})
	}

	file := &dto.ExportFile{Filename: fmt.Sprintf("roster-%s.%s", roster.CourseID, format)}
	switch format {
	case ExportFormatPDF:
		file.ContentType = "application/pdf"
		file.Body, err = export.PDF(table)
	default:
		file.ContentType = "text/csv"
		file.Body, err = export.CSV(table)
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return file, roster, nil
}
