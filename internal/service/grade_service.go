package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/course-ledger/internal/dto"
	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/internal/repository"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
)

type gradeRepository interface {
	Upsert(ctx context.Context, grade *models.Grade) (*models.Grade, bool, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error)
	Update(ctx context.Context, grade *models.Grade) (*models.Grade, error)
	Delete(ctx context.Context, id string) error
}

type enrollmentChecker interface {
	CheckEnrollment(ctx context.Context, principal *models.Principal, studentID, courseID string) (*models.EnrollmentCheck, error)
}

// GradeService gates grade reads and writes behind catalog and ledger checks.
type GradeService struct {
	repo              gradeRepository
	catalog           courseCatalog
	ledger            enrollmentChecker
	directory         profileDirectory
	journal           writeJournal
	metrics           *MetricsService
	validator         *validator.Validate
	logger            *zap.Logger
	enrichConcurrency int
}

// NewGradeService constructs the grading gate.
func NewGradeService(repo gradeRepository, catalog courseCatalog, ledger enrollmentChecker, directory profileDirectory, journal writeJournal, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, enrichConcurrency int) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if enrichConcurrency <= 0 {
		enrichConcurrency = 8
	}
	return &GradeService{
		repo:              repo,
		catalog:           catalog,
		ledger:            ledger,
		directory:         directory,
		journal:           journal,
		metrics:           metrics,
		validator:         validate,
		logger:            logger,
		enrichConcurrency: enrichConcurrency,
	}
}

// SubmitGrade records a grade for an enrolled student. Checks run in order and
// stop at the first failure: instructor match, enrollment, score range. An
// existing grade for the pair is updated in place; created reports an insert.
func (s *GradeService) SubmitGrade(ctx context.Context, principal *models.Principal, req dto.SubmitGradeRequest) (*models.Grade, bool, error) {
	if !principal.HasRole(models.RoleFaculty) {
		return nil, false, appErrors.Clone(appErrors.ErrNotAuthorized, "only faculty may submit grades")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	course, err := s.catalog.GetCourse(ctx, principal, req.CourseID)
	if err != nil {
		return nil, false, err
	}
	if course.InstructorID != principal.ID {
		return nil, false, appErrors.Clone(appErrors.ErrNotAuthorized, "not the instructor of this course")
	}

	check, err := s.ledger.CheckEnrollment(ctx, principal, req.StudentID, req.CourseID)
	if err != nil {
		return nil, false, err
	}
	if !check.Enrolled {
		return nil, false, appErrors.Clone(appErrors.ErrStudentNotEnrolled, "student is not enrolled in this course")
	}

	if req.Score == nil || !models.ValidScore(*req.Score) {
		return nil, false, appErrors.Clone(appErrors.ErrInvalidScore, "score must be a number between 0 and 100")
	}

	value := models.RoundScore(*req.Score)
	grade := &models.Grade{
		StudentID:    req.StudentID,
		CourseID:     req.CourseID,
		Score:        value,
		DerivedGrade: models.DerivedGrade(value),
		LetterGrade:  models.LetterGrade(value),
		Comments:     req.Comments,
		SubmittedBy:  principal.ID,
	}
	stored, created, err := s.repo.Upsert(ctx, grade)
	if err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, false, appErrors.CloneWrap(appErrors.ErrConflictOnWrite, err, "concurrent grade submission; retry the request")
		}
		recordWriteFailure(ctx, s.journal, "submit_grade", principal, req.StudentID, req.CourseID, "", err)
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade")
	}

	kind := "update"
	if created {
		kind = "create"
	}
	s.metrics.RecordGradeWrite(kind)
	s.logger.Info("grade recorded",
		zap.String("kind", kind),
		zap.String("grade_id", stored.ID),
		zap.String("student_id", stored.StudentID),
		zap.String("course_id", stored.CourseID),
		zap.String("submitted_by", stored.SubmittedBy),
	)
	return stored, created, nil
}

// GetGrades lists the grades visible to the caller: students see their own,
// faculty the grades of courses they teach, administrators everything.
func (s *GradeService) GetGrades(ctx context.Context, principal *models.Principal) ([]models.GradeView, error) {
	filter := models.GradeFilter{}
	var known map[string]models.Course
	switch principal.Role {
	case models.RoleStudent:
		filter.StudentID = principal.ID
	case models.RoleFaculty:
		courses, err := s.taughtCourses(ctx, principal)
		if err != nil {
			return nil, err
		}
		known = courses
		filter.RestrictCourses = true
		filter.CourseIDs = courseIDs(courses)
	case models.RoleAdmin:
	default:
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "unknown role")
	}
	return s.listAndEnrich(ctx, principal, filter, known)
}

// GradesForStudent lists one student's grades. Students may only read their
// own; faculty only see grades for courses they teach.
func (s *GradeService) GradesForStudent(ctx context.Context, principal *models.Principal, studentID string) ([]models.GradeView, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	filter := models.GradeFilter{StudentID: studentID}
	var known map[string]models.Course
	switch principal.Role {
	case models.RoleStudent:
		if principal.ID != studentID {
			return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "not authorized to view these grades")
		}
	case models.RoleFaculty:
		courses, err := s.taughtCourses(ctx, principal)
		if err != nil {
			return nil, err
		}
		known = courses
		filter.RestrictCourses = true
		filter.CourseIDs = courseIDs(courses)
	case models.RoleAdmin:
	default:
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "unknown role")
	}
	return s.listAndEnrich(ctx, principal, filter, known)
}

// UpdateGrade rewrites score and comments of an existing grade. Only the course
// instructor may update; the caller becomes the submitter.
func (s *GradeService) UpdateGrade(ctx context.Context, principal *models.Principal, gradeID string, req dto.UpdateGradeRequest) (*models.Grade, error) {
	if !principal.HasRole(models.RoleFaculty) {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "only faculty may update grades")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if req.Score == nil && req.Comments == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score or comments must be provided")
	}

	grade, err := s.findGrade(ctx, gradeID)
	if err != nil {
		return nil, err
	}

	course, err := s.catalog.GetCourse(ctx, principal, grade.CourseID)
	if err != nil {
		return nil, err
	}
	if course.InstructorID != principal.ID {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "not the instructor of this course")
	}

	if req.Score != nil {
		if !models.ValidScore(*req.Score) {
			return nil, appErrors.Clone(appErrors.ErrInvalidScore, "score must be a number between 0 and 100")
		}
		value := models.RoundScore(*req.Score)
		grade.Score = value
		grade.DerivedGrade = models.DerivedGrade(value)
		grade.LetterGrade = models.LetterGrade(value)
	}
	if req.Comments != nil {
		grade.Comments = *req.Comments
	}
	grade.SubmittedBy = principal.ID

	updated, err := s.repo.Update(ctx, grade)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		recordWriteFailure(ctx, s.journal, "update_grade", principal, grade.StudentID, grade.CourseID, grade.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}

	s.metrics.RecordGradeWrite("update")
	s.logger.Info("grade updated", zap.String("grade_id", updated.ID), zap.String("submitted_by", updated.SubmittedBy))
	return updated, nil
}

// DeleteGrade hard deletes a grade. Only its submitter may delete it.
func (s *GradeService) DeleteGrade(ctx context.Context, principal *models.Principal, gradeID string) error {
	grade, err := s.findGrade(ctx, gradeID)
	if err != nil {
		return err
	}
	if grade.SubmittedBy != principal.ID {
		return appErrors.Clone(appErrors.ErrNotAuthorized, "only the submitting instructor may delete this grade")
	}
	if err := s.repo.Delete(ctx, gradeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}

	s.metrics.RecordGradeWrite("delete")
	s.logger.Info("grade deleted", zap.String("grade_id", gradeID), zap.String("deleted_by", principal.ID))
	return nil
}

func (s *GradeService) findGrade(ctx context.Context, gradeID string) (*models.Grade, error) {
	if gradeID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade id is required")
	}
	// Grade ids are UUIDs; anything else cannot name a stored grade.
	if _, err := uuid.Parse(gradeID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
	}
	grade, err := s.repo.FindByID(ctx, gradeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

// taughtCourses fetches the course list once and keeps the caller's courses.
func (s *GradeService) taughtCourses(ctx context.Context, principal *models.Principal) (map[string]models.Course, error) {
	courses, err := s.catalog.ListCourses(ctx, principal)
	if err != nil {
		return nil, err
	}
	taught := make(map[string]models.Course)
	for _, course := range courses {
		if course.InstructorID == principal.ID {
			taught[course.ID] = course
		}
	}
	return taught, nil
}

func courseIDs(courses map[string]models.Course) []string {
	ids := make([]string, 0, len(courses))
	for id := range courses {
		ids = append(ids, id)
	}
	return ids
}

func (s *GradeService) listAndEnrich(ctx context.Context, principal *models.Principal, filter models.GradeFilter, known map[string]models.Course) ([]models.GradeView, error) {
	grades, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return s.enrich(ctx, principal, grades, known), nil
}

// enrich attaches course, student and submitter data, fetching each distinct
// course and user once. A failed lookup leaves that field nil and notes the
// failure on the row.
func (s *GradeService) enrich(ctx context.Context, principal *models.Principal, grades []models.Grade, known map[string]models.Course) []models.GradeView {
	var mu sync.Mutex
	courses := make(map[string]*models.CourseSummary)
	profiles := make(map[string]*models.Profile)
	failures := make(map[string]string)

	g := new(errgroup.Group)
	g.SetLimit(s.enrichConcurrency)
	seen := make(map[string]bool)
	lookupProfile := func(userID string) {
		if userID == "" || seen["user:"+userID] {
			return
		}
		seen["user:"+userID] = true
		g.Go(func() error {
			profile, err := s.directory.GetProfile(ctx, principal, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures["user:"+userID] = err.Error()
				return nil
			}
			profiles[userID] = profile
			return nil
		})
	}
	for _, grade := range grades {
		courseID := grade.CourseID
		if course, ok := known[courseID]; ok {
			mu.Lock()
			courses[courseID] = course.Summary()
			mu.Unlock()
		} else if !seen["course:"+courseID] {
			seen["course:"+courseID] = true
			g.Go(func() error {
				course, err := s.catalog.GetCourse(ctx, principal, courseID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures["course:"+courseID] = err.Error()
					return nil
				}
				courses[courseID] = course.Summary()
				return nil
			})
		}
		lookupProfile(grade.StudentID)
		lookupProfile(grade.SubmittedBy)
	}
	_ = g.Wait()

	views := make([]models.GradeView, len(grades))
	degraded := 0
	for i, grade := range grades {
		view := models.GradeView{
			Grade:     grade,
			Course:    courses[grade.CourseID],
			Student:   profiles[grade.StudentID],
			Submitter: profiles[grade.SubmittedBy],
		}
		if msg, ok := failures["course:"+grade.CourseID]; ok {
			view.EnrichmentErrors = append(view.EnrichmentErrors, fmt.Sprintf("course: %s", msg))
		}
		if msg, ok := failures["user:"+grade.StudentID]; ok {
			view.EnrichmentErrors = append(view.EnrichmentErrors, fmt.Sprintf("student: %s", msg))
		}
		if msg, ok := failures["user:"+grade.SubmittedBy]; ok {
			view.EnrichmentErrors = append(view.EnrichmentErrors, fmt.Sprintf("submitter: %s", msg))
		}
		if len(view.EnrichmentErrors) > 0 {
			degraded++
		}
		views[i] = view
	}
	if len(failures) > 0 {
		s.logger.Warn("grade enrichment degraded", zap.Int("rows", degraded), zap.Int("failed_lookups", len(failures)))
	}
	s.metrics.RecordDegraded("grade_view", degraded)
	return views
}
