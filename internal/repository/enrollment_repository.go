package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-ledger/internal/models"
)

const enrollmentColumns = `id, student_id, course_id, status, enrollment_date, updated_at`

// EnrollmentRepository handles persistence of ledger records.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

type enrollmentUpsertRow struct {
	models.Enrollment
	Inserted bool `db:"inserted"`
}

// Enroll atomically creates the (student, course) record or flips a reusable
// one back to status with a fresh enrollment date. The reused record keeps its
// id. ErrNotReusable is returned when the existing record blocks enrollment.
func (r *EnrollmentRepository) Enroll(ctx context.Context, studentID, courseID string, status models.EnrollmentStatus, reusable []models.EnrollmentStatus) (*models.Enrollment, bool, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO enrollments (` + enrollmentColumns + `)
        VALUES ($1, $2, $3, $4, $5, $5)
        ON CONFLICT (student_id, course_id) DO UPDATE
        SET status = EXCLUDED.status, enrollment_date = EXCLUDED.enrollment_date, updated_at = EXCLUDED.updated_at
        WHERE enrollments.status = ANY($6)
        RETURNING ` + enrollmentColumns + `, (xmax = 0) AS inserted`

	var row enrollmentUpsertRow
	err := r.db.GetContext(ctx, &row, query, uuid.NewString(), studentID, courseID, status, now, pq.Array(models.StatusStrings(reusable)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrNotReusable
		}
		return nil, false, fmt.Errorf("enroll: %w", translate(err))
	}
	enrollment := row.Enrollment
	return &enrollment, row.Inserted, nil
}

// FindByID returns a record by id.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByStudentAndCourse returns the record for the natural key.
func (r *EnrollmentRepository) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// TransitionStatus moves a record to status only while it is still in from.
// sql.ErrNoRows is returned when the record changed underneath the caller.
func (r *EnrollmentRepository) TransitionStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (*models.Enrollment, error) {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3
        WHERE id = $1 AND status = $4
        RETURNING ` + enrollmentColumns
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id, to, time.Now().UTC(), from); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update enrollment status: %w", translate(err))
	}
	return &enrollment, nil
}

// ListByStudent returns every record for the student, most recent first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	const query = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 ORDER BY enrollment_date DESC`
	enrollments := []models.Enrollment{}
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByCourse returns the course records in any of statuses, oldest first.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string, statuses []models.EnrollmentStatus) ([]models.Enrollment, error) {
	const query = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE course_id = $1 AND status = ANY($2) ORDER BY enrollment_date ASC`
	enrollments := []models.Enrollment{}
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID, pq.Array(models.StatusStrings(statuses))); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return enrollments, nil
}

// CountByCourse counts course records in any of statuses.
func (r *EnrollmentRepository) CountByCourse(ctx context.Context, courseID string, statuses []models.EnrollmentStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = ANY($2)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, courseID, pq.Array(models.StatusStrings(statuses))); err != nil {
		return 0, fmt.Errorf("count course enrollments: %w", err)
	}
	return total, nil
}
