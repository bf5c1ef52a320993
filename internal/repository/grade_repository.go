package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-ledger/internal/models"
)

const gradeColumns = `id, student_id, course_id, score, derived_grade, letter_grade, comments, submitted_by, submitted_at, last_updated`

// GradeRepository handles grade persistence.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

type gradeUpsertRow struct {
	models.Grade
	Inserted bool `db:"inserted"`
}

// Upsert inserts the grade or updates the existing (student, course) grade in
// place. The returned flag is true when a new row was created.
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade) (*models.Grade, bool, error) {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	grade.SubmittedAt = now
	grade.LastUpdated = now
	const query = `INSERT INTO grades (` + gradeColumns + `)
        VALUES (:id, :student_id, :course_id, :score, :derived_grade, :letter_grade, :comments, :submitted_by, :submitted_at, :last_updated)
        ON CONFLICT (student_id, course_id)
        DO UPDATE SET score = EXCLUDED.score, derived_grade = EXCLUDED.derived_grade, letter_grade = EXCLUDED.letter_grade,
            comments = EXCLUDED.comments, submitted_by = EXCLUDED.submitted_by, last_updated = EXCLUDED.last_updated
        RETURNING ` + gradeColumns + `, (xmax = 0) AS inserted`

	rows, err := r.db.NamedQueryContext(ctx, query, grade)
	if err != nil {
		return nil, false, fmt.Errorf("upsert grade: %w", translate(err))
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("upsert grade: %w", translate(err))
		}
		return nil, false, fmt.Errorf("upsert grade: %w", sql.ErrNoRows)
	}
	var row gradeUpsertRow
	if err := rows.StructScan(&row); err != nil {
		return nil, false, fmt.Errorf("scan grade: %w", err)
	}
	stored := row.Grade
	return &stored, row.Inserted, nil
}

// FindByID returns a grade by id.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	const query = `SELECT ` + gradeColumns + ` FROM grades WHERE id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// List returns grades matching the filter, most recently updated first.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error) {
	grades := []models.Grade{}
	if filter.RestrictCourses && len(filter.CourseIDs) == 0 {
		return grades, nil
	}
	var conditions []string
	var args []interface{}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.RestrictCourses {
		conditions = append(conditions, fmt.Sprintf("course_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.CourseIDs))
	}
	query := `SELECT ` + gradeColumns + ` FROM grades`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY last_updated DESC"
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// Update rewrites the score fields of an existing grade.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) (*models.Grade, error) {
	grade.LastUpdated = time.Now().UTC()
	const query = `UPDATE grades SET score = $2, derived_grade = $3, letter_grade = $4, comments = $5, submitted_by = $6, last_updated = $7
        WHERE id = $1
        RETURNING ` + gradeColumns
	var updated models.Grade
	err := r.db.GetContext(ctx, &updated, query, grade.ID, grade.Score, grade.DerivedGrade, grade.LetterGrade, grade.Comments, grade.SubmittedBy, grade.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update grade: %w", err)
	}
	return &updated, nil
}

// Delete hard deletes a grade. sql.ErrNoRows is returned when nothing matched.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete grade rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
