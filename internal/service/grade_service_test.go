package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-ledger/internal/dto"
	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/internal/repository"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
)

type memoryGradeRepo struct {
	mu      sync.Mutex
	grades  map[string]*models.Grade
	clock   time.Time
	failErr error
}

func newMemoryGradeRepo() *memoryGradeRepo {
	return &memoryGradeRepo{grades: map[string]*models.Grade{}, clock: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (m *memoryGradeRepo) Upsert(_ context.Context, grade *models.Grade) (*models.Grade, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, false, m.failErr
	}
	m.clock = m.clock.Add(time.Minute)
	for _, existing := range m.grades {
		if existing.StudentID == grade.StudentID && existing.CourseID == grade.CourseID {
			existing.Score = grade.Score
			existing.DerivedGrade = grade.DerivedGrade
			existing.LetterGrade = grade.LetterGrade
			existing.Comments = grade.Comments
			existing.SubmittedBy = grade.SubmittedBy
			existing.LastUpdated = m.clock
			copied := *existing
			return &copied, false, nil
		}
	}
	stored := *grade
	stored.ID = uuid.NewString()
	stored.SubmittedAt = m.clock
	stored.LastUpdated = m.clock
	m.grades[stored.ID] = &stored
	copied := stored
	return &copied, true, nil
}

func (m *memoryGradeRepo) FindByID(_ context.Context, id string) (*models.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grade, ok := m.grades[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *grade
	return &copied, nil
}

func (m *memoryGradeRepo) List(_ context.Context, filter models.GradeFilter) ([]models.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	allowed := map[string]bool{}
	for _, id := range filter.CourseIDs {
		allowed[id] = true
	}
	out := []models.Grade{}
	for _, grade := range m.grades {
		if filter.StudentID != "" && grade.StudentID != filter.StudentID {
			continue
		}
		if filter.RestrictCourses && !allowed[grade.CourseID] {
			continue
		}
		out = append(out, *grade)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return out, nil
}

func (m *memoryGradeRepo) Update(_ context.Context, grade *models.Grade) (*models.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	if _, ok := m.grades[grade.ID]; !ok {
		return nil, sql.ErrNoRows
	}
	m.clock = m.clock.Add(time.Minute)
	stored := *grade
	stored.LastUpdated = m.clock
	m.grades[grade.ID] = &stored
	copied := stored
	return &copied, nil
}

func (m *memoryGradeRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grades[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.grades, id)
	return nil
}

type fakeLedger struct {
	enrolled map[string]bool
	err      error
	calls    int
}

func (f *fakeLedger) CheckEnrollment(_ context.Context, _ *models.Principal, studentID, courseID string) (*models.EnrollmentCheck, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.enrolled[studentID+"|"+courseID] {
		return &models.EnrollmentCheck{Enrolled: true, EnrollmentID: "enr-" + studentID}, nil
	}
	return &models.EnrollmentCheck{Enrolled: false}, nil
}

type gradeFixture struct {
	svc       *GradeService
	repo      *memoryGradeRepo
	catalog   *fakeCatalog
	ledger    *fakeLedger
	directory *fakeDirectory
	journal   *fakeJournal
}

func newGradeFixture() *gradeFixture {
	f := &gradeFixture{
		repo:    newMemoryGradeRepo(),
		catalog: newCatalog(),
		ledger: &fakeLedger{enrolled: map[string]bool{
			"stu-a|C101": true,
			"stu-a|C202": true,
			"stu-b|C101": true,
		}},
		journal: &fakeJournal{},
	}
	f.directory = &fakeDirectory{profiles: map[string]models.Profile{
		"stu-a": {ID: "stu-a", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		"fac-1": {ID: "fac-1", FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"},
		"fac-2": {ID: "fac-2", FirstName: "Alan", LastName: "Turing", Email: "alan@example.com"},
	}}
	f.svc = NewGradeService(f.repo, f.catalog, f.ledger, f.directory, f.journal, NewMetricsService(), nil, zap.NewNop(), 4)
	return f
}

func score(v float64) *float64 { return &v }

func TestSubmitGradeCreatesThenUpdatesInPlace(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()

	first, created, err := f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(95), Comments: "great"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 4.0, first.DerivedGrade)
	assert.Equal(t, "A", first.LetterGrade)
	assert.Equal(t, "fac-1", first.SubmittedBy)

	second, created, err := f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(94.9)})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 94.9, second.Score)
	assert.Equal(t, 3.5, second.DerivedGrade)
	assert.Len(t, f.repo.grades, 1)
}

func TestSubmitGradeRequiresEnrollment(t *testing.T) {
	f := newGradeFixture()

	_, _, err := f.svc.SubmitGrade(context.Background(), instructor, dto.SubmitGradeRequest{StudentID: "stu-z", CourseID: "C101", Score: score(80)})
	assert.ErrorIs(t, err, appErrors.ErrStudentNotEnrolled)
	assert.Empty(t, f.repo.grades)
}

func TestSubmitGradeCheckOrder(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()

	_, _, err := f.svc.SubmitGrade(ctx, other, dto.SubmitGradeRequest{StudentID: "stu-z", CourseID: "C101", Score: score(150)})
	assert.ErrorIs(t, err, appErrors.ErrNotAuthorized)
	assert.Zero(t, f.ledger.calls)

	_, _, err = f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-z", CourseID: "C101", Score: score(150)})
	assert.ErrorIs(t, err, appErrors.ErrStudentNotEnrolled)

	_, _, err = f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(100.5)})
	assert.ErrorIs(t, err, appErrors.ErrInvalidScore)

	_, _, err = f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidScore)

	_, _, err = f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{CourseID: "C101", Score: score(50)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, _, err = f.svc.SubmitGrade(ctx, studentA, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(100)})
	assert.ErrorIs(t, err, appErrors.ErrNotAuthorized)
	assert.Empty(t, f.repo.grades)
}

func TestSubmitGradeDependencyFailuresStayDistinct(t *testing.T) {
	f := newGradeFixture()
	f.ledger.err = appErrors.Clone(appErrors.ErrDependencyUnavailable, "enrollment timed out")

	_, _, err := f.svc.SubmitGrade(context.Background(), instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(70)})
	assert.ErrorIs(t, err, appErrors.ErrDependencyUnavailable)
	assert.NotErrorIs(t, err, appErrors.ErrNotAuthorized)
	assert.Empty(t, f.repo.grades)
}

func TestSubmitGradeWriteFailureIsJournaled(t *testing.T) {
	f := newGradeFixture()
	f.repo.failErr = errDiskFull

	_, _, err := f.svc.SubmitGrade(context.Background(), instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(70)})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	require.Len(t, f.journal.entries, 1)
	assert.Equal(t, "submit_grade", f.journal.entries[0].Operation)
	assert.Equal(t, "stu-a", f.journal.entries[0].StudentID)
}

func TestGetGradesScopesByRole(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()
	_, _, err := f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(90)})
	require.NoError(t, err)
	_, _, err = f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-b", CourseID: "C101", Score: score(61)})
	require.NoError(t, err)
	_, _, err = f.svc.SubmitGrade(ctx, other, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C202", Score: score(75)})
	require.NoError(t, err)

	own, err := f.svc.GetGrades(ctx, studentA)
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Equal(t, "C202", own[0].CourseID)

	taught, err := f.svc.GetGrades(ctx, instructor)
	require.NoError(t, err)
	require.Len(t, taught, 2)
	for _, view := range taught {
		assert.Equal(t, "C101", view.CourseID)
		require.NotNil(t, view.Course)
		assert.Equal(t, "CS101", view.Course.Code)
	}

	all, err := f.svc.GetGrades(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetGradesDegradesIndividualFields(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()
	_, _, err := f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-b", CourseID: "C101", Score: score(88)})
	require.NoError(t, err)

	views, err := f.svc.GetGrades(ctx, admin)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.NotNil(t, views[0].Course)
	assert.Nil(t, views[0].Student)
	require.Len(t, views[0].EnrichmentErrors, 1)
	assert.Contains(t, views[0].EnrichmentErrors[0], "student:")
}

func TestGetGradesEnrichesSubmitterOncePerUser(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()
	_, _, err := f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(90)})
	require.NoError(t, err)
	_, _, err = f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-b", CourseID: "C101", Score: score(70)})
	require.NoError(t, err)
	f.directory.lookups = nil

	views, err := f.svc.GetGrades(ctx, admin)
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, view := range views {
		require.NotNil(t, view.Submitter)
		assert.Equal(t, "Grace", view.Submitter.FirstName)
	}
	assert.Equal(t, 1, f.directory.lookups["fac-1"])
	assert.Equal(t, 1, f.directory.lookups["stu-b"])

	delete(f.directory.profiles, "fac-1")
	views, err = f.svc.GetGrades(ctx, admin)
	require.NoError(t, err)
	for _, view := range views {
		assert.Nil(t, view.Submitter)
		assert.NotNil(t, view.Course)
		assert.Contains(t, view.EnrichmentErrors, "submitter: identity unreachable")
	}
}

func TestGetGradesFacultyCatalogFailure(t *testing.T) {
	f := newGradeFixture()
	f.catalog.err = appErrors.Clone(appErrors.ErrDependencyUnavailable, "catalog unreachable")

	_, err := f.svc.GetGrades(context.Background(), instructor)
	assert.ErrorIs(t, err, appErrors.ErrDependencyUnavailable)
}

func TestGradesForStudent(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()
	_, _, err := f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(90)})
	require.NoError(t, err)
	_, _, err = f.svc.SubmitGrade(ctx, other, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C202", Score: score(80)})
	require.NoError(t, err)

	_, err = f.svc.GradesForStudent(ctx, studentB, "stu-a")
	assert.ErrorIs(t, err, appErrors.ErrNotAuthorized)

	own, err := f.svc.GradesForStudent(ctx, studentA, "stu-a")
	require.NoError(t, err)
	assert.Len(t, own, 2)

	scoped, err := f.svc.GradesForStudent(ctx, other, "stu-a")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "C202", scoped[0].CourseID)
}

func TestUpdateGrade(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()
	grade, _, err := f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(70)})
	require.NoError(t, err)

	_, err = f.svc.UpdateGrade(ctx, other, grade.ID, dto.UpdateGradeRequest{Score: score(99)})
	assert.ErrorIs(t, err, appErrors.ErrNotAuthorized)

	_, err = f.svc.UpdateGrade(ctx, instructor, grade.ID, dto.UpdateGradeRequest{Score: score(-1)})
	assert.ErrorIs(t, err, appErrors.ErrInvalidScore)

	_, err = f.svc.UpdateGrade(ctx, instructor, grade.ID, dto.UpdateGradeRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	note := "regraded"
	updated, err := f.svc.UpdateGrade(ctx, instructor, grade.ID, dto.UpdateGradeRequest{Score: score(83), Comments: &note})
	require.NoError(t, err)
	assert.Equal(t, grade.ID, updated.ID)
	assert.Equal(t, 3.0, updated.DerivedGrade)
	assert.Equal(t, "B+", updated.LetterGrade)
	assert.Equal(t, "regraded", updated.Comments)

	_, err = f.svc.UpdateGrade(ctx, instructor, "missing", dto.UpdateGradeRequest{Score: score(50)})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDeleteGradeRestrictedToSubmitter(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()
	grade, _, err := f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(70)})
	require.NoError(t, err)

	err = f.svc.DeleteGrade(ctx, other, grade.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotAuthorized)
	assert.Len(t, f.repo.grades, 1)

	require.NoError(t, f.svc.DeleteGrade(ctx, instructor, grade.ID))
	assert.Empty(t, f.repo.grades)

	err = f.svc.DeleteGrade(ctx, instructor, grade.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSubmitGradeRoundsScoreBeforeDeriving(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()

	grade, _, err := f.svc.SubmitGrade(ctx, instructor, dto.SubmitGradeRequest{StudentID: "stu-a", CourseID: "C101", Score: score(94.996)})
	require.NoError(t, err)
	assert.Equal(t, 95.0, grade.Score)
	assert.Equal(t, 4.0, grade.DerivedGrade)
	assert.Equal(t, "A", grade.LetterGrade)

	updated, err := f.svc.UpdateGrade(ctx, instructor, grade.ID, dto.UpdateGradeRequest{Score: score(88.996)})
	require.NoError(t, err)
	assert.Equal(t, 89.0, updated.Score)
	assert.Equal(t, 3.5, updated.DerivedGrade)
	assert.Equal(t, "A-", updated.LetterGrade)
}

func TestMalformedGradeIDIsNotFoundWithoutQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	f := newGradeFixture()
	svc := NewGradeService(repository.NewGradeRepository(sqlx.NewDb(db, "sqlmock")), f.catalog, f.ledger, nil, f.journal, NewMetricsService(), nil, zap.NewNop(), 4)
	ctx := context.Background()

	err = svc.DeleteGrade(ctx, instructor, "abc")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, 404, appErrors.FromError(err).Status)

	_, err = svc.UpdateGrade(ctx, instructor, "abc", dto.UpdateGradeRequest{Score: score(50)})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, f.journal.entries)
	require.NoError(t, mock.ExpectationsWereMet())
}
