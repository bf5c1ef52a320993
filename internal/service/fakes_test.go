package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/internal/repository"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
)

// memoryEnrollmentRepo mirrors the upsert semantics of the SQL repository,
// including the (student, course) uniqueness guarantee.
type memoryEnrollmentRepo struct {
	mu      sync.Mutex
	records map[string]*models.Enrollment
	byPair  map[string]string
	clock   time.Time
	failErr error
}

func newMemoryEnrollmentRepo() *memoryEnrollmentRepo {
	return &memoryEnrollmentRepo{
		records: map[string]*models.Enrollment{},
		byPair:  map[string]string{},
		clock:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memoryEnrollmentRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memoryEnrollmentRepo) Enroll(_ context.Context, studentID, courseID string, status models.EnrollmentStatus, reusable []models.EnrollmentStatus) (*models.Enrollment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, false, m.failErr
	}
	now := m.tick()
	if id, ok := m.byPair[studentID+"|"+courseID]; ok {
		existing := m.records[id]
		for _, candidate := range reusable {
			if existing.Status == candidate {
				existing.Status = status
				existing.EnrollmentDate = now
				existing.UpdatedAt = now
				copied := *existing
				return &copied, false, nil
			}
		}
		return nil, false, repository.ErrNotReusable
	}
	record := &models.Enrollment{ID: uuid.NewString(), StudentID: studentID, CourseID: courseID, Status: status, EnrollmentDate: now, UpdatedAt: now}
	m.records[record.ID] = record
	m.byPair[studentID+"|"+courseID] = record.ID
	copied := *record
	return &copied, true, nil
}

func (m *memoryEnrollmentRepo) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (m *memoryEnrollmentRepo) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	m.mu.Lock()
	id, ok := m.byPair[studentID+"|"+courseID]
	m.mu.Unlock()
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m.FindByID(ctx, id)
}

func (m *memoryEnrollmentRepo) TransitionStatus(_ context.Context, id string, from, to models.EnrollmentStatus) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	record, ok := m.records[id]
	if !ok || record.Status != from {
		return nil, sql.ErrNoRows
	}
	record.Status = to
	record.UpdatedAt = m.tick()
	copied := *record
	return &copied, nil
}

func (m *memoryEnrollmentRepo) ListByStudent(_ context.Context, studentID string) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Enrollment{}
	for _, record := range m.records {
		if record.StudentID == studentID {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrollmentDate.After(out[j].EnrollmentDate) })
	return out, nil
}

func (m *memoryEnrollmentRepo) ListByCourse(_ context.Context, courseID string, statuses []models.EnrollmentStatus) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Enrollment{}
	for _, record := range m.records {
		if record.CourseID != courseID {
			continue
		}
		for _, status := range statuses {
			if record.Status == status {
				out = append(out, *record)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrollmentDate.Before(out[j].EnrollmentDate) })
	return out, nil
}

func (m *memoryEnrollmentRepo) CountByCourse(ctx context.Context, courseID string, statuses []models.EnrollmentStatus) (int, error) {
	list, err := m.ListByCourse(ctx, courseID, statuses)
	return len(list), err
}

func (m *memoryEnrollmentRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type fakeCatalog struct {
	mu      sync.Mutex
	courses map[string]models.Course
	err     error
	calls   int
}

func (f *fakeCatalog) GetCourse(_ context.Context, _ *models.Principal, courseID string) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	course, ok := f.courses[courseID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "")
	}
	return &course, nil
}

func (f *fakeCatalog) ListCourses(_ context.Context, _ *models.Principal) ([]models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Course, 0, len(f.courses))
	for _, course := range f.courses {
		out = append(out, course)
	}
	return out, nil
}

type fakeDirectory struct {
	mu       sync.Mutex
	profiles map[string]models.Profile
	lookups  map[string]int
}

func (f *fakeDirectory) GetProfile(_ context.Context, _ *models.Principal, userID string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookups == nil {
		f.lookups = map[string]int{}
	}
	f.lookups[userID]++
	profile, ok := f.profiles[userID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrDependencyUnavailable, "identity unreachable")
	}
	return &profile, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []models.ReconciliationEntry
}

func (f *fakeJournal) Record(_ context.Context, entry models.ReconciliationEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

var errDiskFull = errors.New("disk full")

var (
	studentA   = &models.Principal{ID: "stu-a", Role: models.RoleStudent}
	studentB   = &models.Principal{ID: "stu-b", Role: models.RoleStudent}
	instructor = &models.Principal{ID: "fac-1", Role: models.RoleFaculty}
	other      = &models.Principal{ID: "fac-2", Role: models.RoleFaculty}
	admin      = &models.Principal{ID: "adm-1", Role: models.RoleAdmin}
)

func newCatalog() *fakeCatalog {
	return &fakeCatalog{courses: map[string]models.Course{
		"C101": {ID: "C101", Code: "CS101", Title: "Intro", InstructorID: "fac-1", Capacity: 2, Status: models.CourseStatusOpen},
		"C202": {ID: "C202", Code: "CS202", Title: "Systems", InstructorID: "fac-2", Capacity: 30, Status: models.CourseStatusOpen},
	}}
}
