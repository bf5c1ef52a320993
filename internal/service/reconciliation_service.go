package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-ledger/internal/models"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
)

type reconciliationStore interface {
	Append(ctx context.Context, entry models.ReconciliationEntry) error
	List(ctx context.Context, limit int64) ([]models.ReconciliationEntry, error)
	Enabled() bool
}

// writeJournal records writes that failed after authorization succeeded.
type writeJournal interface {
	Record(ctx context.Context, entry models.ReconciliationEntry)
}

// ReconciliationService keeps write-after-authorization failures visible for
// manual repair. Nothing replays the entries.
type ReconciliationService struct {
	store   reconciliationStore
	service string
	metrics *MetricsService
	logger  *zap.Logger
}

// NewReconciliationService constructs the service. store may be nil, in which
// case failures are only logged and counted.
func NewReconciliationService(store reconciliationStore, service string, metrics *MetricsService, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{store: store, service: service, metrics: metrics, logger: logger}
}

// Record logs, counts and journals entry. Journal failures are logged, never returned.
func (s *ReconciliationService) Record(ctx context.Context, entry models.ReconciliationEntry) {
	entry.ID = uuid.NewString()
	entry.Service = s.service
	entry.RecordedAt = time.Now().UTC()

	s.metrics.RecordReconciliation(entry.Operation)
	s.logger.Error("write failed after authorization; manual reconciliation required",
		zap.String("entry_id", entry.ID),
		zap.String("operation", entry.Operation),
		zap.String("principal_id", entry.PrincipalID),
		zap.String("student_id", entry.StudentID),
		zap.String("course_id", entry.CourseID),
		zap.String("record_id", entry.RecordID),
		zap.String("error", entry.Error),
	)

	if s.store == nil || !s.store.Enabled() {
		return
	}
	// Journal even when the request context is already cancelled.
	journalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.store.Append(journalCtx, entry); err != nil {
		s.logger.Error("failed to journal reconciliation entry", zap.String("entry_id", entry.ID), zap.Error(err))
	}
}

// List returns journal entries to an admin.
func (s *ReconciliationService) List(ctx context.Context, principal *models.Principal, limit int64) ([]models.ReconciliationEntry, error) {
	if !principal.HasRole(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "only administrators may read the reconciliation journal")
	}
	if s.store == nil {
		return []models.ReconciliationEntry{}, nil
	}
	entries, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read reconciliation journal")
	}
	return entries, nil
}

func recordWriteFailure(ctx context.Context, journal writeJournal, operation string, principal *models.Principal, studentID, courseID, recordID string, err error) {
	if journal == nil {
		return
	}
	journal.Record(ctx, models.ReconciliationEntry{
		Operation:   operation,
		PrincipalID: principal.ID,
		StudentID:   studentID,
		CourseID:    courseID,
		RecordID:    recordID,
		Error:       err.Error(),
	})
}
