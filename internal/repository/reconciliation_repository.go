package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/course-ledger/internal/models"
)

// ReconciliationRepository keeps a capped Redis list of write-after-authorization
// failures per service. A nil client disables the journal.
type ReconciliationRepository struct {
	client     *redis.Client
	key        string
	maxEntries int64
	logger     *zap.Logger
}

// NewReconciliationRepository constructs the repository.
func NewReconciliationRepository(client *redis.Client, service string, maxEntries int64, logger *zap.Logger) *ReconciliationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &ReconciliationRepository{
		client:     client,
		key:        fmt.Sprintf("reconciliation:%s", service),
		maxEntries: maxEntries,
		logger:     logger,
	}
}

// Enabled reports whether entries are persisted.
func (r *ReconciliationRepository) Enabled() bool {
	return r != nil && r.client != nil
}

// Append pushes entry to the head of the journal and trims the tail.
func (r *ReconciliationRepository) Append(ctx context.Context, entry models.ReconciliationEntry) error {
	if !r.Enabled() {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal reconciliation entry: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, payload)
	pipe.LTrim(ctx, r.key, 0, r.maxEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append %s: %w", r.key, err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (r *ReconciliationRepository) List(ctx context.Context, limit int64) ([]models.ReconciliationEntry, error) {
	entries := []models.ReconciliationEntry{}
	if !r.Enabled() {
		return entries, nil
	}
	if limit <= 0 || limit > r.maxEntries {
		limit = r.maxEntries
	}
	raw, err := r.client.LRange(ctx, r.key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis range %s: %w", r.key, err)
	}
	for _, item := range raw {
		var entry models.ReconciliationEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			r.logger.Warn("skipping malformed reconciliation entry", zap.String("key", r.key), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close releases the underlying Redis connection if present.
func (r *ReconciliationRepository) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Close()
}
