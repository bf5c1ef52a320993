package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-ledger/internal/models"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
)

type fakeReconciliationSrv struct {
	entries   []models.ReconciliationEntry
	err       error
	lastLimit int64
}

func (f *fakeReconciliationSrv) List(_ context.Context, _ *models.Principal, limit int64) ([]models.ReconciliationEntry, error) {
	f.lastLimit = limit
	return f.entries, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestReconciliationHandlerListDefaultsAndCapsLimit(t *testing.T) {
	srv := &fakeReconciliationSrv{entries: []models.ReconciliationEntry{{ID: "r-1", Operation: "enroll", RecordedAt: time.Now()}}}
	handler := NewReconciliationHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/admin/reconciliation", "", adminPrincipal)
	handler.List(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(defaultReconciliationLimit), srv.lastLimit)

	c, rec = newTestContext(http.MethodGet, "/admin/reconciliation?limit=100000", "", adminPrincipal)
	handler.List(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(maxReconciliationLimit), srv.lastLimit)
}

func TestReconciliationHandlerRejectsBadLimit(t *testing.T) {
	handler := NewReconciliationHandler(&fakeReconciliationSrv{})
	c, rec := newTestContext(http.MethodGet, "/admin/reconciliation?limit=-3", "", adminPrincipal)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconciliationHandlerForbidden(t *testing.T) {
	handler := NewReconciliationHandler(&fakeReconciliationSrv{err: appErrors.ErrNotAuthorized})
	c, rec := newTestContext(http.MethodGet, "/admin/reconciliation", "", facultyPrincipal)

	handler.List(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	handler := NewMetricsHandler(nil, fakePinger{}, "enrollment-service")
	c, rec := newTestContext(http.MethodGet, "/ready", "", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	handler = NewMetricsHandler(nil, fakePinger{err: errors.New("connection refused")}, "enrollment-service")
	c, rec = newTestContext(http.MethodGet, "/ready", "", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsHandlerPrometheusWithoutRegistry(t *testing.T) {
	handler := NewMetricsHandler(nil, nil, "grade-service")
	c, _ := newTestContext(http.MethodGet, "/metrics", "", nil)

	handler.Prometheus(c)

	assert.Equal(t, http.StatusServiceUnavailable, c.Writer.Status())
}
