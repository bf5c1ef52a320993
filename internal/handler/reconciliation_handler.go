package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-ledger/internal/models"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
	"github.com/noah-isme/course-ledger/pkg/response"
)

const (
	defaultReconciliationLimit = 50
	maxReconciliationLimit     = 500
)

type reconciliationService interface {
	List(ctx context.Context, principal *models.Principal, limit int64) ([]models.ReconciliationEntry, error)
}

// ReconciliationHandler lists write-after-authorization failures for manual repair.
type ReconciliationHandler struct {
	journal reconciliationService
}

// NewReconciliationHandler constructs ReconciliationHandler.
func NewReconciliationHandler(journal reconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{journal: journal}
}

// List godoc
// @Summary List reconciliation journal entries
// @Tags Admin
// @Produce json
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /admin/reconciliation [get]
func (h *ReconciliationHandler) List(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	limit := int64(defaultReconciliationLimit)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > maxReconciliationLimit {
		limit = maxReconciliationLimit
	}
	entries, err := h.journal.List(c.Request.Context(), principal, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"limit": limit})
}
