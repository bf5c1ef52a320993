package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-ledger/internal/dto"
	"github.com/noah-isme/course-ledger/internal/middleware"
	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/internal/service"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
	"github.com/noah-isme/course-ledger/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, principal *models.Principal, req dto.EnrollRequest) (*models.Enrollment, bool, error)
	Drop(ctx context.Context, principal *models.Principal, ref string) (*models.Enrollment, error)
	ListForPrincipal(ctx context.Context, principal *models.Principal) ([]models.EnrollmentView, error)
	ListByCourse(ctx context.Context, principal *models.Principal, courseID string) (*models.Roster, error)
	CheckEnrollment(ctx context.Context, principal *models.Principal, studentID, courseID string) (*models.EnrollmentCheck, error)
	ReviewStatus(ctx context.Context, principal *models.Principal, id string, req dto.ReviewStatusRequest) (*models.Enrollment, error)
	ExportRoster(ctx context.Context, principal *models.Principal, courseID, format string) (*dto.ExportFile, *models.Roster, error)
}

// EnrollmentHandler exposes the enrollment ledger endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll the caller in a course
// @Description Creates a new enrollment (201) or reactivates a dropped one (200).
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, created, err := h.enrollments.Enroll(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, enrollment)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// Drop godoc
// @Summary Drop an enrollment by record or course id
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.DropRequest true "Drop payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/drop [post]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	ref := req.Ref()
	if ref == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "enrollmentId or courseId is required"))
		return
	}
	h.drop(c, principal, ref)
}

// DropByID godoc
// @Summary Drop an enrollment by path reference
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID or course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/drop [post]
func (h *EnrollmentHandler) DropByID(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	h.drop(c, principal, c.Param("id"))
}

func (h *EnrollmentHandler) drop(c *gin.Context, principal *models.Principal, ref string) {
	enrollment, err := h.enrollments.Drop(c.Request.Context(), principal, ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// List godoc
// @Summary List the caller's enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollments, err := h.enrollments.ListForPrincipal(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments)
}

// ListByCourse godoc
// @Summary Course roster with student profiles
// @Description Rows whose profile lookup failed carry a placeholder profile and are counted in meta.degraded_profiles.
// @Tags Enrollments
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enrollments/course/{courseId} [get]
func (h *EnrollmentHandler) ListByCourse(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	roster, err := h.enrollments.ListByCourse(c.Request.Context(), principal, c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetDegraded(c, roster.Degraded)
	response.JSON(c, http.StatusOK, roster.Entries, middleware.ExtractMeta(c))
}

// ExportRoster godoc
// @Summary Export a course roster
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param courseId path string true "Course ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /enrollments/course/{courseId}/export [get]
func (h *EnrollmentHandler) ExportRoster(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", service.ExportFormatCSV))
	file, roster, err := h.enrollments.ExportRoster(c.Request.Context(), principal, c.Param("courseId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	if roster != nil && roster.Degraded > 0 {
		c.Header("X-Degraded-Profiles", strconv.Itoa(roster.Degraded))
	}
	response.Attachment(c, file.ContentType, file.Filename, file.Body)
}

// Check godoc
// @Summary Check whether a student is enrolled in a course
// @Tags Enrollments
// @Produce json
// @Param studentId path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /enrollments/check/{studentId}/{courseId} [get]
func (h *EnrollmentHandler) Check(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	check, err := h.enrollments.CheckEnrollment(c.Request.Context(), principal, c.Param("studentId"), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check)
}

// ReviewStatus godoc
// @Summary Approve or reject a pending enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.ReviewStatusRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/status [patch]
func (h *EnrollmentHandler) ReviewStatus(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReviewStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.ReviewStatus(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}
