package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-ledger/internal/dto"
	"github.com/noah-isme/course-ledger/internal/models"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
	"github.com/noah-isme/course-ledger/pkg/response"
)

type gradeService interface {
	SubmitGrade(ctx context.Context, principal *models.Principal, req dto.SubmitGradeRequest) (*models.Grade, bool, error)
	GetGrades(ctx context.Context, principal *models.Principal) ([]models.GradeView, error)
	GradesForStudent(ctx context.Context, principal *models.Principal, studentID string) ([]models.GradeView, error)
	UpdateGrade(ctx context.Context, principal *models.Principal, gradeID string, req dto.UpdateGradeRequest) (*models.Grade, error)
	DeleteGrade(ctx context.Context, principal *models.Principal, gradeID string) error
}

// GradeHandler exposes the grading gate endpoints.
type GradeHandler struct {
	grades gradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades gradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Submit godoc
// @Summary Submit a grade for an enrolled student
// @Description Creates the grade (201) or replaces the existing one for the same student and course (200).
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body dto.SubmitGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Submit(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, created, err := h.grades.SubmitGrade(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, grade)
		return
	}
	response.JSON(c, http.StatusOK, grade)
}

// List godoc
// @Summary List grades visible to the caller
// @Tags Grades
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	grades, err := h.grades.GetGrades(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades)
}

// ListForStudent godoc
// @Summary List grades of one student
// @Tags Grades
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /grades/student/{studentId} [get]
func (h *GradeHandler) ListForStudent(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	grades, err := h.grades.GradesForStudent(c.Request.Context(), principal, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades)
}

// Update godoc
// @Summary Update score or comments of a grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Grade ID"
// @Param payload body dto.UpdateGradeRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades/{id} [patch]
func (h *GradeHandler) Update(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.UpdateGrade(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade)
}

// Delete godoc
// @Summary Delete a grade submitted by the caller
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades/{id} [delete]
func (h *GradeHandler) Delete(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.grades.DeleteGrade(c.Request.Context(), principal, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
