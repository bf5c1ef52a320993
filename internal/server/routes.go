package server

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-ledger/internal/handler"
	"github.com/noah-isme/course-ledger/internal/middleware"
	"github.com/noah-isme/course-ledger/internal/models"
)

// RegisterEnrollmentRoutes mounts the ledger endpoints. The review route is
// only mounted for the approval workflow.
func RegisterEnrollmentRoutes(api *gin.RouterGroup, h *handler.EnrollmentHandler, workflow models.Workflow) {
	students := middleware.RequireRoles(models.RoleStudent)
	staff := middleware.RequireRoles(models.RoleFaculty, models.RoleAdmin)

	enrollments := api.Group("/enrollments")
	enrollments.POST("", students, h.Enroll)
	enrollments.POST("/drop", students, h.Drop)
	enrollments.POST("/:id/drop", students, h.DropByID)
	enrollments.GET("", h.List)
	enrollments.GET("/course/:courseId", staff, h.ListByCourse)
	enrollments.GET("/course/:courseId/export", staff, h.ExportRoster)
	enrollments.GET("/check/:studentId/:courseId", h.Check)
	if workflow == models.WorkflowApproval {
		enrollments.PATCH("/:id/status", staff, h.ReviewStatus)
	}
}

// RegisterGradeRoutes mounts the grading gate endpoints.
func RegisterGradeRoutes(api *gin.RouterGroup, h *handler.GradeHandler) {
	faculty := middleware.RequireRoles(models.RoleFaculty)

	grades := api.Group("/grades")
	grades.POST("", faculty, h.Submit)
	grades.GET("", h.List)
	grades.GET("/student/:studentId", h.ListForStudent)
	grades.PATCH("/:id", faculty, h.Update)
	grades.DELETE("/:id", faculty, h.Delete)
}
