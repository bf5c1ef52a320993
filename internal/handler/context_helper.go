package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-ledger/internal/middleware"
	"github.com/noah-isme/course-ledger/internal/models"
)

func principalFromContext(c *gin.Context) *models.Principal {
	return middleware.PrincipalFromContext(c)
}
