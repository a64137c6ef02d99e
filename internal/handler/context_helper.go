package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/middleware"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// bindJSON decodes the body and renders a validation error on failure.
func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func requestMeta(c *gin.Context) models.LoginRequest {
	return models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}
