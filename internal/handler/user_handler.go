package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/response"
)

type userService interface {
	List(ctx context.Context, actor *models.JWTClaims, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	Get(ctx context.Context, epf string) (*models.User, error)
	Create(ctx context.Context, actor *models.JWTClaims, req models.CreateUserRequest, meta models.LoginRequest) (*models.User, error)
	Delete(ctx context.Context, actor *models.JWTClaims, req models.DeleteUserRequest, meta models.LoginRequest) error
}

// UserHandler handles account administration endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "Role filter"
// @Param department query string false "Department filter"
// @Param search query string false "Search by name, email or EPF"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/users [get]
func (h *UserHandler) List(c *gin.Context) {
	filter := models.UserFilter{
		Department: strings.TrimSpace(c.Query("department")),
		Search:     strings.TrimSpace(c.Query("search")),
	}
	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "page must be a number"))
			return
		}
		filter.Page = page
	}
	if v := c.Query("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "page_size must be a number"))
			return
		}
		filter.PageSize = size
	}
	if v := c.Query("role"); v != "" {
		role := models.UserRole(strings.ToLower(v))
		if !role.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown role"))
			return
		}
		filter.Role = &role
	}

	users, pagination, err := h.service.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get a user with their special policy
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param epf path string true "EPF number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /auth/users/{epf} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), c.Param("epf"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Create godoc
// @Summary Create a user
// @Tags Users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body models.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/create-user [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req models.CreateUserRequest
	if !bindJSON(c, &req, "invalid create user payload") {
		return
	}
	user, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Delete godoc
// @Summary Delete a user permanently
// @Tags Users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body models.DeleteUserRequest true "Target EPF"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /auth/delete-user [post]
func (h *UserHandler) Delete(c *gin.Context) {
	var req models.DeleteUserRequest
	if !bindJSON(c, &req, "invalid delete user payload") {
		return
	}
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), req, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
