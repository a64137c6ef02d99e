package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/dto"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/response"
)

type printService interface {
	Upload(ctx context.Context, actor *models.JWTClaims, in dto.UploadInput) (*dto.PrintJobResponse, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.PrintJobResponse, error)
	ListMine(ctx context.Context, actor *models.JWTClaims, status string, limit, offset int) ([]dto.PrintJobResponse, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*dto.PrintJobResponse, error)
	Execute(ctx context.Context, actor *models.JWTClaims, id string) (*dto.PrintJobResponse, error)
	Share(ctx context.Context, actor *models.JWTClaims, id string) (*dto.ShareResponse, error)
	Download(ctx context.Context, token string) (io.ReadCloser, *models.PrintRequest, error)
}

// PrintHandler serves the upload, classify, evaluate and execute workflow.
type PrintHandler struct {
	service printService
}

// NewPrintHandler constructs the handler.
func NewPrintHandler(service printService) *PrintHandler {
	return &PrintHandler{service: service}
}

// Upload godoc
// @Summary Upload a document for printing
// @Description Classification runs in the background; poll the job until it leaves pending_classification.
// @Tags Print
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document"
// @Param copies formData int false "Copies, default 1"
// @Param color formData bool false "Colour printing"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /print/jobs [post]
func (h *PrintHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	copies := 1
	if raw := strings.TrimSpace(c.PostForm("copies")); raw != "" {
		copies, err = strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrInvalidInput, "copies must be a number"))
			return
		}
	}
	color := false
	if raw := strings.TrimSpace(c.PostForm("color")); raw != "" {
		color, err = strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrInvalidInput, "color must be true or false"))
			return
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "failed to read uploaded file"))
		return
	}
	defer file.Close()

	job, err := h.service.Upload(c.Request.Context(), claimsFromContext(c), dto.UploadInput{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
		Copies:      copies,
		Color:       color,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// List godoc
// @Summary List the caller's print jobs
// @Tags Print
// @Security BearerAuth
// @Produce json
// @Param status query string false "Status filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /print/jobs [get]
func (h *PrintHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.Error(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.ListMine(c.Request.Context(), claimsFromContext(c), strings.TrimSpace(c.Query("status")), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get one print job
// @Tags Print
// @Security BearerAuth
// @Produce json
// @Param id path string true "Print request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /print/jobs/{id} [get]
func (h *PrintHandler) Get(c *gin.Context) {
	h.respond(c, func(ctx context.Context, actor *models.JWTClaims, id string) (interface{}, error) {
		return h.service.Get(ctx, actor, id)
	})
}

// Cancel godoc
// @Summary Cancel a print job, aborting classification if it is still running
// @Tags Print
// @Security BearerAuth
// @Produce json
// @Param id path string true "Print request ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /print/jobs/{id}/cancel [post]
func (h *PrintHandler) Cancel(c *gin.Context) {
	h.respond(c, func(ctx context.Context, actor *models.JWTClaims, id string) (interface{}, error) {
		return h.service.Cancel(ctx, actor, id)
	})
}

// Execute godoc
// @Summary Send an approved print job to the printer
// @Tags Print
// @Security BearerAuth
// @Produce json
// @Param id path string true "Print request ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /print/jobs/{id}/execute [post]
func (h *PrintHandler) Execute(c *gin.Context) {
	h.respond(c, func(ctx context.Context, actor *models.JWTClaims, id string) (interface{}, error) {
		return h.service.Execute(ctx, actor, id)
	})
}

// Share godoc
// @Summary Get a signed download link instead of printing
// @Tags Print
// @Security BearerAuth
// @Produce json
// @Param id path string true "Print request ID"
// @Success 200 {object} response.Envelope
// @Router /print/jobs/{id}/share [post]
func (h *PrintHandler) Share(c *gin.Context) {
	h.respond(c, func(ctx context.Context, actor *models.JWTClaims, id string) (interface{}, error) {
		return h.service.Share(ctx, actor, id)
	})
}

// Download godoc
// @Summary Download a shared document
// @Tags Print
// @Produce application/octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /print/documents/{token} [get]
func (h *PrintHandler) Download(c *gin.Context) {
	rc, req, err := h.service.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer rc.Close()
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", "attachment; filename=\""+req.FileName+"\"")
	c.DataFromReader(http.StatusOK, req.SizeBytes, req.ContentType, rc, nil)
}

func (h *PrintHandler) respond(c *gin.Context, fn func(ctx context.Context, actor *models.JWTClaims, id string) (interface{}, error)) {
	out, err := fn(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, out, nil)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be a non-negative number")
	}
	return v, nil
}
