package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/dto"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/middleware"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/service"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/response"
)

type dashboardService interface {
	AdminOverview(ctx context.Context) (*dto.AdminOverviewResponse, bool, error)
	DeanOverview(ctx context.Context) (*dto.DeanOverviewResponse, bool, error)
	Report(ctx context.Context) (*dto.DeanReportResponse, bool, error)
	Notifications(ctx context.Context) (*dto.NotificationsResponse, error)
}

type reportExporter interface {
	Render(report *dto.DeanReportResponse, format string) (*service.RenderedReport, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service  dashboardService
	exporter reportExporter
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService, exporter reportExporter) *DashboardHandler {
	return &DashboardHandler{service: service, exporter: exporter}
}

// AdminOverview godoc
// @Summary Admin dashboard counters and recent activity
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/overview [get]
func (h *DashboardHandler) AdminOverview(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	summary, cacheHit, err := h.service.AdminOverview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// DeanOverview godoc
// @Summary Senior approver dashboard counters
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dean/overview [get]
func (h *DashboardHandler) DeanOverview(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	summary, cacheHit, err := h.service.DeanOverview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// Report godoc
// @Summary Usage report for the last reporting window
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "json|csv|pdf"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /dean/reports [get]
func (h *DashboardHandler) Report(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	format, err := service.NormalizeFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	report, cacheHit, err := h.service.Report(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if format == service.ReportFormatJSON {
		middleware.SetCacheHit(c, cacheHit)
		response.JSON(c, http.StatusOK, report, nil, middleware.ExtractMeta(c))
		return
	}
	if h.exporter == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "report export is not configured"))
		return
	}
	rendered, err := h.exporter.Render(report, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, rendered.FileName, rendered.ContentType, rendered.Payload)
}

// Notifications godoc
// @Summary Items awaiting senior approver attention
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dean/notifications [get]
func (h *DashboardHandler) Notifications(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	items, err := h.service.Notifications(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
