package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/dto"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/middleware"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/service"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

type fakeDashboardSrv struct {
	adminResp  *dto.AdminOverviewResponse
	adminHit   bool
	deanErr    error
	report     *dto.DeanReportResponse
	reportHits int
	notes      *dto.NotificationsResponse
}

func (f *fakeDashboardSrv) AdminOverview(context.Context) (*dto.AdminOverviewResponse, bool, error) {
	return f.adminResp, f.adminHit, nil
}

func (f *fakeDashboardSrv) DeanOverview(context.Context) (*dto.DeanOverviewResponse, bool, error) {
	if f.deanErr != nil {
		return nil, false, f.deanErr
	}
	return &dto.DeanOverviewResponse{}, false, nil
}

func (f *fakeDashboardSrv) Report(context.Context) (*dto.DeanReportResponse, bool, error) {
	f.reportHits++
	return f.report, false, nil
}

func (f *fakeDashboardSrv) Notifications(context.Context) (*dto.NotificationsResponse, error) {
	return f.notes, nil
}

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Meta  map[string]interface{} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func sampleReport() *dto.DeanReportResponse {
	generated := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	return &dto.DeanReportResponse{
		TopUsers:      []dto.UserPrintCount{{EPF: "1002", Name: "Nimal", Department: "ICT", Prints: 9, Pages: 40}},
		BlockedPerDay: []dto.DayCount{{Day: "2026-10-16", Count: 1}},
		PeriodStart:   generated.AddDate(0, 0, -30),
		PeriodEnd:     generated,
		GeneratedAt:   generated,
	}
}

func TestDashboardHandlerAdminOverviewReportsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{
		adminResp: &dto.AdminOverviewResponse{OverviewCounters: dto.OverviewCounters{TodayPrintJobs: 7}},
		adminHit:  true,
	}, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/admin/overview", nil)

	handler.AdminOverview(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope.Meta["cacheHit"])
	assert.EqualValues(t, 7, envelope.Data["todayPrintJobs"])
}

func TestDashboardHandlerDeanOverviewError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{deanErr: appErrors.ErrInternal}, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dean/overview", nil)

	handler.DeanOverview(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDashboardHandlerReportFormats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeDashboardSrv{report: sampleReport()}
	handler := NewDashboardHandler(srv, service.NewExportService(nil, nil, nil))

	router := gin.New()
	router.Use(middleware.WithResponseMeta())
	router.GET("/dean/reports", handler.Report)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dean/reports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Len(t, envelope.Data["topUsers"], 1)
	assert.Contains(t, envelope.Meta, "processingTimeMs")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dean/reports?format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "print-usage-20261016.csv")
	assert.Contains(t, rec.Body.String(), "1002,Nimal,ICT,9,40")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dean/reports?format=pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dean/reports?format=docx", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 3, srv.reportHits, "unsupported formats are rejected before the report is built")
}

func TestDashboardHandlerNotifications(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{notes: &dto.NotificationsResponse{
		Items: []dto.Notification{{ID: "approval:r1", Priority: dto.PriorityHigh}},
	}}, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dean/notifications", nil)

	handler.Notifications(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"approval:r1"`)
}
