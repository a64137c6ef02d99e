package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/dto"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/middleware"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

type fakePrintSrv struct {
	upload     dto.UploadInput
	body       string
	status     string
	limit      int
	offset     int
	executeErr error
	docs       map[string]string
}

func (f *fakePrintSrv) Upload(_ context.Context, actor *models.JWTClaims, in dto.UploadInput) (*dto.PrintJobResponse, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.upload = in
	f.body = string(data)
	return &dto.PrintJobResponse{PrintRequest: models.PrintRequest{
		ID: "job-1", RequesterEPF: actor.UserID, FileName: in.FileName, Status: models.PrintStatusPendingClassification,
	}}, nil
}

func (f *fakePrintSrv) Get(_ context.Context, _ *models.JWTClaims, id string) (*dto.PrintJobResponse, error) {
	if id != "job-1" {
		return nil, appErrors.ErrNotFound
	}
	return &dto.PrintJobResponse{PrintRequest: models.PrintRequest{ID: id}}, nil
}

func (f *fakePrintSrv) ListMine(_ context.Context, _ *models.JWTClaims, status string, limit, offset int) ([]dto.PrintJobResponse, error) {
	f.status, f.limit, f.offset = status, limit, offset
	return []dto.PrintJobResponse{}, nil
}

func (f *fakePrintSrv) Cancel(_ context.Context, _ *models.JWTClaims, id string) (*dto.PrintJobResponse, error) {
	return &dto.PrintJobResponse{PrintRequest: models.PrintRequest{ID: id, Status: models.PrintStatusCancelled}}, nil
}

func (f *fakePrintSrv) Execute(context.Context, *models.JWTClaims, string) (*dto.PrintJobResponse, error) {
	return nil, f.executeErr
}

func (f *fakePrintSrv) Share(context.Context, *models.JWTClaims, string) (*dto.ShareResponse, error) {
	return &dto.ShareResponse{URL: "https://print.ou.ac.lk/api/v1/print/documents/tok"}, nil
}

func (f *fakePrintSrv) Download(_ context.Context, token string) (io.ReadCloser, *models.PrintRequest, error) {
	doc, ok := f.docs[token]
	if !ok {
		return nil, nil, appErrors.ErrUnauthorized
	}
	return io.NopCloser(strings.NewReader(doc)), &models.PrintRequest{FileName: "notes.pdf", ContentType: "application/pdf", SizeBytes: int64(len(doc))}, nil
}

func printRouter(srv *fakePrintSrv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewPrintHandler(srv)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "1002", Role: models.RoleUser})
	})
	router.POST("/print/jobs", handler.Upload)
	router.GET("/print/jobs", handler.List)
	router.GET("/print/jobs/:id", handler.Get)
	router.POST("/print/jobs/:id/cancel", handler.Cancel)
	router.POST("/print/jobs/:id/execute", handler.Execute)
	router.POST("/print/jobs/:id/share", handler.Share)
	router.GET("/print/documents/:token", handler.Download)
	return router
}

func multipartUpload(t *testing.T, fields map[string]string, withFile bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if withFile {
		part, err := writer.CreateFormFile("file", "notes.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte("lecture notes"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/print/jobs", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestPrintHandlerUpload(t *testing.T) {
	srv := &fakePrintSrv{}
	router := printRouter(srv)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, map[string]string{"copies": "3", "color": "true"}, true))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "notes.txt", srv.upload.FileName)
	assert.Equal(t, 3, srv.upload.Copies)
	assert.True(t, srv.upload.Color)
	assert.Equal(t, "lecture notes", srv.body)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "pending_classification", envelope.Data["status"])
}

func TestPrintHandlerUploadValidation(t *testing.T) {
	router := printRouter(&fakePrintSrv{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, nil, false))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, map[string]string{"copies": "many"}, true))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, map[string]string{"color": "sometimes"}, true))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrintHandlerListParsesPaging(t *testing.T) {
	srv := &fakePrintSrv{}
	router := printRouter(srv)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/print/jobs?status=blocked&limit=5&offset=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "blocked", srv.status)
	assert.Equal(t, 5, srv.limit)
	assert.Equal(t, 10, srv.offset)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/print/jobs?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrintHandlerJobActions(t *testing.T) {
	srv := &fakePrintSrv{executeErr: appErrors.Clone(appErrors.ErrPreconditionFailed, "print request is not approved")}
	router := printRouter(srv)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/print/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/print/jobs/job-1/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeEnvelope(t, rec).Data["status"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/print/jobs/job-1/execute", nil))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/print/jobs/job-1/share", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Data["url"], "/print/documents/tok")
}

func TestPrintHandlerDownload(t *testing.T) {
	router := printRouter(&fakePrintSrv{docs: map[string]string{"tok": "%PDF-1.4"}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/print/documents/tok", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "notes.pdf")
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/print/documents/forged", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
