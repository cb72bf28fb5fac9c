package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/measureme/internal/models"
	"github.com/noah-isme/measureme/internal/service"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

type measurementServiceMock struct {
	listResp   []models.Measurement
	createErr  error
	lastFilter models.MeasurementFilter
	lastReq    service.CreateMeasurementRequest
	created    bool
}

func (m *measurementServiceMock) List(ctx context.Context, filter models.MeasurementFilter) ([]models.Measurement, error) {
	m.lastFilter = filter
	return m.listResp, nil
}

func (m *measurementServiceMock) Create(ctx context.Context, req service.CreateMeasurementRequest) (*models.Measurement, error) {
	m.created = true
	m.lastReq = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.Measurement{ID: "m-1", StudentID: req.StudentID, Height: req.Height, Weight: req.Weight}, nil
}

func TestMeasurementHandlerListFiltersByStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &measurementServiceMock{listResp: []models.Measurement{{ID: "m-1"}}}
	handler := NewMeasurementHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/measurements?student=s-1", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s-1", mockSvc.lastFilter.StudentID)
}

func TestMeasurementHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &measurementServiceMock{}
	handler := NewMeasurementHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/measurements",
		bytes.NewBufferString(`{"student_id":"s-1","height":151.2,"weight":40,"timestamp":"2024-03-01T08:30:00Z"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "s-1", mockSvc.lastReq.StudentID)
	require.NotNil(t, mockSvc.lastReq.Timestamp)
	assert.True(t, mockSvc.lastReq.Timestamp.Equal(time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)))
}

func TestMeasurementHandlerCreateUnknownStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &measurementServiceMock{createErr: appErrors.Clone(appErrors.ErrNotFound, "student not found")}
	handler := NewMeasurementHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/measurements", bytes.NewBufferString(`{"student_id":"nope","height":1,"weight":1}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMeasurementHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &measurementServiceMock{}
	handler := NewMeasurementHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/measurements", bytes.NewBufferString(`{"height":"tall"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.created)
}

type mediaOpenerMock struct {
	path string
	err  error
}

func (m *mediaOpenerMock) Open(token string) (*os.File, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	f, err := os.Open(m.path)
	return f, "image/png", err
}

func TestMediaHandlerServe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("pixels"), 0o600))
	handler := NewMediaHandler(&mediaOpenerMock{path: path})

	r := gin.New()
	r.GET("/media/:token", handler.Serve)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/media/tok", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "pixels", w.Body.String())
}

func TestMediaHandlerServeInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMediaHandler(&mediaOpenerMock{err: appErrors.Clone(appErrors.ErrNotFound, "media not found")})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/media/bad", nil)

	handler.Serve(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := ReadinessCheck{Name: "database", Ping: func(ctx context.Context) error { return nil }}
	down := ReadinessCheck{Name: "cache", Ping: func(ctx context.Context) error { return errors.New("connection refused") }}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, ok).Ready(c)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, ok, down).Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.RecordMeasurement()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(metrics).Prometheus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "measureme_measurements_recorded_total")
}
