package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/measureme/internal/models"
	"github.com/noah-isme/measureme/internal/service"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
	"github.com/noah-isme/measureme/pkg/response"
)

type measurementService interface {
	List(ctx context.Context, filter models.MeasurementFilter) ([]models.Measurement, error)
	Create(ctx context.Context, req service.CreateMeasurementRequest) (*models.Measurement, error)
}

// MeasurementHandler exposes measurement history endpoints.
type MeasurementHandler struct {
	measurements measurementService
}

// NewMeasurementHandler constructs MeasurementHandler.
func NewMeasurementHandler(measurements measurementService) *MeasurementHandler {
	return &MeasurementHandler{measurements: measurements}
}

// List godoc
// @Summary List measurements
// @Tags Measurements
// @Produce json
// @Param student query string false "Student ID"
// @Success 200 {object} response.Envelope
// @Router /measurements [get]
func (h *MeasurementHandler) List(c *gin.Context) {
	filter := models.MeasurementFilter{StudentID: strings.TrimSpace(c.Query("student"))}
	items, err := h.measurements.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items)
}

// Create godoc
// @Summary Record measurement
// @Tags Measurements
// @Accept json
// @Produce json
// @Param payload body service.CreateMeasurementRequest true "Measurement payload"
// @Success 201 {object} response.Envelope
// @Router /measurements [post]
func (h *MeasurementHandler) Create(c *gin.Context) {
	var req service.CreateMeasurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	m, err := h.measurements.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, m)
}
