package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/measureme/internal/models"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

type measurementRepository interface {
	List(ctx context.Context, filter models.MeasurementFilter) ([]models.Measurement, error)
	Create(ctx context.Context, m *models.Measurement) error
}

// CreateMeasurementRequest is one reading posted by a measuring station.
type CreateMeasurementRequest struct {
	StudentID string     `json:"student_id" validate:"required"`
	Height    float64    `json:"height" validate:"gt=0"`
	Weight    float64    `json:"weight" validate:"gt=0"`
	Timestamp *time.Time `json:"timestamp"`
}

// MeasurementService records readings and serves measurement history.
type MeasurementService struct {
	repo      measurementRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMeasurementService constructs the measurement service.
func NewMeasurementService(repo measurementRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *MeasurementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeasurementService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// List returns readings oldest first.
func (s *MeasurementService) List(ctx context.Context, filter models.MeasurementFilter) ([]models.Measurement, error) {
	out, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list measurements")
	}
	if out == nil {
		out = []models.Measurement{}
	}
	return out, nil
}

// Create stores a reading and makes it the student's current height and weight.
func (s *MeasurementService) Create(ctx context.Context, req CreateMeasurementRequest) (*models.Measurement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid measurement payload")
	}
	var fields []appErrors.FieldError
	if !models.ValidMeasure(req.Height) {
		fields = append(fields, appErrors.FieldError{Field: "height", Message: "must be a positive number"})
	}
	if !models.ValidMeasure(req.Weight) {
		fields = append(fields, appErrors.FieldError{Field: "weight", Message: "must be a positive number"})
	}
	if len(fields) > 0 {
		return nil, appErrors.NewValidationError(fields...)
	}
	m := &models.Measurement{StudentID: req.StudentID, Height: req.Height, Weight: req.Weight}
	if req.Timestamp != nil {
		m.Timestamp = req.Timestamp.UTC()
	}
	if err := s.repo.Create(ctx, m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record measurement")
	}
	s.cache.InvalidateRoster(ctx)
	s.metrics.RecordMeasurement()
	s.logger.Info("measurement recorded",
		zap.String("student_id", m.StudentID),
		zap.Float64("height", m.Height),
		zap.Float64("weight", m.Weight))
	return m, nil
}
