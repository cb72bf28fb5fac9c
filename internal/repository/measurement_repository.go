package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/measureme/internal/models"
)

// MeasurementRepository stores height/weight readings.
type MeasurementRepository struct {
	db *sqlx.DB
}

// NewMeasurementRepository constructs a MeasurementRepository.
func NewMeasurementRepository(db *sqlx.DB) *MeasurementRepository {
	return &MeasurementRepository{db: db}
}

// List returns readings oldest first, optionally for one student.
func (r *MeasurementRepository) List(ctx context.Context, filter models.MeasurementFilter) ([]models.Measurement, error) {
	query := `SELECT id, student_id, height, weight, measured_at, created_at FROM measurements`
	var args []interface{}
	if filter.StudentID != "" {
		query += " WHERE student_id = $1"
		args = append(args, filter.StudentID)
	}
	query += " ORDER BY measured_at ASC, id ASC"

	var out []models.Measurement
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	return out, nil
}

// Create records a reading and copies it onto the student as the current
// height and weight. sql.ErrNoRows is returned when the student is missing.
func (r *MeasurementRepository) Create(ctx context.Context, m *models.Measurement) (err error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	m.CreatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create measurement: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE students SET height = $2, weight = $3, updated_at = $4 WHERE id = $1`,
		m.StudentID, m.Height, m.Weight, now)
	if err != nil {
		return fmt.Errorf("update current measurements: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = sql.ErrNoRows
		return err
	}
	if _, err = tx.NamedExecContext(ctx, `INSERT INTO measurements (id, student_id, height, weight, measured_at, created_at)
        VALUES (:id, :student_id, :height, :weight, :measured_at, :created_at)`, m); err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create measurement: %w", err)
	}
	return nil
}
