package models

import (
	"math"
	"time"
)

// Measurement is a single height/weight reading taken at a station.
type Measurement struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Height    float64   `db:"height" json:"height"`
	Weight    float64   `db:"weight" json:"weight"`
	Timestamp time.Time `db:"measured_at" json:"timestamp"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// ValidMeasure reports whether v is usable as a height or weight: positive
// and finite. NaN and infinities cannot be encoded as JSON.
func ValidMeasure(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// MeasurementFilter narrows measurement history queries.
type MeasurementFilter struct {
	StudentID string
}
