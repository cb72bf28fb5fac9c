package models

import "time"

// Student is a learner tracked for height and weight measurements.
// ProfilePhoto holds a storage path in the database and a media URL in API responses.
type Student struct {
	ID             string          `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	RollNumber     string          `db:"roll_number" json:"roll_number"`
	Standard       string          `db:"standard" json:"standard"`
	Division       string          `db:"division" json:"division"`
	ProfilePhoto   *string         `db:"profile_photo" json:"profile_photo"`
	Height         *float64        `db:"height" json:"height"`
	Weight         *float64        `db:"weight" json:"weight"`
	TrainingImages []TrainingImage `db:"-" json:"training_images"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// HasMeasurements reports whether both height and weight are present and positive.
func (s Student) HasMeasurements() bool {
	return s.Height != nil && s.Weight != nil && *s.Height > 0 && *s.Weight > 0
}

// TrainingImage is one face-recognition enrollment image attached to a student.
type TrainingImage struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"-"`
	Image     string    `db:"image_path" json:"image"`
	Position  int       `db:"position" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search string
}

// StudentFields carries the scalar fields of a create or update request.
// Nil pointers mean "not sent"; updates leave those columns untouched.
type StudentFields struct {
	Name       *string
	RollNumber *string
	Standard   *string
	Division   *string
	Height     *float64
	Weight     *float64
}
