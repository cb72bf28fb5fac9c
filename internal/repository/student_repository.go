package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/measureme/internal/models"
)

const studentColumns = `id, name, roll_number, standard, division, profile_photo, height, weight, created_at, updated_at`

// StudentRepository manages persistence for student records and their
// training images.
type StudentRepository struct {
	db *sqlx.DB
}

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students in insertion order, optionally filtered by a
// case-insensitive match on name or roll number.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students"
	var args []interface{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query += " WHERE (LOWER(name) LIKE $1 OR LOWER(roll_number) LIKE $1)"
		args = append(args, "%"+strings.ToLower(search)+"%")
	}
	query += " ORDER BY created_at ASC, id ASC"

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// FindByID fetches a student by ID. sql.ErrNoRows is returned unwrapped.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, "SELECT "+studentColumns+" FROM students WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByRollNumber checks if a roll number is taken, optionally excluding an ID.
func (r *StudentRepository) ExistsByRollNumber(ctx context.Context, rollNumber string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE roll_number = $1"
	args := []interface{}{rollNumber}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check roll number: %w", err)
	}
	return true, nil
}

// Create inserts a student and its training images in one transaction.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student, images []models.TrainingImage) (err error) {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create student: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO students (id, name, roll_number, standard, division, profile_photo, height, weight, created_at, updated_at)
        VALUES (:id, :name, :roll_number, :standard, :division, :profile_photo, :height, :weight, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	if student.TrainingImages, err = insertTrainingImages(ctx, tx, student.ID, 0, images); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create student: %w", err)
	}
	return nil
}

// Update writes every scalar column and appends new training images after
// the existing ones.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student, images []models.TrainingImage) (added []models.TrainingImage, err error) {
	student.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update student: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE students SET name = :name, roll_number = :roll_number, standard = :standard, division = :division,
        profile_photo = :profile_photo, height = :height, weight = :weight, updated_at = :updated_at WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, query, student)
	if err != nil {
		return nil, fmt.Errorf("update student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = sql.ErrNoRows
		return nil, err
	}

	var next int
	if len(images) > 0 {
		if err = tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(position), -1) + 1 FROM student_training_images WHERE student_id = $1`, student.ID); err != nil {
			return nil, fmt.Errorf("next image position: %w", err)
		}
	}
	if added, err = insertTrainingImages(ctx, tx, student.ID, next, images); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update student: %w", err)
	}
	return added, nil
}

// Delete removes a student. Training images and measurements cascade.
// sql.ErrNoRows is returned when nothing was deleted.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListTrainingImages loads images for the given students keyed by student ID,
// each slice in position order.
func (r *StudentRepository) ListTrainingImages(ctx context.Context, studentIDs []string) (map[string][]models.TrainingImage, error) {
	result := make(map[string][]models.TrainingImage, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}
	const query = `SELECT id, student_id, image_path, position, created_at FROM student_training_images
        WHERE student_id = ANY($1) ORDER BY student_id, position`
	var images []models.TrainingImage
	if err := r.db.SelectContext(ctx, &images, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list training images: %w", err)
	}
	for _, img := range images {
		result[img.StudentID] = append(result[img.StudentID], img)
	}
	return result, nil
}

func insertTrainingImages(ctx context.Context, tx *sqlx.Tx, studentID string, start int, images []models.TrainingImage) ([]models.TrainingImage, error) {
	if len(images) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	out := make([]models.TrainingImage, 0, len(images))
	for i, img := range images {
		payload := img
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		payload.StudentID = studentID
		payload.Position = start + i
		payload.CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO student_training_images (id, student_id, image_path, position, created_at)
            VALUES (:id, :student_id, :image_path, :position, :created_at)`, &payload); err != nil {
			return nil, fmt.Errorf("insert training image: %w", err)
		}
		out = append(out, payload)
	}
	return out, nil
}
