package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/measureme/internal/models"
	"github.com/noah-isme/measureme/internal/repository"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByRollNumber(ctx context.Context, rollNumber string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student, images []models.TrainingImage) error
	Update(ctx context.Context, student *models.Student, images []models.TrainingImage) ([]models.TrainingImage, error)
	Delete(ctx context.Context, id string) error
	ListTrainingImages(ctx context.Context, studentIDs []string) (map[string][]models.TrainingImage, error)
}

type mediaStore interface {
	Check(field string, upload FileUpload) (string, *appErrors.FieldError)
	Store(dir, stem string, upload FileUpload) (StoredFile, error)
	URL(relPath string) string
	Remove(relPath string)
	RemoveDir(dir string)
}

// StudentRequest is a create or update submission. For updates, nil fields
// keep their stored value; a profile photo replaces the stored one and
// training images are appended.
type StudentRequest struct {
	Fields         models.StudentFields
	ProfilePhoto   *FileUpload
	TrainingImages []FileUpload
}

type studentRules struct {
	Name       string `json:"name" validate:"required,max=255"`
	RollNumber string `json:"roll_number" validate:"required,max=50"`
	Standard   string `json:"standard" validate:"max=50"`
	Division   string `json:"division" validate:"max=50"`
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	media     mediaStore
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	maxImages int
}

// StudentServiceOptions carries the optional collaborators of StudentService.
type StudentServiceOptions struct {
	Cache             *CacheService
	Metrics           *MetricsService
	MaxTrainingImages int
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, media mediaStore, validate *validator.Validate, logger *zap.Logger, opts StudentServiceOptions) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxImages := opts.MaxTrainingImages
	if maxImages <= 0 {
		maxImages = 400
	}
	return &StudentService{
		repo:      repo,
		media:     media,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		validator: validate,
		logger:    logger,
		maxImages: maxImages,
	}
}

// List returns the roster in insertion order with signed media URLs.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, bool, error) {
	if cached, ok := s.cache.GetRoster(ctx, filter.Search); ok {
		return cached, true, nil
	}
	students, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	images, err := s.repo.ListTrainingImages(ctx, ids)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training images")
	}
	out := make([]models.Student, 0, len(students))
	for _, st := range students {
		st.TrainingImages = images[st.ID]
		out = append(out, s.present(st))
	}
	s.cache.SetRoster(ctx, filter.Search, out)
	return out, false, nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	images, err := s.repo.ListTrainingImages(ctx, []string{id})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training images")
	}
	student.TrainingImages = images[id]
	presented := s.present(*student)
	return &presented, nil
}

// Create registers a new student with its images.
func (s *StudentService) Create(ctx context.Context, req StudentRequest) (*models.Student, error) {
	student := &models.Student{}
	applyFields(student, req.Fields)
	if err := s.check(student, req); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueRoll(ctx, student.RollNumber, ""); err != nil {
		return nil, err
	}

	student.ID = uuid.NewString()
	dir := studentDir(student.ID)
	images, err := s.storeImages(dir, student, req)
	if err != nil {
		s.media.RemoveDir(dir)
		return nil, err
	}
	if err := s.repo.Create(ctx, student, images); err != nil {
		s.media.RemoveDir(dir)
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student with this roll number already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.cache.InvalidateRoster(ctx)
	s.metrics.RecordStudentMutation("create")
	s.logger.Info("student created",
		zap.String("student_id", student.ID),
		zap.Int("training_images", len(images)))
	presented := s.present(*student)
	return &presented, nil
}

// Update applies the sent fields and files to an existing student.
func (s *StudentService) Update(ctx context.Context, id string, req StudentRequest) (*models.Student, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	previousPhoto := student.ProfilePhoto
	applyFields(student, req.Fields)
	if err := s.check(student, req); err != nil {
		return nil, err
	}
	if req.Fields.RollNumber != nil {
		if err := s.ensureUniqueRoll(ctx, student.RollNumber, id); err != nil {
			return nil, err
		}
	}

	dir := studentDir(id)
	images, err := s.storeImages(dir, student, req)
	if err != nil {
		s.discard(student, previousPhoto, images)
		return nil, err
	}
	if _, err := s.repo.Update(ctx, student, images); err != nil {
		s.discard(student, previousPhoto, images)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student with this roll number already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	if req.ProfilePhoto != nil && previousPhoto != nil {
		s.media.Remove(*previousPhoto)
	}

	s.cache.InvalidateRoster(ctx)
	s.metrics.RecordStudentMutation("update")
	s.logger.Info("student updated",
		zap.String("student_id", id),
		zap.Bool("profile_replaced", req.ProfilePhoto != nil),
		zap.Int("training_images_added", len(images)))

	all, err := s.repo.ListTrainingImages(ctx, []string{id})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training images")
	}
	student.TrainingImages = all[id]
	presented := s.present(*student)
	return &presented, nil
}

// Delete removes a student, its history and its stored images.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.media.RemoveDir(studentDir(id))
	s.cache.InvalidateRoster(ctx)
	s.metrics.RecordStudentMutation("delete")
	s.logger.Info("student deleted", zap.String("student_id", id))
	return nil
}

func (s *StudentService) load(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) ensureUniqueRoll(ctx context.Context, roll, excludeID string) error {
	exists, err := s.repo.ExistsByRollNumber(ctx, roll, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate roll number")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "student with this roll number already exists")
	}
	return nil
}

// check validates the merged record and every file in the request.
func (s *StudentService) check(student *models.Student, req StudentRequest) error {
	var fields []appErrors.FieldError
	err := s.validator.Struct(studentRules{
		Name:       student.Name,
		RollNumber: student.RollNumber,
		Standard:   student.Standard,
		Division:   student.Division,
	})
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields = append(fields, appErrors.FieldError{Field: jsonName(fe.StructField()), Message: ruleMessage(fe)})
		}
	} else if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if student.Height != nil && !models.ValidMeasure(*student.Height) {
		fields = append(fields, appErrors.FieldError{Field: "height", Message: "must be a positive number"})
	}
	if student.Weight != nil && !models.ValidMeasure(*student.Weight) {
		fields = append(fields, appErrors.FieldError{Field: "weight", Message: "must be a positive number"})
	}
	if req.ProfilePhoto != nil {
		if _, fe := s.media.Check("profile_photo", *req.ProfilePhoto); fe != nil {
			fields = append(fields, *fe)
		}
	}
	for i, img := range req.TrainingImages {
		if _, fe := s.media.Check(fmt.Sprintf("training_images[%d]", i), img); fe != nil {
			fields = append(fields, *fe)
		}
	}
	if len(fields) > 0 {
		return appErrors.NewValidationError(fields...)
	}
	if len(req.TrainingImages) > s.maxImages {
		return appErrors.Clone(appErrors.ErrTooManyImages,
			fmt.Sprintf("training images limited to %d per request, got %d", s.maxImages, len(req.TrainingImages)))
	}
	return nil
}

// storeImages writes the request's files and points the student at the new
// profile photo. It returns the training image rows to insert.
func (s *StudentService) storeImages(dir string, student *models.Student, req StudentRequest) ([]models.TrainingImage, error) {
	var images []models.TrainingImage
	if req.ProfilePhoto != nil {
		stored, err := s.media.Store(dir, "profile-"+uuid.NewString()[:8], *req.ProfilePhoto)
		if err != nil {
			return images, err
		}
		student.ProfilePhoto = &stored.Path
		s.metrics.RecordImageStored("profile", stored.Size)
	}
	for _, upload := range req.TrainingImages {
		stored, err := s.media.Store(path.Join(dir, "training"), "", upload)
		if err != nil {
			return images, err
		}
		images = append(images, models.TrainingImage{Image: stored.Path})
		s.metrics.RecordImageStored("training", stored.Size)
	}
	return images, nil
}

// discard removes files written for an update that did not commit.
func (s *StudentService) discard(student *models.Student, previousPhoto *string, images []models.TrainingImage) {
	if student.ProfilePhoto != nil && (previousPhoto == nil || *student.ProfilePhoto != *previousPhoto) {
		s.media.Remove(*student.ProfilePhoto)
	}
	for _, img := range images {
		s.media.Remove(img.Image)
	}
}

func (s *StudentService) present(student models.Student) models.Student {
	if student.ProfilePhoto != nil {
		url := s.media.URL(*student.ProfilePhoto)
		student.ProfilePhoto = &url
	}
	images := make([]models.TrainingImage, 0, len(student.TrainingImages))
	for _, img := range student.TrainingImages {
		img.Image = s.media.URL(img.Image)
		images = append(images, img)
	}
	student.TrainingImages = images
	return student
}

func applyFields(student *models.Student, f models.StudentFields) {
	if f.Name != nil {
		student.Name = strings.TrimSpace(*f.Name)
	}
	if f.RollNumber != nil {
		student.RollNumber = strings.TrimSpace(*f.RollNumber)
	}
	if f.Standard != nil {
		student.Standard = strings.TrimSpace(*f.Standard)
	}
	if f.Division != nil {
		student.Division = strings.TrimSpace(*f.Division)
	}
	if f.Height != nil {
		h := *f.Height
		student.Height = &h
	}
	if f.Weight != nil {
		w := *f.Weight
		student.Weight = &w
	}
}

func studentDir(id string) string {
	return path.Join("students", id)
}

func jsonName(structField string) string {
	switch structField {
	case "RollNumber":
		return "roll_number"
	default:
		return strings.ToLower(structField)
	}
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
