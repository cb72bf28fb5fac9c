package handler

import (
	"context"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/measureme/internal/middleware"
	"github.com/noah-isme/measureme/internal/models"
	"github.com/noah-isme/measureme/internal/service"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
	"github.com/noah-isme/measureme/pkg/response"
)

const (
	formProfilePhoto   = "profile_photo"
	formTrainingImages = "training_images"
	multipartOverhead  = 1 << 20
)

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, bool, error)
	Get(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, req service.StudentRequest) (*models.Student, error)
	Update(ctx context.Context, id string, req service.StudentRequest) (*models.Student, error)
	Delete(ctx context.Context, id string) error
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students          studentService
	maxFileBytes      int64
	maxTrainingImages int
}

// NewStudentHandler constructs StudentHandler. maxFileBytes bounds each
// uploaded file and maxTrainingImages bounds the files of one request.
func NewStudentHandler(students studentService, maxFileBytes int64, maxTrainingImages int) *StudentHandler {
	if maxFileBytes <= 0 {
		maxFileBytes = 10 << 20
	}
	if maxTrainingImages <= 0 {
		maxTrainingImages = 400
	}
	return &StudentHandler{students: students, maxFileBytes: maxFileBytes, maxTrainingImages: maxTrainingImages}
}

// studentJSON is the JSON form of a create or update without files.
type studentJSON struct {
	Name       *string  `json:"name"`
	RollNumber *string  `json:"roll_number"`
	Standard   *string  `json:"standard"`
	Division   *string  `json:"division"`
	Height     *float64 `json:"height"`
	Weight     *float64 `json:"weight"`
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or roll number"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{Search: strings.TrimSpace(c.Query("search"))}
	students, cached, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, students, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// Create godoc
// @Summary Register student
// @Description Accepts multipart/form-data with scalar fields, a profile_photo file and repeated training_images files, or a JSON body without files.
// @Tags Students
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Param name formData string true "Full name"
// @Param roll_number formData string true "Roll number"
// @Param standard formData string false "Standard"
// @Param division formData string false "Division"
// @Param height formData number false "Height in centimetres"
// @Param weight formData number false "Weight in kilograms"
// @Param profile_photo formData file false "Profile photo"
// @Param training_images formData file false "Training images (repeatable)"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	req, err := h.bindStudentRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Description Only sent fields change. A profile_photo replaces the stored one and training_images are appended.
// @Tags Students
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	req, err := h.bindStudentRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// Delete godoc
// @Summary Delete student
// @Tags Students
// @Param id path string true "Student ID"
// @Success 204 {string} string ""
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *StudentHandler) bindStudentRequest(c *gin.Context) (service.StudentRequest, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return h.bindMultipart(c)
	}
	var body studentJSON
	if err := c.ShouldBindJSON(&body); err != nil {
		return service.StudentRequest{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
	}
	return service.StudentRequest{Fields: models.StudentFields{
		Name:       body.Name,
		RollNumber: body.RollNumber,
		Standard:   body.Standard,
		Division:   body.Division,
		Height:     body.Height,
		Weight:     body.Weight,
	}}, nil
}

func (h *StudentHandler) bindMultipart(c *gin.Context) (service.StudentRequest, error) {
	limit := h.maxFileBytes*int64(h.maxTrainingImages+1) + multipartOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	form, err := c.MultipartForm()
	if err != nil {
		return service.StudentRequest{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart payload")
	}

	var req service.StudentRequest
	var invalid []appErrors.FieldError
	text := func(key string) *string {
		values, ok := form.Value[key]
		if !ok || len(values) == 0 {
			return nil
		}
		v := values[0]
		return &v
	}
	number := func(key string) *float64 {
		raw := text(key)
		if raw == nil || strings.TrimSpace(*raw) == "" {
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			invalid = append(invalid, appErrors.FieldError{Field: key, Message: "must be a number"})
			return nil
		}
		return &v
	}

	req.Fields = models.StudentFields{
		Name:       text("name"),
		RollNumber: text("roll_number"),
		Standard:   text("standard"),
		Division:   text("division"),
		Height:     number("height"),
		Weight:     number("weight"),
	}

	if files := form.File[formProfilePhoto]; len(files) > 0 {
		upload, fe := h.readPart(formProfilePhoto, files[0])
		if fe != nil {
			invalid = append(invalid, *fe)
		} else {
			req.ProfilePhoto = &upload
		}
	}
	training := form.File[formTrainingImages]
	if len(training) > h.maxTrainingImages {
		return service.StudentRequest{}, appErrors.Clone(appErrors.ErrTooManyImages,
			fmt.Sprintf("training images limited to %d per request, got %d", h.maxTrainingImages, len(training)))
	}
	for i, fh := range training {
		upload, fe := h.readPart(fmt.Sprintf("%s[%d]", formTrainingImages, i), fh)
		if fe != nil {
			invalid = append(invalid, *fe)
			continue
		}
		req.TrainingImages = append(req.TrainingImages, upload)
	}

	if len(invalid) > 0 {
		return service.StudentRequest{}, appErrors.NewValidationError(invalid...)
	}
	return req, nil
}

func (h *StudentHandler) readPart(field string, fh *multipart.FileHeader) (service.FileUpload, *appErrors.FieldError) {
	if fh.Size > h.maxFileBytes {
		return service.FileUpload{}, &appErrors.FieldError{Field: field, Message: fmt.Sprintf("file exceeds %d bytes", h.maxFileBytes)}
	}
	f, err := fh.Open()
	if err != nil {
		return service.FileUpload{}, &appErrors.FieldError{Field: field, Message: "file could not be read"}
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxFileBytes+1))
	if err != nil {
		return service.FileUpload{}, &appErrors.FieldError{Field: field, Message: "file could not be read"}
	}
	if int64(len(data)) > h.maxFileBytes {
		return service.FileUpload{}, &appErrors.FieldError{Field: field, Message: fmt.Sprintf("file exceeds %d bytes", h.maxFileBytes)}
	}
	return service.FileUpload{Filename: fh.Filename, Data: data}, nil
}
