package enrollment

import (
	"fmt"
	"strconv"

	"github.com/noah-isme/measureme/internal/models"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

// DefaultMaxTrainingImages bounds uploaded plus captured training images.
const DefaultMaxTrainingImages = 400

// Mode selects between registering a new student and editing an existing one.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "create"
}

// Field names double as the multipart field names sent to the record service.
type Field string

const (
	FieldName       Field = "name"
	FieldRollNumber Field = "roll_number"
	FieldStandard   Field = "standard"
	FieldDivision   Field = "division"
	FieldHeight     Field = "height"
	FieldWeight     Field = "weight"
)

// ScalarFields lists every scalar field in submission order.
var ScalarFields = []Field{FieldName, FieldRollNumber, FieldStandard, FieldDivision, FieldHeight, FieldWeight}

// CapturedImage is a camera still kept in its in-memory data URL form until assembly.
type CapturedImage struct {
	Filename string
	DataURL  string
}

// Draft is the in-progress state of one registration or edit. It is owned by
// a single Session and is not safe for concurrent use on its own.
type Draft struct {
	values    map[Field]string
	profile   *Attachment
	uploaded  []Attachment
	captured  []CapturedImage
	maxImages int
	seq       int
}

// NewDraft returns an empty draft.
func NewDraft(maxImages int) *Draft {
	if maxImages <= 0 {
		maxImages = DefaultMaxTrainingImages
	}
	return &Draft{values: make(map[Field]string, len(ScalarFields)), maxImages: maxImages}
}

// DraftFromStudent seeds scalar fields from an existing record. Image
// collections start empty so an edit never re-submits stored images.
func DraftFromStudent(student models.Student, maxImages int) *Draft {
	d := NewDraft(maxImages)
	d.values[FieldName] = student.Name
	d.values[FieldRollNumber] = student.RollNumber
	d.values[FieldStandard] = student.Standard
	d.values[FieldDivision] = student.Division
	if student.Height != nil {
		d.values[FieldHeight] = formatNumber(*student.Height)
	}
	if student.Weight != nil {
		d.values[FieldWeight] = formatNumber(*student.Weight)
	}
	return d
}

// UpdateField sets one scalar field. Unknown fields are ignored.
func (d *Draft) UpdateField(field Field, value string) {
	if !isScalar(field) {
		return
	}
	d.values[field] = value
}

// Value returns the raw value entered for a field.
func (d *Draft) Value(field Field) string {
	return d.values[field]
}

// AttachProfileImage replaces any pending profile image.
func (d *Draft) AttachProfileImage(img Attachment) {
	d.profile = &img
}

// ProfileImage returns the pending profile image, if any.
func (d *Draft) ProfileImage() *Attachment {
	return d.profile
}

// AddTrainingImages appends uploaded images in the given order. A batch that
// would exceed the bound is rejected whole.
func (d *Draft) AddTrainingImages(imgs ...Attachment) error {
	if err := d.checkCapacity(len(imgs)); err != nil {
		return err
	}
	d.uploaded = append(d.uploaded, imgs...)
	return nil
}

// AddCapturedImage appends a captured still and returns its synthesized filename.
func (d *Draft) AddCapturedImage(dataURL string) (string, error) {
	if err := d.checkCapacity(1); err != nil {
		return "", err
	}
	d.seq++
	name := capturedFilename(d.seq)
	d.captured = append(d.captured, CapturedImage{Filename: name, DataURL: dataURL})
	return name, nil
}

// UploadedImages returns a copy of the uploaded training images.
func (d *Draft) UploadedImages() []Attachment {
	return append([]Attachment(nil), d.uploaded...)
}

// CapturedImages returns a copy of the captured stills.
func (d *Draft) CapturedImages() []CapturedImage {
	return append([]CapturedImage(nil), d.captured...)
}

// TrainingImageCount is the combined uploaded and captured count.
func (d *Draft) TrainingImageCount() int {
	return len(d.uploaded) + len(d.captured)
}

// MaxTrainingImages returns the configured bound.
func (d *Draft) MaxTrainingImages() int {
	return d.maxImages
}

func (d *Draft) checkCapacity(adding int) error {
	total := d.TrainingImageCount() + adding
	if total > d.maxImages {
		return appErrors.Clone(appErrors.ErrTooManyImages,
			fmt.Sprintf("training images limited to %d, got %d", d.maxImages, total))
	}
	return nil
}

func capturedFilename(seq int) string {
	return fmt.Sprintf("captured_image_%d.jpg", seq)
}

func isScalar(field Field) bool {
	for _, f := range ScalarFields {
		if f == field {
			return true
		}
	}
	return false
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
