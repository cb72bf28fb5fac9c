package enrollment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

// Step is a wizard position, 1 through 3.
type Step int

const (
	StepIdentity Step = iota + 1
	StepProfilePhoto
	StepTrainingImages
)

func (s Step) String() string {
	switch s {
	case StepIdentity:
		return "identity"
	case StepProfilePhoto:
		return "profile_photo"
	case StepTrainingImages:
		return "training_images"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

type identityStep struct {
	Name       string `json:"name" validate:"required"`
	RollNumber string `json:"roll_number" validate:"required"`
	Standard   string `json:"standard"`
	Division   string `json:"division"`
}

type profileStep struct {
	ProfilePhoto *Attachment `json:"profile_photo" validate:"required"`
}

// Wizard sequences a Draft through the three enrollment steps.
type Wizard struct {
	draft    *Draft
	mode     Mode
	step     Step
	validate *validator.Validate
}

// NewWizard starts a wizard on the identity step.
func NewWizard(draft *Draft, mode Mode, validate *validator.Validate) *Wizard {
	if validate == nil {
		validate = NewValidator()
	}
	return &Wizard{draft: draft, mode: mode, step: StepIdentity, validate: validate}
}

// NewValidator returns a validator reporting json field names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Step returns the current step.
func (w *Wizard) Step() Step { return w.step }

// Mode returns the session mode.
func (w *Wizard) Mode() Mode { return w.mode }

// Next advances when the current step validates. On failure the step and
// draft are left untouched.
func (w *Wizard) Next() error {
	if w.step >= StepTrainingImages {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "already on the last step")
	}
	if err := w.ValidateStep(w.step); err != nil {
		return err
	}
	w.step++
	return nil
}

// Previous moves back one step. Entered data is kept.
func (w *Wizard) Previous() error {
	if w.step <= StepIdentity {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "already on the first step")
	}
	w.step--
	return nil
}

// ValidateStep runs the step-local rules.
func (w *Wizard) ValidateStep(step Step) error {
	switch step {
	case StepIdentity:
		return w.check(identityStep{
			Name:       strings.TrimSpace(w.draft.Value(FieldName)),
			RollNumber: strings.TrimSpace(w.draft.Value(FieldRollNumber)),
			Standard:   w.draft.Value(FieldStandard),
			Division:   w.draft.Value(FieldDivision),
		})
	case StepProfilePhoto:
		if w.mode == ModeEdit {
			return nil
		}
		return w.check(profileStep{ProfilePhoto: w.draft.ProfileImage()})
	case StepTrainingImages:
		return nil
	default:
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("unknown step %d", step))
	}
}

// Finalize is only reachable from the last step. Every step is re-validated
// before the draft is assembled.
func (w *Wizard) Finalize() (*Payload, error) {
	if w.step != StepTrainingImages {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "submit is only allowed from the training images step")
	}
	for s := StepIdentity; s <= StepTrainingImages; s++ {
		if err := w.ValidateStep(s); err != nil {
			return nil, err
		}
	}
	payload, err := Assemble(w.draft, w.mode)
	if err != nil {
		return nil, err
	}
	if err := checkPayload(payload, w.draft.MaxTrainingImages()); err != nil {
		return nil, err
	}
	return payload, nil
}

func (w *Wizard) check(step interface{}) error {
	err := w.validate.Struct(step)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid step input")
	}
	fields := make([]appErrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, appErrors.FieldError{Field: fe.Field(), Message: messageFor(fe)})
	}
	return appErrors.NewValidationError(fields...)
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
