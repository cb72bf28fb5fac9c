package enrollment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/measureme/internal/models"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

const compensationTimeout = 10 * time.Second

// StudentWriter is the mutating half of the record service client.
type StudentWriter interface {
	CreateStudent(ctx context.Context, payload *Payload) (*models.Student, error)
	UpdateStudent(ctx context.Context, id string, payload *Payload) (*models.Student, error)
	DeleteStudent(ctx context.Context, id string) error
}

// Camera is the capture adapter as seen by a session.
type Camera interface {
	Start(ctx context.Context) error
	Capture(ctx context.Context) (string, error)
	Stop() error
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Student seeds an edit session; nil opens a new registration.
	Student           *models.Student
	MaxTrainingImages int
	Camera            Camera
	Validator         *validator.Validate
	Logger            *zap.Logger
	// Locks serializes submissions that target the same record id.
	Locks *RecordLocks
	// OnSubmitted runs after a successful submit, outside the session lock.
	OnSubmitted func(ctx context.Context, student *models.Student)
}

// Session is one open registration form. It owns the draft, the wizard and
// the camera for its lifetime; Close releases all of them.
type Session struct {
	id       string
	recordID string
	writer   StudentWriter
	camera   Camera
	locks    *RecordLocks
	logger   *zap.Logger
	onDone   func(ctx context.Context, student *models.Student)

	mu         sync.Mutex
	draft      *Draft
	wizard     *Wizard
	closed     bool
	submitting bool
	result     *models.Student
	cancelOpen context.CancelFunc
}

// NewSession opens a session in create mode, or edit mode when opts.Student is set.
func NewSession(writer StudentWriter, opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := ModeCreate
	var draft *Draft
	recordID := ""
	if opts.Student != nil {
		mode = ModeEdit
		recordID = opts.Student.ID
		draft = DraftFromStudent(*opts.Student, opts.MaxTrainingImages)
	} else {
		draft = NewDraft(opts.MaxTrainingImages)
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		recordID: recordID,
		writer:   writer,
		camera:   opts.Camera,
		locks:    opts.Locks,
		logger:   logger.With(zap.String("session_id", id), zap.String("mode", mode.String())),
		onDone:   opts.OnSubmitted,
		draft:    draft,
		wizard:   NewWizard(draft, mode, opts.Validator),
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Step returns the wizard's current step.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wizard.Step()
}

// Mode reports whether the session creates or edits.
func (s *Session) Mode() Mode { return s.wizard.Mode() }

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Result returns the record returned by a successful submit.
func (s *Session) Result() *models.Student {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// UpdateField sets a scalar field on the draft.
func (s *Session) UpdateField(field Field, value string) error {
	return s.withDraft(func(d *Draft) error {
		d.UpdateField(field, value)
		return nil
	})
}

// AttachProfileImage replaces the pending profile image.
func (s *Session) AttachProfileImage(img Attachment) error {
	return s.withDraft(func(d *Draft) error {
		d.AttachProfileImage(img)
		return nil
	})
}

// AddTrainingImages appends uploaded training images.
func (s *Session) AddTrainingImages(imgs ...Attachment) error {
	return s.withDraft(func(d *Draft) error {
		return d.AddTrainingImages(imgs...)
	})
}

// Inspect gives read access to the draft under the session lock.
func (s *Session) Inspect(fn func(d *Draft)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.draft)
}

// StartCapture enters capture mode. A missing or refused camera is returned
// as DeviceUnavailable and leaves the rest of the wizard usable. The device
// opens outside the session lock; Close cancels a pending open, and a device
// that opens after Close is released again.
func (s *Session) StartCapture(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return appErrors.ErrSessionClosed
	}
	if s.camera == nil {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrDeviceUnavailable, "no capture device configured")
	}
	if s.cancelOpen != nil {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrInvalidTransition, "capture device is already opening")
	}
	openCtx, cancel := context.WithCancel(ctx)
	s.cancelOpen = cancel
	s.mu.Unlock()

	err := s.camera.Start(openCtx)

	s.mu.Lock()
	s.cancelOpen = nil
	closed := s.closed
	s.mu.Unlock()
	cancel()

	if closed {
		if err == nil {
			if serr := s.camera.Stop(); serr != nil {
				s.logger.Warn("failed to release capture device", zap.Error(serr))
			}
		}
		return appErrors.ErrSessionClosed
	}
	if err != nil {
		s.logger.Warn("capture unavailable", zap.Error(err))
		return err
	}
	return nil
}

// CaptureImage grabs one still and appends it to the draft.
func (s *Session) CaptureImage(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", appErrors.ErrSessionClosed
	}
	if s.camera == nil {
		return "", appErrors.Clone(appErrors.ErrDeviceUnavailable, "no capture device configured")
	}
	if err := s.draft.checkCapacity(1); err != nil {
		return "", err
	}
	dataURL, err := s.camera.Capture(ctx)
	if err != nil {
		return "", err
	}
	return s.draft.AddCapturedImage(dataURL)
}

// StopCapture leaves capture mode and releases the device.
func (s *Session) StopCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseCamera()
}

// Next advances the wizard.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return appErrors.ErrSessionClosed
	}
	return s.wizard.Next()
}

// Previous moves the wizard back.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return appErrors.ErrSessionClosed
	}
	return s.wizard.Previous()
}

// Submit finalizes the draft and sends it to the record service. On failure
// the wizard stays on its step with the draft intact so the caller may retry.
// On success the session closes. If the session is closed while the request
// is in flight the response is ignored, and a record created by it is deleted.
func (s *Session) Submit(ctx context.Context) (*models.Student, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, appErrors.ErrSessionClosed
	}
	if s.submitting {
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "submit already in flight")
	}
	payload, err := s.wizard.Finalize()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.submitting = true
	mode := s.wizard.Mode()
	s.mu.Unlock()

	student, err := s.send(ctx, mode, payload)

	s.mu.Lock()
	s.submitting = false
	if s.closed {
		s.mu.Unlock()
		s.abandon(ctx, mode, student, err)
		return nil, appErrors.ErrSessionClosed
	}
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("submit failed", zap.Stringer("step", s.Step()), zap.Error(err))
		return nil, err
	}
	s.result = student
	s.closeLocked()
	s.mu.Unlock()

	s.logger.Info("enrollment submitted",
		zap.String("student_id", student.ID),
		zap.Int("training_images", len(payload.TrainingImages)))
	if s.onDone != nil {
		s.onDone(ctx, student)
	}
	return student, nil
}

// Close ends the session on any path: cancel, after submit, or after an
// error. The camera is released immediately. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.submitting {
		s.logger.Info("session closed with submit in flight; response will be discarded")
	}
	s.closed = true
	if s.cancelOpen != nil {
		s.cancelOpen()
	}
	s.mu.Unlock()
	return s.releaseCamera()
}

func (s *Session) send(ctx context.Context, mode Mode, payload *Payload) (*models.Student, error) {
	if mode == ModeEdit {
		if s.locks != nil {
			unlock := s.locks.Lock(s.recordID)
			defer unlock()
		}
		return s.writer.UpdateStudent(ctx, s.recordID, payload)
	}
	return s.writer.CreateStudent(ctx, payload)
}

// abandon handles a response that arrived after Close.
func (s *Session) abandon(ctx context.Context, mode Mode, student *models.Student, err error) {
	if err != nil || student == nil {
		s.logger.Info("discarded abandoned submit", zap.Error(err))
		return
	}
	if mode != ModeCreate {
		s.logger.Warn("abandoned update already applied", zap.String("student_id", student.ID))
		return
	}
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if derr := s.writer.DeleteStudent(delCtx, student.ID); derr != nil && !errors.Is(derr, appErrors.ErrNotFound) {
		s.logger.Error("failed to remove record created by abandoned session",
			zap.String("student_id", student.ID), zap.Error(derr))
		return
	}
	s.logger.Info("removed record created by abandoned session", zap.String("student_id", student.ID))
}

func (s *Session) closeLocked() error {
	s.closed = true
	return s.releaseCamera()
}

func (s *Session) releaseCamera() error {
	if s.camera == nil {
		return nil
	}
	if err := s.camera.Stop(); err != nil {
		s.logger.Warn("failed to release capture device", zap.Error(err))
		return err
	}
	return nil
}

func (s *Session) withDraft(fn func(d *Draft) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return appErrors.ErrSessionClosed
	}
	return fn(s.draft)
}

// RecordLocks serializes mutations per record id.
type RecordLocks struct {
	mu    sync.Mutex
	locks map[string]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

// NewRecordLocks returns an empty lock table.
func NewRecordLocks() *RecordLocks {
	return &RecordLocks{locks: make(map[string]*recordLock)}
}

// Lock blocks until the record is free and returns the matching unlock.
func (l *RecordLocks) Lock(id string) func() {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &recordLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
