package enrollment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/measureme/internal/models"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

type fakeWriter struct {
	mu       sync.Mutex
	records  map[string]models.Student
	created  []*Payload
	updated  map[string]*Payload
	deleted  []string
	failWith error
	block    chan struct{}
	entered  chan struct{}
	nextID   int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{records: map[string]models.Student{}, updated: map[string]*Payload{}}
}

func (f *fakeWriter) wait() {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeWriter) CreateStudent(ctx context.Context, payload *Payload) (*models.Student, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.nextID++
	id := string(rune('a' + f.nextID - 1))
	rec := models.Student{ID: id, Name: payload.Fields["name"], RollNumber: payload.Fields["roll_number"]}
	f.records[id] = rec
	f.created = append(f.created, payload)
	return &rec, nil
}

func (f *fakeWriter) UpdateStudent(ctx context.Context, id string, payload *Payload) (*models.Student, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	rec.Name = payload.Fields["name"]
	f.records[id] = rec
	f.updated[id] = payload
	return &rec, nil
}

func (f *fakeWriter) DeleteStudent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return appErrors.ErrNotFound
	}
	delete(f.records, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCamera struct {
	mu       sync.Mutex
	started  bool
	stops    int
	startErr error
}

func (c *fakeCamera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.started = true
	return nil
}

func (c *fakeCamera) Capture(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return "", appErrors.Clone(appErrors.ErrDeviceUnavailable, "capture not started")
	}
	return EncodeDataURL("image/jpeg", jpegBytes), nil
}

func (c *fakeCamera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.stops++
	return nil
}

func fillCreateSession(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.UpdateField(FieldName, "Asha"))
	require.NoError(t, s.UpdateField(FieldRollNumber, "12"))
	require.NoError(t, s.Next())
	require.NoError(t, s.AttachProfileImage(NewAttachment("me.jpg", jpegBytes)))
	require.NoError(t, s.Next())
}

func TestSessionSubmitCreatesAndCloses(t *testing.T) {
	writer := newFakeWriter()
	cam := &fakeCamera{}
	var refreshed *models.Student
	s := NewSession(writer, SessionOptions{
		Camera:      cam,
		OnSubmitted: func(ctx context.Context, st *models.Student) { refreshed = st },
	})
	fillCreateSession(t, s)
	require.NoError(t, s.AddTrainingImages(NewAttachment("a.jpg", jpegBytes), NewAttachment("b.jpg", jpegBytes)))
	require.NoError(t, s.StartCapture(context.Background()))
	for i := 0; i < 3; i++ {
		_, err := s.CaptureImage(context.Background())
		require.NoError(t, err)
	}

	student, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Asha", student.Name)
	assert.True(t, s.Closed())
	assert.Equal(t, student, refreshed)
	assert.GreaterOrEqual(t, cam.stops, 1)
	require.Len(t, writer.created, 1)
	assert.Len(t, writer.created[0].TrainingImages, 5)

	_, err = s.Submit(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrSessionClosed))
}

func TestSessionSubmitFailureKeepsDraft(t *testing.T) {
	writer := newFakeWriter()
	writer.failWith = appErrors.ErrServiceUnavailable
	s := NewSession(writer, SessionOptions{})
	fillCreateSession(t, s)

	_, err := s.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrServiceUnavailable))
	assert.False(t, s.Closed())
	assert.Equal(t, StepTrainingImages, s.Step())
	s.Inspect(func(d *Draft) {
		assert.Equal(t, "Asha", d.Value(FieldName))
		assert.NotNil(t, d.ProfileImage())
	})

	writer.failWith = nil
	student, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12", student.RollNumber)
}

func TestSessionEditUsesUpdate(t *testing.T) {
	writer := newFakeWriter()
	writer.records["s-1"] = models.Student{ID: "s-1", Name: "Old", RollNumber: "7"}
	existing := writer.records["s-1"]
	s := NewSession(writer, SessionOptions{Student: &existing, Locks: NewRecordLocks()})
	assert.Equal(t, ModeEdit, s.Mode())
	require.NoError(t, s.UpdateField(FieldName, "New"))
	require.NoError(t, s.Next())
	require.NoError(t, s.Next())

	student, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "New", student.Name)
	require.Contains(t, writer.updated, "s-1")
	assert.Empty(t, writer.updated["s-1"].TrainingImages)
	assert.Nil(t, writer.updated["s-1"].ProfilePhoto)
}

func TestSessionCloseDuringSubmitLeavesNoRecord(t *testing.T) {
	writer := newFakeWriter()
	writer.block = make(chan struct{})
	writer.entered = make(chan struct{}, 1)
	cam := &fakeCamera{}
	s := NewSession(writer, SessionOptions{Camera: cam})
	fillCreateSession(t, s)
	require.NoError(t, s.StartCapture(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()

	<-writer.entered
	require.NoError(t, s.Close())
	assert.False(t, cam.started)
	close(writer.block)

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, appErrors.ErrSessionClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not return")
	}
	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.Empty(t, writer.records)
	assert.Len(t, writer.deleted, 1)

	next := NewSession(writer, SessionOptions{Camera: cam})
	require.NoError(t, next.StartCapture(context.Background()))
	require.NoError(t, next.Close())
}

func TestSessionCaptureUnavailableIsNonFatal(t *testing.T) {
	cam := &fakeCamera{startErr: appErrors.Clone(appErrors.ErrDeviceUnavailable, "no camera")}
	s := NewSession(newFakeWriter(), SessionOptions{Camera: cam})

	err := s.StartCapture(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrDeviceUnavailable))
	require.NoError(t, s.UpdateField(FieldName, "Asha"))
	require.NoError(t, s.UpdateField(FieldRollNumber, "12"))
	require.NoError(t, s.Next())

	_, err = s.CaptureImage(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrDeviceUnavailable))
}

// slowCamera blocks in Start until release is closed. When honorCtx is set
// it also gives up once the open context is cancelled.
type slowCamera struct {
	fakeCamera
	opening  chan struct{}
	release  chan struct{}
	honorCtx bool
}

func (c *slowCamera) Start(ctx context.Context) error {
	close(c.opening)
	if c.honorCtx {
		select {
		case <-ctx.Done():
			return appErrors.Clone(appErrors.ErrDeviceUnavailable, "open cancelled")
		case <-c.release:
		}
	} else {
		<-c.release
	}
	return c.fakeCamera.Start(ctx)
}

func TestSessionCloseDuringCaptureStart(t *testing.T) {
	tests := []struct {
		name      string
		honorCtx  bool
		wantStops int
	}{
		{name: "pending open is cancelled", honorCtx: true, wantStops: 1},
		{name: "late open is released", honorCtx: false, wantStops: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := &slowCamera{opening: make(chan struct{}), release: make(chan struct{}), honorCtx: tt.honorCtx}
			s := NewSession(newFakeWriter(), SessionOptions{Camera: cam})

			result := make(chan error, 1)
			go func() { result <- s.StartCapture(context.Background()) }()
			<-cam.opening

			closed := make(chan error, 1)
			go func() { closed <- s.Close() }()
			select {
			case err := <-closed:
				require.NoError(t, err)
			case <-time.After(time.Second):
				t.Fatal("Close waited for the capture device to open")
			}

			if !tt.honorCtx {
				close(cam.release)
			}
			select {
			case err := <-result:
				assert.ErrorIs(t, err, appErrors.ErrSessionClosed)
			case <-time.After(time.Second):
				t.Fatal("StartCapture did not return")
			}

			cam.mu.Lock()
			defer cam.mu.Unlock()
			assert.False(t, cam.started)
			assert.Equal(t, tt.wantStops, cam.stops)
		})
	}
}

func TestRecordLocksSerializeSameID(t *testing.T) {
	locks := NewRecordLocks()
	unlock := locks.Lock("s-1")

	acquired := make(chan struct{})
	released := make(chan struct{})
	go func() {
		u := locks.Lock("s-1")
		close(acquired)
		u()
		close(released)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}
	other := locks.Lock("s-2")
	other()
	unlock()
	<-acquired
	<-released

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
