package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

const (
	// DefaultJPEGQuality is the fixed encoding quality for captured stills.
	DefaultJPEGQuality = 92
	// MediaType of every captured still.
	MediaType = "image/jpeg"

	dataURLPrefix = "data:" + MediaType + ";base64,"
)

// Stats describes one adapter's capture activity.
type Stats struct {
	DeviceID       string
	Active         bool
	FramesCaptured uint64
	Failures       uint64
	StartedAt      time.Time
	LastCaptureAt  time.Time
}

// Options configures an Adapter.
type Options struct {
	JPEGQuality int
	Logger      *zap.Logger
}

// Adapter holds a Device exclusively while capture mode is active and turns
// its frames into JPEG data URLs.
type Adapter struct {
	device  Device
	quality int
	owner   string
	logger  *zap.Logger

	mu     sync.Mutex
	active bool
	stats  Stats
}

// NewAdapter wraps a device. Nothing is acquired until Start.
func NewAdapter(device Device, opts Options) *Adapter {
	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		device:  device,
		quality: quality,
		owner:   uuid.NewString(),
		logger:  logger.With(zap.String("device_id", device.ID())),
		stats:   Stats{DeviceID: device.ID()},
	}
}

// Start claims and opens the device. Calling Start while active is a no-op.
// Failures are returned as DeviceUnavailable and leave nothing held.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		return nil
	}
	if err := claim(a.device.ID(), a.owner); err != nil {
		return err
	}
	if err := a.device.Open(ctx); err != nil {
		_ = a.device.Close()
		release(a.device.ID(), a.owner)
		a.logger.Warn("capture device unavailable", zap.Error(err))
		if errors.Is(err, appErrors.ErrDeviceUnavailable) {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrDeviceUnavailable.Code, appErrors.ErrDeviceUnavailable.Status, "failed to open capture device")
	}
	a.active = true
	a.stats.Active = true
	a.stats.StartedAt = time.Now().UTC()
	a.logger.Info("capture started")
	return nil
}

// Capture grabs the current frame and returns it as a JPEG data URL. It
// fails with DeviceUnavailable when capture has not been started.
func (a *Adapter) Capture(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return "", appErrors.Clone(appErrors.ErrDeviceUnavailable, "capture not started")
	}
	img, err := a.device.Frame(ctx)
	if err != nil {
		a.stats.Failures++
		return "", appErrors.Wrap(err, appErrors.ErrDeviceUnavailable.Code, appErrors.ErrDeviceUnavailable.Status, "failed to read frame")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(a.quality)); err != nil {
		a.stats.Failures++
		return "", appErrors.Wrap(err, appErrors.ErrEncoding.Code, appErrors.ErrEncoding.Status, "failed to encode frame")
	}
	a.stats.FramesCaptured++
	a.stats.LastCaptureAt = time.Now().UTC()
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Stop closes the device and gives up the claim. Safe to call more than once
// and when Start never succeeded.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return nil
	}
	a.active = false
	a.stats.Active = false
	err := a.device.Close()
	release(a.device.ID(), a.owner)
	if err != nil {
		return fmt.Errorf("close capture device: %w", err)
	}
	a.logger.Info("capture stopped", zap.Uint64("frames", a.stats.FramesCaptured))
	return nil
}

// Active reports whether the adapter currently holds its device.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Stats returns a snapshot of capture activity.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
