package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

type fakeDevice struct {
	id      string
	openErr error

	mu     sync.Mutex
	opens  int
	closes int
}

func (f *fakeDevice) ID() string { return f.id }

func (f *fakeDevice) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f.openErr
}

func (f *fakeDevice) Frame(ctx context.Context) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return img, nil
}

func (f *fakeDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func TestAdapterCaptureBeforeStart(t *testing.T) {
	a := NewAdapter(&fakeDevice{id: "cam-before"}, Options{})
	_, err := a.Capture(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDeviceUnavailable))
	assert.NoError(t, a.Stop())
}

func TestAdapterCaptureProducesJPEGDataURL(t *testing.T) {
	dev := &fakeDevice{id: "cam-jpeg"}
	a := NewAdapter(dev, Options{JPEGQuality: 150})
	assert.Equal(t, DefaultJPEGQuality, a.quality)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	out, err := a.Capture(context.Background())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "data:image/jpeg;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(out, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	stats := a.Stats()
	assert.True(t, stats.Active)
	assert.Equal(t, uint64(1), stats.FramesCaptured)
}

func TestAdapterExclusiveAndReleasable(t *testing.T) {
	dev := &fakeDevice{id: "cam-shared"}
	first := NewAdapter(dev, Options{})
	second := NewAdapter(dev, Options{})

	require.NoError(t, first.Start(context.Background()))
	require.NoError(t, first.Start(context.Background()))
	assert.Equal(t, 1, dev.opens)
	assert.True(t, Held("cam-shared"))

	err := second.Start(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrDeviceUnavailable))

	require.NoError(t, first.Stop())
	require.NoError(t, first.Stop())
	assert.Equal(t, 1, dev.closes)
	assert.False(t, Held("cam-shared"))

	require.NoError(t, second.Start(context.Background()))
	require.NoError(t, second.Stop())
	assert.False(t, first.Active())
}

func TestAdapterOpenFailureReleasesClaim(t *testing.T) {
	dev := &fakeDevice{id: "cam-broken", openErr: errors.New("permission denied")}
	a := NewAdapter(dev, Options{})

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDeviceUnavailable))
	assert.False(t, a.Active())
	assert.False(t, Held("cam-broken"))
}
