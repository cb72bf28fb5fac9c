package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// DirectoryDevice replays the image files of a directory as frames, in name
// order, wrapping around at the end. It stands in for a camera on stations
// that export stills to disk.
type DirectoryDevice struct {
	dir string

	mu     sync.Mutex
	frames []string
	next   int
	open   bool
}

// NewDirectoryDevice returns a device reading frames from dir.
func NewDirectoryDevice(dir string) *DirectoryDevice {
	return &DirectoryDevice{dir: dir}
}

// ID is the cleaned directory path.
func (d *DirectoryDevice) ID() string {
	return "dir:" + filepath.Clean(d.dir)
}

// Open lists the frame files. An empty or missing directory is DeviceUnavailable.
func (d *DirectoryDevice) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(d.dir) == "" {
		return appErrors.Clone(appErrors.ErrDeviceUnavailable, "no capture directory configured")
	}
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrDeviceUnavailable.Code, appErrors.ErrDeviceUnavailable.Status, "capture directory unreadable")
	}
	frames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if frameExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			frames = append(frames, filepath.Join(d.dir, entry.Name()))
		}
	}
	if len(frames) == 0 {
		return appErrors.Clone(appErrors.ErrDeviceUnavailable, "capture directory has no frames")
	}
	sort.Strings(frames)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = frames
	d.next = 0
	d.open = true
	return nil
}

// Frame decodes the next file.
func (d *DirectoryDevice) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrDeviceUnavailable, "capture device closed")
	}
	path := d.frames[d.next]
	d.next = (d.next + 1) % len(d.frames)
	d.mu.Unlock()

	return decodeFrame(path)
}

// Close forgets the frame list.
func (d *DirectoryDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.frames = nil
	d.next = 0
	return nil
}

func decodeFrame(path string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, err := webp.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		return img, nil
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
