package capture

import (
	"context"
	"image"
	"sync"

	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

// Device is a source of still frames.
//
// Implementations must guarantee:
//   - Open is called before Frame and may fail with DeviceUnavailable
//   - Close releases every OS resource and is safe after a failed Open
//   - ID is stable for the lifetime of the device
type Device interface {
	ID() string
	Open(ctx context.Context) error
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// registry records which device ids are held. A device id may be claimed by
// one Adapter at a time across the process.
var registry = struct {
	mu   sync.Mutex
	held map[string]string
}{held: make(map[string]string)}

func claim(deviceID, owner string) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if current, ok := registry.held[deviceID]; ok && current != owner {
		return appErrors.Clone(appErrors.ErrDeviceUnavailable, "capture device "+deviceID+" is in use")
	}
	registry.held[deviceID] = owner
	return nil
}

func release(deviceID, owner string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.held[deviceID] == owner {
		delete(registry.held, deviceID)
	}
}

// Held reports whether any adapter currently owns the device id.
func Held(deviceID string) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	_, ok := registry.held[deviceID]
	return ok
}
