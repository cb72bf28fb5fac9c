package enrollment

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

// Attachment is the single binary shape every image takes before transport,
// whether it came from a file on disk or from a captured camera still.
type Attachment struct {
	Filename  string
	MediaType string
	Data      []byte
}

// NewAttachment wraps raw bytes, sniffing the media type from content.
func NewAttachment(filename string, data []byte) Attachment {
	return Attachment{
		Filename:  filepath.Base(filename),
		MediaType: detectMediaType(data),
		Data:      data,
	}
}

// AttachmentFromFile reads an uploaded image from disk.
func AttachmentFromFile(path string) (Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("read attachment %s: %w", path, err)
	}
	return NewAttachment(path, data), nil
}

// AttachmentFromDataURL decodes a captured still stored as a base64 data URL.
func AttachmentFromDataURL(filename, dataURL string) (Attachment, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return Attachment{}, appErrors.Clone(appErrors.ErrEncoding, "captured image "+filename+" is not a base64 data url")
	}
	mediaType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	if mediaType == "" {
		return Attachment{}, appErrors.Clone(appErrors.ErrEncoding, "captured image "+filename+" has no media type")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Attachment{}, appErrors.Wrap(err, appErrors.ErrEncoding.Code, appErrors.ErrEncoding.Status, "captured image "+filename+" has malformed payload")
	}
	if len(data) == 0 {
		return Attachment{}, appErrors.Clone(appErrors.ErrEncoding, "captured image "+filename+" is empty")
	}
	return Attachment{Filename: filename, MediaType: mediaType, Data: data}, nil
}

// EncodeDataURL is the inverse of AttachmentFromDataURL.
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func detectMediaType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
