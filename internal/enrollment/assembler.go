package enrollment

import (
	"fmt"
	"strconv"
	"strings"

	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

// Payload is one multipart submission: scalar fields, an optional profile
// image and the ordered training images.
type Payload struct {
	Mode           Mode
	Fields         map[string]string
	ProfilePhoto   *Attachment
	TrainingImages []Attachment
}

// Assemble reduces a draft into a payload. Uploaded images come first, in
// order, followed by captured stills decoded from their data URLs. It does no
// I/O and only fails on a malformed captured image.
func Assemble(d *Draft, mode Mode) (*Payload, error) {
	p := &Payload{
		Mode:   mode,
		Fields: make(map[string]string, len(ScalarFields)),
	}

	for _, field := range ScalarFields {
		value := strings.TrimSpace(d.values[field])
		if value == "" {
			continue
		}
		if field == FieldHeight || field == FieldWeight {
			value = normalizeNumber(value)
		}
		p.Fields[string(field)] = value
	}

	if d.profile != nil {
		profile := *d.profile
		p.ProfilePhoto = &profile
	}

	p.TrainingImages = make([]Attachment, 0, d.TrainingImageCount())
	used := make(map[string]struct{}, d.TrainingImageCount())
	for _, img := range d.uploaded {
		p.TrainingImages = append(p.TrainingImages, img)
		used[img.Filename] = struct{}{}
	}

	for i, still := range d.captured {
		name := uniqueName(still.Filename, used)
		att, err := AttachmentFromDataURL(name, still.DataURL)
		if err != nil {
			return nil, fmt.Errorf("assemble captured image %d: %w", i+1, err)
		}
		used[name] = struct{}{}
		p.TrainingImages = append(p.TrainingImages, att)
	}

	return p, nil
}

// Field returns a scalar value from the payload.
func (p *Payload) Field(name Field) (string, bool) {
	v, ok := p.Fields[string(name)]
	return v, ok
}

func normalizeNumber(raw string) string {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		// left for the record service to reject
		return raw
	}
	return formatNumber(v)
}

func uniqueName(name string, used map[string]struct{}) string {
	if _, taken := used[name]; !taken {
		return name
	}
	base := strings.TrimSuffix(name, ".jpg")
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d.jpg", base, n)
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}
}

// checkPayload guards the image bound once more at submission time.
func checkPayload(p *Payload, maxImages int) error {
	if len(p.TrainingImages) > maxImages {
		return appErrors.Clone(appErrors.ErrTooManyImages,
			fmt.Sprintf("training images limited to %d, got %d", maxImages, len(p.TrainingImages)))
	}
	return nil
}
