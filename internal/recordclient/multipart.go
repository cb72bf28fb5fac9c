package recordclient

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"

	"github.com/noah-isme/measureme/internal/enrollment"
)

// Multipart part names understood by the record service.
const (
	PartProfilePhoto   = "profile_photo"
	PartTrainingImages = "training_images"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// EncodeMultipart renders a payload as multipart/form-data. Scalar fields are
// written in name order, then the profile photo, then training images in
// payload order. Every file part carries its own Content-Type.
func EncodeMultipart(p *enrollment.Payload) ([]byte, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	keys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, p.Fields[k]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if p.ProfilePhoto != nil {
		if err := writeFile(w, PartProfilePhoto, *p.ProfilePhoto); err != nil {
			return nil, "", err
		}
	}
	for _, img := range p.TrainingImages {
		if err := writeFile(w, PartTrainingImages, img); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, part string, att enrollment.Attachment) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(part), quoteEscaper.Replace(att.Filename)))
	mediaType := att.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	header.Set("Content-Type", mediaType)
	pw, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create %s part: %w", part, err)
	}
	if _, err := pw.Write(att.Data); err != nil {
		return fmt.Errorf("write %s part: %w", part, err)
	}
	return nil
}

func sortStrings(in []string) []string {
	sort.Strings(in)
	return in
}
