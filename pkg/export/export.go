package export

import (
	"fmt"
	"strings"
)

// Dataset defines tabular export content. Summary lines are rendered under
// the table by formats that support free text.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
	Summary []string
}

// Exporter renders a dataset into one file format.
type Exporter interface {
	Render(data Dataset) ([]byte, error)
	Extension() string
	ContentType() string
}

// ForFormat picks an exporter by name: csv or pdf.
func ForFormat(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return NewCSVExporter(), nil
	case "pdf":
		return NewPDFExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
