// Package export renders a conversation transcript to a document file.
package export

import (
	"errors"
	"fmt"
	"os"

	"RelayChat/internal/session"
)

// Format selects the output document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatWord Format = "word"
)

// ErrUnsupportedFormat indicates a format outside {pdf, word}.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ErrToolNotFound indicates a rendering dependency is missing on the host.
var ErrToolNotFound = errors.New("rendering tool not found")

// Exporter writes a transcript to the file at path.
type Exporter interface {
	Export(messages []session.Message, title string, path string) error
	FileExtension() string
}

func exporterFor(format Format) (Exporter, error) {
	switch format {
	case FormatPDF:
		return &PDFExporter{}, nil
	case FormatWord:
		return &WordExporter{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// Export renders messages under title into a temporary file and returns its
// path. The caller owns the file.
func Export(messages []session.Message, title string, format Format) (string, error) {
	exporter, err := exporterFor(format)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "relaychat-export-*"+exporter.FileExtension())
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()

	if err := exporter.Export(messages, title, path); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
