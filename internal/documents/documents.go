package documents

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Epistemic-Technology/doc-commenter/models"
)

// ErrUnsupportedDocument is returned for extensions other than .docx and .pdf.
var ErrUnsupportedDocument = errors.New("only .docx and .pdf are supported")

// KindFromPath maps a file extension to a document kind
func KindFromPath(path string) (models.DocumentKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return models.KindDOCX, nil
	case ".pdf":
		return models.KindPDF, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, path)
	}
}

// DetectDocumentType determines the type of document from the raw data
// by checking magic bytes/headers
func DetectDocumentType(data []byte) string {
	if len(data) < 4 {
		return "unknown"
	}

	// PDF: starts with %PDF, possibly after a few bytes of junk
	if bytes.HasPrefix(data, []byte("%PDF")) || bytes.Contains(data[:min(len(data), 1024)], []byte("%PDF-")) {
		return "pdf"
	}

	// DOCX: ZIP file starting with PK (0x504B) containing specific XML files
	if data[0] == 0x50 && data[1] == 0x4B &&
		(data[2] == 0x03 || data[2] == 0x05 || data[2] == 0x07) {
		if bytes.Contains(data, []byte("word/")) {
			return "docx"
		}
		return "zip"
	}

	return "unknown"
}

// ReadDocument reads the document at path and checks that its content agrees
// with its extension.
func ReadDocument(path string) (models.DocumentData, error) {
	kind, err := KindFromPath(path)
	if err != nil {
		return models.DocumentData{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.DocumentData{}, fmt.Errorf("failed to read document: %w", err)
	}

	if detected := DetectDocumentType(data); detected != string(kind) {
		return models.DocumentData{}, fmt.Errorf("%s does not look like a %s file (detected %s)", path, kind, detected)
	}

	return models.DocumentData{Path: path, Data: data, Kind: kind}, nil
}

// DefaultOutputPath returns <stem>-annotated<ext> next to the input.
func DefaultOutputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-annotated" + ext
}

// WriteFileAtomic writes data to a temporary file in the destination directory
// and renames it over path, so a failed write never leaves partial output.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to set output permissions: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
