// internal/document/document.go
// Package document extracts page-level plain text from the source document.
package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrDocumentNotFound is returned when the configured document path does not exist.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrUnsupportedFormat is returned for file extensions no loader understands.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// Page is the extracted text of one page. Index is 1-based.
type Page struct {
	Index int
	Text  string
}

// Document is a loaded source file.
type Document struct {
	Path  string
	Pages []Page
}

// PageCount returns the number of pages in the document.
func (d Document) PageCount() int {
	return len(d.Pages)
}

// Loader extracts pages from a file.
type Loader interface {
	Load(ctx context.Context, path string) (Document, error)
}

// ForPath returns the loader registered for the file's extension.
func ForPath(path string) (Loader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return PDFLoader{}, nil
	case ".txt", ".md", ".text":
		return TextLoader{}, nil
	default:
		if ext == "" {
			ext = "(none)"
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// Load opens path with the loader matching its extension.
func Load(ctx context.Context, path string) (Document, error) {
	if err := checkExists(path); err != nil {
		return Document{}, err
	}
	loader, err := ForPath(path)
	if err != nil {
		return Document{}, err
	}
	return loader.Load(ctx, path)
}

// Fingerprint returns the hex SHA-256 of the file contents.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash document %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func checkExists(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: no path configured", ErrDocumentNotFound)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("document %s is a directory", path)
	}
	return nil
}
