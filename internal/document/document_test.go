package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestForPath(t *testing.T) {
	if _, ok := mustLoader(t, "guide.PDF").(PDFLoader); !ok {
		t.Fatalf("expected PDFLoader for .PDF")
	}
	if _, ok := mustLoader(t, "notes.md").(TextLoader); !ok {
		t.Fatalf("expected TextLoader for .md")
	}
	if _, err := ForPath("sheet.xlsx"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func mustLoader(t *testing.T, path string) Loader {
	t.Helper()
	loader, err := ForPath(path)
	if err != nil {
		t.Fatalf("ForPath(%q): %v", path, err)
	}
	return loader
}

func TestLoadMissingDocument(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := Load(context.Background(), " "); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound for blank path, got %v", err)
	}
}

func TestTextLoaderSplitsPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("first page\fsecond page\f"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.PageCount() != 3 {
		t.Fatalf("expected 3 pages, got %d", doc.PageCount())
	}
	if doc.Pages[0].Index != 1 || doc.Pages[0].Text != "first page" {
		t.Fatalf("unexpected first page: %+v", doc.Pages[0])
	}
	if doc.Pages[1].Text != "second page" || doc.Pages[2].Text != "" {
		t.Fatalf("unexpected pages: %+v", doc.Pages)
	}
}

func TestTextLoaderEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.PageCount() != 0 {
		t.Fatalf("expected zero pages, got %d", doc.PageCount())
	}
}

func TestPDFLoaderRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(context.Background(), path); err == nil {
		t.Fatal("expected error for non-pdf content")
	}
}

func TestExtractPagesRecoversFromPanics(t *testing.T) {
	pages, err := extractPages(context.Background(), 3, func(i int) (string, error) {
		if i == 2 {
			panic("unexpected EOF in content stream")
		}
		return "page text", nil
	})
	if err == nil {
		t.Fatal("expected an error for a page that panics")
	}
	if pages != nil {
		t.Fatalf("expected no pages on failure, got %d", len(pages))
	}
	if !strings.Contains(err.Error(), "malformed pdf: page 2") || !strings.Contains(err.Error(), "unexpected EOF") {
		t.Fatalf("expected the error to name the page and cause, got %v", err)
	}
}

func TestExtractPagesKeepsEmptyPages(t *testing.T) {
	pages, err := extractPages(context.Background(), 3, func(i int) (string, error) {
		if i == 2 {
			return "", nil
		}
		return "text", nil
	})
	if err != nil {
		t.Fatalf("extractPages: %v", err)
	}
	if len(pages) != 3 || pages[1].Index != 2 || pages[1].Text != "" || pages[2].Index != 3 {
		t.Fatalf("unexpected pages: %+v", pages)
	}

	_, err = extractPages(context.Background(), 1, func(int) (string, error) { return "", errors.New("bad font") })
	if err == nil || !strings.Contains(err.Error(), "page 1") {
		t.Fatalf("expected extraction error naming the page, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	_ = os.WriteFile(a, []byte("same"), 0o644)
	_ = os.WriteFile(b, []byte("different"), 0o644)

	fa1, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	fa2, _ := Fingerprint(a)
	fb, _ := Fingerprint(b)
	if fa1 != fa2 {
		t.Fatalf("fingerprint not stable: %s vs %s", fa1, fa2)
	}
	if fa1 == fb {
		t.Fatalf("expected different fingerprints")
	}
	if len(fa1) != 64 {
		t.Fatalf("expected hex sha256, got %q", fa1)
	}
	if _, err := Fingerprint(filepath.Join(dir, "nope.txt")); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
