package document

import (
	"context"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts the plain text of every page of a PDF file.
type PDFLoader struct{}

func (PDFLoader) Load(ctx context.Context, path string) (Document, error) {
	if err := checkExists(path); err != nil {
		return Document{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return Document{}, err
	}

	reader, err := readPDF(f, stat.Size())
	if err != nil {
		return Document{}, fmt.Errorf("open pdf %s: %w", path, err)
	}

	pages, err := extractPages(ctx, reader.NumPage(), func(i int) (string, error) {
		page := reader.Page(i)
		// Null pages stay in the document so page numbers match the viewer.
		if page.V.IsNull() {
			return "", nil
		}
		return page.GetPlainText(nil)
	})
	if err != nil {
		return Document{}, fmt.Errorf("read pdf %s: %w", path, err)
	}
	return Document{Path: path, Pages: pages}, nil
}

// pageText returns the plain text of page i.
type pageText func(i int) (string, error)

// extractPages reads pages 1..numPages in order. Panics raised by the parser while walking
// a malformed page are returned as errors naming that page.
func extractPages(ctx context.Context, numPages int, text pageText) (pages []Page, err error) {
	current := 0
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("malformed pdf: page %d: %v", current, r)
		}
	}()

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current = i
		t, err := text(i)
		if err != nil {
			return nil, fmt.Errorf("extract text from page %d: %w", i, err)
		}
		pages = append(pages, Page{Index: i, Text: t})
	}
	return pages, nil
}

// readPDF converts panics from the parser on malformed input into errors.
func readPDF(f *os.File, size int64) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	return pdf.NewReader(f, size)
}
