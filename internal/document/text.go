package document

import (
	"context"
	"os"
	"strings"
)

// TextLoader reads plain-text files. Form feeds separate pages.
type TextLoader struct{}

func (TextLoader) Load(ctx context.Context, path string) (Document, error) {
	if err := checkExists(path); err != nil {
		return Document{}, err
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Document{Path: path, Pages: SplitPages(string(data))}, nil
}

// SplitPages splits text on form feeds. Empty input has no pages.
func SplitPages(text string) []Page {
	if text == "" {
		return nil
	}
	parts := strings.Split(text, "\f")
	pages := make([]Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, Page{Index: i + 1, Text: part})
	}
	return pages
}
