// Package ingestion turns a document reference into plain text.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupported = errors.New("unsupported file type")
	ErrNoText      = errors.New("no extractable text")
)

// Document is extracted text plus where it came from.
type Document struct {
	Source string
	Kind   string
	Pages  int
	Text   string
}

// Extractor reads local files and downloads remote ones first.
type Extractor struct {
	downloader *Downloader
}

func NewExtractor(d *Downloader) *Extractor {
	if d == nil {
		d = NewDownloader(nil, 0)
	}
	return &Extractor{downloader: d}
}

// Extract returns the text of source, a local path or an http(s) URL.
func (e *Extractor) Extract(ctx context.Context, source string) (Document, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Document{}, fmt.Errorf("document source is empty")
	}

	path := source
	if IsURL(source) {
		tmp, err := e.downloader.Fetch(ctx, source)
		if err != nil {
			return Document{}, err
		}
		defer os.Remove(tmp)
		path = tmp
	}

	doc, err := ExtractText(path)
	if err != nil {
		return Document{}, fmt.Errorf("extracting %s: %w", source, err)
	}
	doc.Source = source
	return doc, nil
}

// ExtractText detects the file type from its extension.
func ExtractText(path string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md":
		b, err := os.ReadFile(path)
		if err != nil {
			return Document{}, err
		}
		text := string(b)
		if strings.TrimSpace(text) == "" {
			return Document{}, ErrNoText
		}
		return Document{Source: path, Kind: strings.TrimPrefix(ext, "."), Pages: 1, Text: text}, nil
	case ".pdf":
		text, pages, err := ExtractTextFromPDF(path)
		if err != nil {
			return Document{}, err
		}
		return Document{Source: path, Kind: "pdf", Pages: pages, Text: text}, nil
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}
