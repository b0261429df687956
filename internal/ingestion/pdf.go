package ingestion

import (
	"errors"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ExtractTextFromPDF returns the text layer of every page, pages separated
// by a blank line. A PDF with no pages or no text is an error.
func ExtractTextFromPDF(path string) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	if n == 0 {
		return "", 0, errors.New("pdf has no pages")
	}

	var pages []string
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", n, fmt.Errorf("reading page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", n, fmt.Errorf("pdf with %d page(s): %w", n, ErrNoText)
	}
	return strings.Join(pages, "\n\n"), n, nil
}
