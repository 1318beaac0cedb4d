package document

import (
	"fmt"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"
)

// pdfExtractor reads page text from a PDF. The pdf reader is not safe for
// concurrent use, so calls are serialized.
type pdfExtractor struct {
	mu sync.Mutex
	f  *os.File
	r  *pdf.Reader
}

func openPDF(path string) (*pdfExtractor, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open pdf: %w", err)
	}
	return &pdfExtractor{f: f, r: r}, nil
}

func (e *pdfExtractor) PageCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.r.NumPage()
}

func (e *pdfExtractor) PageText(index int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// pdf pages are 1-based
	p := e.r.Page(index + 1)
	if p.V.IsNull() {
		return "", nil
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("pdf page %d: %w", index, err)
	}
	return text, nil
}

func (e *pdfExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.f.Close()
}
