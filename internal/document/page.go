package document

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrOutOfRange is returned when a page index is outside [0, PageCount).
var ErrOutOfRange = errors.New("page index out of range")

// ErrEmptyDocument is returned for a document without pages.
var ErrEmptyDocument = errors.New("document has no pages")

// Document describes a loaded document. It is immutable once loaded.
type Document struct {
	Path       string
	TotalPages int
}

// Page is the extracted text of a single page.
type Page struct {
	Index   int
	Text    string
	IsEmpty bool // extraction produced no readable text
}

// Store gives indexed access to the pages of one document.
type Store interface {
	// Document returns the document the store serves.
	Document() Document

	// PageCount returns the number of pages.
	PageCount() int

	// Page returns the page at index. Repeated calls for the same index
	// return identical content without extracting twice.
	Page(index int) (Page, error)

	// Close releases the underlying extractor.
	Close() error
}

// Strategy selects when page text is extracted.
type Strategy string

const (
	// StrategyEager extracts every page when the document is opened.
	StrategyEager Strategy = "eager"
	// StrategyLazy extracts a page the first time it is requested.
	StrategyLazy Strategy = "lazy"
)

// ParseStrategy parses a strategy name. The empty string means lazy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyLazy:
		return StrategyLazy, nil
	case StrategyEager:
		return StrategyEager, nil
	default:
		return "", fmt.Errorf("unknown page store strategy %q (want eager or lazy)", s)
	}
}

func checkRange(index, total int) error {
	if index < 0 || index >= total {
		return fmt.Errorf("page %d of %d: %w", index, total, ErrOutOfRange)
	}
	return nil
}

// newPage builds a Page from raw extractor output. Extraction errors are not
// fatal: the page is simply empty.
func newPage(index int, raw string, err error) Page {
	if err != nil {
		return Page{Index: index, IsEmpty: true}
	}
	text := cleanText(raw)
	return Page{Index: index, Text: text, IsEmpty: text == ""}
}

// cleanText normalizes extracted text to NFC, collapses runs of whitespace
// inside lines and keeps at most one blank line between paragraphs.
func cleanText(raw string) string {
	raw = norm.NFC.String(raw)

	var b strings.Builder
	blank := false
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if line == "" {
			blank = b.Len() > 0
			continue
		}
		if b.Len() > 0 {
			if blank {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		blank = false
		b.WriteString(line)
	}
	return b.String()
}
