package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// linesPerPage is used to paginate plain text that has no form feeds.
const linesPerPage = 40

// Extractor is the document-extraction collaborator. PageText may be slow
// (PDF content streams are decoded on demand) and may fail; callers treat a
// failure as an empty page.
type Extractor interface {
	PageCount() int
	PageText(index int) (string, error)
	Close() error
}

// OpenExtractor picks an extractor by file extension.
func OpenExtractor(path string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return openPDF(path)
	case ".md", ".markdown", ".mdown", ".mkd", ".mkdn":
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read document: %w", err)
		}
		return SliceExtractor(splitMarkdown(src)), nil
	default:
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read document: %w", err)
		}
		return SliceExtractor(splitText(string(src))), nil
	}
}

// SliceExtractor serves pages that are already in memory.
type SliceExtractor []string

// PageCount implements Extractor.
func (s SliceExtractor) PageCount() int { return len(s) }

// PageText implements Extractor.
func (s SliceExtractor) PageText(index int) (string, error) {
	if err := checkRange(index, len(s)); err != nil {
		return "", err
	}
	return s[index], nil
}

// Close implements Extractor.
func (s SliceExtractor) Close() error { return nil }

// splitText paginates plain text on form feeds, falling back to fixed-size
// line windows.
func splitText(src string) []string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	if strings.Contains(src, "\f") {
		return strings.Split(src, "\f")
	}

	lines := strings.Split(strings.TrimRight(src, "\n"), "\n")
	pages := make([]string, 0, len(lines)/linesPerPage+1)
	for start := 0; start < len(lines); start += linesPerPage {
		end := min(start+linesPerPage, len(lines))
		pages = append(pages, strings.Join(lines[start:end], "\n"))
	}
	if len(pages) == 0 {
		pages = append(pages, "")
	}
	return pages
}
