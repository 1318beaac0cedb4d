package document

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
)

// maxTitleWidth bounds outline titles so long first lines stay readable.
const maxTitleWidth = 60

// Entry is one line of a document outline.
type Entry struct {
	Page  int
	Title string
}

// Outline returns a title for every page: its first line of text, or an
// empty title for pages without text.
func Outline(s Store) ([]Entry, error) {
	entries := make([]Entry, s.PageCount())
	for i := range entries {
		p, err := s.Page(i)
		if err != nil {
			return nil, err
		}
		entries[i] = Entry{Page: i, Title: title(p)}
	}
	return entries, nil
}

func title(p Page) string {
	if p.IsEmpty {
		return ""
	}
	line, _, _ := strings.Cut(p.Text, "\n")
	return runewidth.Truncate(line, maxTitleWidth, "…")
}

type outlineSource []Entry

func (o outlineSource) String(i int) string { return o[i].Title }
func (o outlineSource) Len() int            { return len(o) }

// FindPages fuzzy-matches query against page titles and returns matching
// entries, best match first.
func FindPages(s Store, query string) ([]Entry, error) {
	outline, err := Outline(s)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	matches := fuzzy.FindFrom(query, outlineSource(outline))
	found := make([]Entry, 0, len(matches))
	for _, m := range matches {
		found = append(found, outline[m.Index])
	}
	return found, nil
}
