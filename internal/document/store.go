package document

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// EagerStore extracts every page when it is created and keeps them in memory.
type EagerStore struct {
	doc   Document
	pages []Page
}

// NewEagerStore extracts all pages from ex and closes it.
func NewEagerStore(path string, ex Extractor) (*EagerStore, error) {
	defer ex.Close() //nolint:errcheck

	total := ex.PageCount()
	pages := make([]Page, total)
	empty := 0
	for i := 0; i < total; i++ {
		raw, err := ex.PageText(i)
		if err != nil {
			log.Debug("page extraction failed", "path", path, "page", i, "err", err)
		}
		pages[i] = newPage(i, raw, err)
		if pages[i].IsEmpty {
			empty++
		}
	}

	log.Debug("document extracted", "path", path, "pages", total, "empty", empty)
	return &EagerStore{
		doc:   Document{Path: path, TotalPages: total},
		pages: pages,
	}, nil
}

// Document implements Store.
func (s *EagerStore) Document() Document { return s.doc }

// PageCount implements Store.
func (s *EagerStore) PageCount() int { return s.doc.TotalPages }

// Page implements Store.
func (s *EagerStore) Page(index int) (Page, error) {
	if err := checkRange(index, s.doc.TotalPages); err != nil {
		return Page{}, err
	}
	return s.pages[index], nil
}

// Close implements Store.
func (s *EagerStore) Close() error { return nil }

// LazyStore extracts a page on first access and memoizes the result.
type LazyStore struct {
	doc Document

	mu   sync.Mutex
	ex   Extractor
	memo map[int]Page
}

// NewLazyStore wraps ex. The store owns ex and closes it on Close.
func NewLazyStore(path string, ex Extractor) *LazyStore {
	return &LazyStore{
		doc:  Document{Path: path, TotalPages: ex.PageCount()},
		ex:   ex,
		memo: make(map[int]Page),
	}
}

// Document implements Store.
func (s *LazyStore) Document() Document { return s.doc }

// PageCount implements Store.
func (s *LazyStore) PageCount() int { return s.doc.TotalPages }

// Page implements Store. The extractor is called at most once per index.
func (s *LazyStore) Page(index int) (Page, error) {
	if err := checkRange(index, s.doc.TotalPages); err != nil {
		return Page{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.memo[index]; ok {
		return p, nil
	}
	if s.ex == nil {
		return Page{}, fmt.Errorf("page %d: store is closed", index)
	}

	raw, err := s.ex.PageText(index)
	if err != nil {
		log.Debug("page extraction failed", "path", s.doc.Path, "page", index, "err", err)
	}
	p := newPage(index, raw, err)
	s.memo[index] = p
	return p, nil
}

// Close implements Store.
func (s *LazyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ex == nil {
		return nil
	}
	err := s.ex.Close()
	s.ex = nil
	return err
}

// Open opens the document at path and wraps it in a store using strategy.
func Open(path string, strategy Strategy) (Store, error) {
	ex, err := OpenExtractor(path)
	if err != nil {
		return nil, err
	}
	if strategy == StrategyEager {
		return NewEagerStore(path, ex)
	}
	return NewLazyStore(path, ex), nil
}
