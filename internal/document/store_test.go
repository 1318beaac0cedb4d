package document

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// countingExtractor records how many times each page was extracted.
type countingExtractor struct {
	mu     sync.Mutex
	pages  []string
	fail   map[int]bool
	calls  map[int]int
	closed bool
}

func newCountingExtractor(pages ...string) *countingExtractor {
	return &countingExtractor{pages: pages, fail: map[int]bool{}, calls: map[int]int{}}
}

func (e *countingExtractor) PageCount() int { return len(e.pages) }

func (e *countingExtractor) PageText(i int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[i]++
	if e.fail[i] {
		return "", errors.New("broken page")
	}
	return e.pages[i], nil
}

func (e *countingExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func TestLazyStore_ExtractsOncePerIndex(t *testing.T) {
	ex := newCountingExtractor("first page", "second page")
	s := NewLazyStore("doc.txt", ex)

	for i := 0; i < 3; i++ {
		p, err := s.Page(1)
		if err != nil {
			t.Fatalf("Page(1) failed: %v", err)
		}
		if p.Text != "second page" {
			t.Errorf("Page(1).Text = %q, want %q", p.Text, "second page")
		}
	}

	if ex.calls[1] != 1 {
		t.Errorf("extractor called %d times for page 1, want 1", ex.calls[1])
	}
	if ex.calls[0] != 0 {
		t.Errorf("page 0 extracted without being requested")
	}
}

func TestLazyStore_ConcurrentAccess(t *testing.T) {
	ex := newCountingExtractor("a page", "b page", "c page")
	s := NewLazyStore("doc.txt", ex)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				if _, err := s.Page(i); err != nil {
					t.Errorf("Page(%d) failed: %v", i, err)
				}
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		if ex.calls[i] != 1 {
			t.Errorf("page %d extracted %d times, want 1", i, ex.calls[i])
		}
	}
}

func TestStores_OutOfRange(t *testing.T) {
	eager, err := NewEagerStore("doc.txt", newCountingExtractor("only"))
	if err != nil {
		t.Fatalf("NewEagerStore failed: %v", err)
	}
	lazy := NewLazyStore("doc.txt", newCountingExtractor("only"))

	for _, s := range []Store{eager, lazy} {
		for _, idx := range []int{-1, 1, 100} {
			if _, err := s.Page(idx); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("%T.Page(%d) error = %v, want ErrOutOfRange", s, idx, err)
			}
		}
	}
}

func TestEagerStore_ExtractsAllAndCloses(t *testing.T) {
	ex := newCountingExtractor("one", "   ", "three")
	ex.fail[2] = true

	s, err := NewEagerStore("doc.txt", ex)
	if err != nil {
		t.Fatalf("NewEagerStore failed: %v", err)
	}
	if !ex.closed {
		t.Error("extractor not closed after eager extraction")
	}
	if s.PageCount() != 3 {
		t.Fatalf("PageCount = %d, want 3", s.PageCount())
	}

	tests := []struct {
		index int
		empty bool
	}{
		{0, false},
		{1, true}, // whitespace only
		{2, true}, // extraction failure
	}
	for _, tt := range tests {
		p, err := s.Page(tt.index)
		if err != nil {
			t.Fatalf("Page(%d) failed: %v", tt.index, err)
		}
		if p.IsEmpty != tt.empty {
			t.Errorf("Page(%d).IsEmpty = %v, want %v", tt.index, p.IsEmpty, tt.empty)
		}
		if p.Index != tt.index {
			t.Errorf("Page(%d).Index = %d", tt.index, p.Index)
		}
	}

	for i := range ex.pages {
		if ex.calls[i] != 1 {
			t.Errorf("page %d extracted %d times, want 1", i, ex.calls[i])
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace", " \n\t \n", ""},
		{"collapse spaces", "hello    world\t!", "hello world !"},
		{"paragraphs", "one\n\n\n\ntwo\nthree", "one\n\ntwo\nthree"},
		{"nfc", "café", "café"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanText(tt.in); got != tt.want {
				t.Errorf("cleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{"": StrategyLazy, "lazy": StrategyLazy, "EAGER": StrategyEager} {
		got, err := ParseStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStrategy("sometimes"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestOpen_PlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.txt")
	if err := os.WriteFile(path, []byte("page one\fpage two\f\fpage four"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, strategy := range []Strategy{StrategyEager, StrategyLazy} {
		s, err := Open(path, strategy)
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", strategy, err)
		}
		if s.PageCount() != 4 {
			t.Errorf("%s: PageCount = %d, want 4", strategy, s.PageCount())
		}
		p, _ := s.Page(2)
		if !p.IsEmpty {
			t.Errorf("%s: page 2 should be empty", strategy)
		}
		p, _ = s.Page(3)
		if p.Text != "page four" {
			t.Errorf("%s: page 3 = %q", strategy, p.Text)
		}
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	}
}
