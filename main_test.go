package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/pagecast/internal/cache"
	"github.com/dgnsrekt/pagecast/internal/document"
	"github.com/dgnsrekt/pagecast/internal/playback"
	"github.com/dgnsrekt/pagecast/internal/synth"
	"github.com/spf13/viper"
)

func newViper(t *testing.T, values map[string]any) *viper.Viper {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestLoadOptionsDefaults(t *testing.T) {
	opts, err := loadOptions(newViper(t, nil))
	if err != nil {
		t.Fatalf("loadOptions failed: %v", err)
	}

	if opts.Engine.Name != "gtts" {
		t.Errorf("engine = %q, want gtts", opts.Engine.Name)
	}
	if opts.Playback.Rate != synth.DefaultRate || !opts.Playback.AutoAdvance || opts.Playback.SkipEmptyPages {
		t.Errorf("unexpected playback defaults: %+v", opts.Playback)
	}
	if opts.Cache.Policy != cache.PolicyWindow || opts.Cache.MaxBytes != 0 {
		t.Errorf("unexpected cache defaults: %+v", opts.Cache)
	}
	if opts.Store != document.StrategyLazy || opts.Lookahead != 1 {
		t.Errorf("store=%q lookahead=%d", opts.Store, opts.Lookahead)
	}
	if opts.Synth.Timeout != synth.DefaultTimeout {
		t.Errorf("synth timeout = %v", opts.Synth.Timeout)
	}
}

func TestLoadOptions(t *testing.T) {
	opts, err := loadOptions(newViper(t, map[string]any{
		"engine":           "piper",
		"rate":             "+20%",
		"auto_advance":     false,
		"skip_empty_pages": true,
		"lookahead":        3,
		"store":            "eager",
		"cache.policy":     "unbounded",
		"cache.max_bytes":  "2MB",
		"cache.compress":   true,
		"synth.timeout":    "5s",
		"piper.model":      "/models/voice.onnx",
	}))
	if err != nil {
		t.Fatalf("loadOptions failed: %v", err)
	}

	if opts.Engine.Name != "piper" || opts.Engine.Piper.Model != "/models/voice.onnx" {
		t.Errorf("engine config = %+v", opts.Engine)
	}
	if opts.Playback.Rate.Percent != 20 || opts.Playback.AutoAdvance || !opts.Playback.SkipEmptyPages {
		t.Errorf("playback config = %+v", opts.Playback)
	}
	if opts.Cache.Policy != cache.PolicyUnbounded || opts.Cache.MaxBytes != 2_000_000 || !opts.Cache.Compress {
		t.Errorf("cache config = %+v", opts.Cache)
	}
	if opts.Cache.Ahead < 3 {
		t.Errorf("cache window ahead = %d, should cover the lookahead", opts.Cache.Ahead)
	}
	if opts.Store != document.StrategyEager {
		t.Errorf("store = %q", opts.Store)
	}
	if opts.Synth.Timeout != 5*time.Second {
		t.Errorf("synth timeout = %v", opts.Synth.Timeout)
	}
}

func TestLoadOptionsErrors(t *testing.T) {
	for name, values := range map[string]map[string]any{
		"rate out of range": {"rate": "+300%"},
		"bad rate":          {"rate": "fast"},
		"bad policy":        {"cache.policy": "lfu"},
		"bad size":          {"cache.max_bytes": "lots"},
		"bad store":         {"store": "sometimes"},
		"negative lookhead": {"lookahead": -1},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := loadOptions(newViper(t, values)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestResolveDocument(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "README.md", filepath.Join("sub", "paper.pdf")} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("hello"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	got, err := resolveDocument(filepath.Join(dir, "notes.txt"))
	if err != nil || got != filepath.Join(dir, "notes.txt") {
		t.Errorf("file: got %q, %v", got, err)
	}

	got, err = resolveDocument(dir)
	if err != nil || filepath.Base(got) != "README.md" {
		t.Errorf("dir: got %q, %v; want README.md", got, err)
	}

	got, err = resolveDocument(filepath.Join(dir, "sub"))
	if err != nil || filepath.Base(got) != "paper.pdf" {
		t.Errorf("subdir: got %q, %v; want paper.pdf", got, err)
	}

	if _, err := resolveDocument(filepath.Join(dir, "missing.md")); err == nil {
		t.Error("expected an error for a missing file")
	}
	if _, err := resolveDocument(t.TempDir()); err == nil {
		t.Error("expected an error for a directory without documents")
	}
}

func TestPrintOutline(t *testing.T) {
	store := document.NewLazyStore("/docs/paper.txt", document.SliceExtractor{
		"Introduction\nwhy this matters",
		"",
		"Methods\nwhat we did",
	})

	var b bytes.Buffer
	if err := printOutline(&b, store, "", 0); err != nil {
		t.Fatalf("printOutline failed: %v", err)
	}
	out := b.String()
	for _, want := range []string{"paper.txt", "3 pages", "   1  Introduction", "   2  (no text)", "   3  Methods"} {
		if !strings.Contains(out, want) {
			t.Errorf("outline missing %q:\n%s", want, out)
		}
	}

	b.Reset()
	if err := printOutline(&b, store, "meth", 0); err != nil {
		t.Fatalf("printOutline failed: %v", err)
	}
	if out := b.String(); !strings.Contains(out, "3  Methods") || strings.Contains(out, "Introduction") {
		t.Errorf("filtered outline:\n%s", out)
	}

	b.Reset()
	if err := printOutline(&b, store, "", 10); err != nil {
		t.Fatalf("printOutline failed: %v", err)
	}
	if !strings.Contains(b.String(), "   1  Int…") {
		t.Errorf("expected truncated titles:\n%s", b.String())
	}
}

// completingSurface finishes every handoff right away.
type completingSurface struct {
	done chan uint64
}

func (s *completingSurface) Play(h playback.Handoff) error {
	go func() { s.done <- h.Instance }()
	return nil
}

func (s *completingSurface) Stop() {}

func TestRunHeadless(t *testing.T) {
	opts, err := loadOptions(newViper(t, map[string]any{"synth.requests_per_minute": 0}))
	if err != nil {
		t.Fatalf("loadOptions failed: %v", err)
	}
	a, err := newApp(opts, synth.NewStubEngine())
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	surface := &completingSurface{done: make(chan uint64, 4)}
	a.ctl.SetSurface(surface)

	store := document.NewLazyStore("book.txt", document.SliceExtractor{
		"the first page of the book",
		"",
		"the last page of the book",
	})
	if _, err := a.ctl.LoadDocument(store); err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	if err := runHeadless(ctx, a.ctl, surface.done, &out); err != nil {
		t.Fatalf("runHeadless failed: %v", err)
	}

	want := "page 1/3\npage 2/3: no text\npage 3/3\nfinished\n"
	if out.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", out.String(), want)
	}
	if snap := a.ctl.Snapshot(); snap.State != playback.StateFinished {
		t.Errorf("state = %v, want finished", snap.State)
	}
}
