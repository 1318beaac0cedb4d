package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/pagecast/internal/cache"
	"github.com/dgnsrekt/pagecast/internal/document"
	"github.com/dgnsrekt/pagecast/internal/prefetch"
	"github.com/dgnsrekt/pagecast/internal/synth"
)

var ctx = context.Background()

// recordingSurface records handoffs instead of playing them.
type recordingSurface struct {
	mu       sync.Mutex
	handoffs []Handoff
	stops    int
	fail     error
}

func (s *recordingSurface) Play(h Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.handoffs = append(s.handoffs, h)
	return nil
}

func (s *recordingSurface) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *recordingSurface) last() Handoff {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.handoffs) == 0 {
		return Handoff{}
	}
	return s.handoffs[len(s.handoffs)-1]
}

func (s *recordingSurface) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handoffs)
}

type harness struct {
	ctl     *Controller
	stub    *synth.StubEngine
	cache   *cache.SpeechCache
	sched   *prefetch.Scheduler
	surface *recordingSurface
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	c, err := cache.New(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	stub := synth.NewStubEngine()
	opts := synth.DefaultOptions()
	opts.RequestsPerMinute = 0
	client := synth.New(stub, opts)
	sched := prefetch.New(client, c, prefetch.Options{Lookahead: 1})

	h := &harness{
		ctl:     New(c, sched, cfg),
		stub:    stub,
		cache:   c,
		sched:   sched,
		surface: &recordingSurface{},
	}
	h.ctl.SetSurface(h.surface)

	t.Cleanup(func() {
		stub.Release()
		sched.Close()
		_ = h.ctl.Close()
		_ = c.Close()
	})
	return h
}

func (h *harness) load(t *testing.T, pages ...string) {
	t.Helper()
	store := document.NewLazyStore("doc.txt", document.SliceExtractor(pages))
	snap, err := h.ctl.LoadDocument(store)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if snap.State != StateReady || snap.Page != 0 {
		t.Fatalf("after load: state=%v page=%d", snap.State, snap.Page)
	}
}

func pageTexts(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = "the text of page number " + string(rune('a'+i))
	}
	return texts
}

func TestController_CommandsNeedDocument(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if _, err := h.ctl.RequestAudio(ctx); !errors.Is(err, ErrNoDocument) {
		t.Errorf("RequestAudio: expected ErrNoDocument, got %v", err)
	}
	if _, err := h.ctl.NavigateNext(ctx); !errors.Is(err, ErrNoDocument) {
		t.Errorf("NavigateNext: expected ErrNoDocument, got %v", err)
	}
	if _, err := h.ctl.JumpTo(ctx, 0); !errors.Is(err, ErrNoDocument) {
		t.Errorf("JumpTo: expected ErrNoDocument, got %v", err)
	}
	if snap := h.ctl.Snapshot(); snap.State != StateIdle || snap.Loaded {
		t.Errorf("expected idle unloaded snapshot, got %+v", snap)
	}
}

func TestController_RequestAudioPlays(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(3)...)

	snap, err := h.ctl.RequestAudio(ctx)
	if err != nil {
		t.Fatalf("RequestAudio failed: %v", err)
	}
	if snap.State != StatePlaying {
		t.Errorf("state = %v, want playing", snap.State)
	}
	got := h.surface.last()
	if got.Page != 0 || got.Instance != snap.Instance || len(got.Audio) == 0 {
		t.Errorf("unexpected handoff: page=%d instance=%d", got.Page, got.Instance)
	}
	if snap.Text != pageTexts(3)[0] {
		t.Errorf("snapshot text = %q", snap.Text)
	}

	h.sched.Wait()
	if !h.cache.Contains(cache.Key{Page: 1, Rate: synth.DefaultRate}) {
		t.Error("next page should be prefetched")
	}
}

func TestController_NextThenPrevReturns(t *testing.T) {
	const n = 4
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(n)...)

	for i := 0; i < n; i++ {
		if _, err := h.ctl.JumpTo(ctx, i); err != nil {
			t.Fatalf("JumpTo(%d) failed: %v", i, err)
		}
		next, err := h.ctl.NavigateNext(ctx)
		if err != nil {
			t.Fatalf("NavigateNext from %d failed: %v", i, err)
		}
		if want := min(i+1, n-1); next.Page != want {
			t.Errorf("next from %d: page = %d, want %d", i, next.Page, want)
		}
		prev, err := h.ctl.NavigatePrev(ctx)
		if err != nil {
			t.Fatalf("NavigatePrev failed: %v", err)
		}
		want := i
		if i == n-1 {
			want = n - 2 // next was a no-op at the last page
		}
		if prev.Page != want {
			t.Errorf("next+prev from %d: page = %d, want %d", i, prev.Page, want)
		}
	}
}

func TestController_BoundariesAreNoops(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(2)...)

	snap, err := h.ctl.NavigatePrev(ctx)
	if err != nil || snap.Page != 0 {
		t.Errorf("prev at first page: page=%d err=%v", snap.Page, err)
	}
	if h.surface.count() != 0 {
		t.Error("no-op navigation should not request audio")
	}

	_, _ = h.ctl.NavigateNext(ctx)
	snap, err = h.ctl.NavigateNext(ctx)
	if err != nil || snap.Page != 1 {
		t.Errorf("next at last page: page=%d err=%v", snap.Page, err)
	}
}

func TestController_JumpOutOfRange(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(3)...)

	for _, i := range []int{-1, 3, 100} {
		snap, err := h.ctl.JumpTo(ctx, i)
		if !errors.Is(err, document.ErrOutOfRange) {
			t.Errorf("JumpTo(%d): expected ErrOutOfRange, got %v", i, err)
		}
		if snap.Page != 0 {
			t.Errorf("JumpTo(%d) moved to page %d", i, snap.Page)
		}
	}
}

func TestController_SameKeySynthesizedOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(2)...)

	for i := 0; i < 3; i++ {
		if _, err := h.ctl.RequestAudio(ctx); err != nil {
			t.Fatalf("RequestAudio failed: %v", err)
		}
	}
	h.sched.Wait()

	if got := h.stub.Calls(pageTexts(2)[0]); got != 1 {
		t.Errorf("page 0 synthesized %d times, want 1", got)
	}
	if got := h.stub.Calls(pageTexts(2)[1]); got != 1 {
		t.Errorf("page 1 synthesized %d times, want 1", got)
	}
	if h.surface.count() != 3 {
		t.Errorf("handoffs = %d, want 3", h.surface.count())
	}
}

func TestController_DuplicateCompletionAdvancesOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(4)...)

	snap, _ := h.ctl.RequestAudio(ctx)
	instance := snap.Instance

	snap, err := h.ctl.PlaybackCompleted(ctx, instance)
	if err != nil {
		t.Fatalf("PlaybackCompleted failed: %v", err)
	}
	if snap.Page != 1 {
		t.Fatalf("page = %d, want 1", snap.Page)
	}

	snap, _ = h.ctl.PlaybackCompleted(ctx, instance)
	if snap.Page != 1 {
		t.Errorf("duplicate completion advanced to page %d", snap.Page)
	}
}

func TestController_CompletionAlreadyConsumed(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(3)...)
	h.ctl.SetAutoAdvance(false)

	snap, _ := h.ctl.RequestAudio(ctx)
	_, _ = h.ctl.PlaybackCompleted(ctx, snap.Instance)

	// turning auto-advance back on must not revive the consumed signal
	h.ctl.SetAutoAdvance(true)
	snap, _ = h.ctl.PlaybackCompleted(ctx, snap.Instance)
	if snap.Page != 0 {
		t.Errorf("consumed completion advanced to page %d", snap.Page)
	}
}

func TestController_AutoAdvanceOff(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(3)...)
	h.ctl.SetAutoAdvance(false)

	snap, _ := h.ctl.RequestAudio(ctx)
	for i := 0; i < 5; i++ {
		snap, _ = h.ctl.PlaybackCompleted(ctx, snap.Instance)
	}
	if snap.Page != 0 {
		t.Errorf("page = %d, want 0", snap.Page)
	}
	if snap.State != StatePlaying {
		t.Errorf("state = %v, want playing", snap.State)
	}
}

func TestController_StaleInstanceIgnored(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(3)...)

	first, _ := h.ctl.RequestAudio(ctx)
	second, _ := h.ctl.RequestAudio(ctx) // replay bumps the instance

	snap, _ := h.ctl.PlaybackCompleted(ctx, first.Instance)
	if snap.Page != 0 {
		t.Errorf("old instance advanced to page %d", snap.Page)
	}
	snap, _ = h.ctl.PlaybackCompleted(ctx, second.Instance)
	if snap.Page != 1 {
		t.Errorf("current instance: page = %d, want 1", snap.Page)
	}
}

func TestController_FinishedAtLastPage(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(2)...)

	snap, _ := h.ctl.RequestAudio(ctx)
	snap, _ = h.ctl.PlaybackCompleted(ctx, snap.Instance)
	if snap.Page != 1 || snap.State != StatePlaying {
		t.Fatalf("page=%d state=%v", snap.Page, snap.State)
	}
	snap, _ = h.ctl.PlaybackCompleted(ctx, snap.Instance)
	if snap.State != StateFinished || snap.Page != 1 {
		t.Errorf("expected finished on page 1, got state=%v page=%d", snap.State, snap.Page)
	}

	// navigation still works after finishing
	snap, err := h.ctl.NavigatePrev(ctx)
	if err != nil || snap.Page != 0 || snap.State != StatePlaying {
		t.Errorf("prev after finish: page=%d state=%v err=%v", snap.Page, snap.State, err)
	}
}

func TestController_EmptyPageScenario(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	texts := []string{"first page with words", "", "third page with words"}
	h.load(t, texts...)

	snap, err := h.ctl.RequestAudio(ctx)
	if err != nil || snap.State != StatePlaying {
		t.Fatalf("page 0: state=%v err=%v", snap.State, err)
	}
	h.sched.Wait()
	if h.stub.TotalCalls() != 1 {
		t.Fatalf("empty page 1 should not be synthesized, calls = %d", h.stub.TotalCalls())
	}

	snap, err = h.ctl.NavigateNext(ctx)
	if err != nil {
		t.Fatalf("NavigateNext failed: %v", err)
	}
	if snap.Page != 1 || !snap.NoAudio || snap.State != StateReady {
		t.Errorf("page 1: page=%d noAudio=%v state=%v", snap.Page, snap.NoAudio, snap.State)
	}
	h.sched.Wait()
	if h.stub.Calls(texts[2]) != 1 {
		t.Fatalf("page 2 should be prefetched, calls = %d", h.stub.Calls(texts[2]))
	}

	calls := h.stub.TotalCalls()
	snap, err = h.ctl.NavigateNext(ctx)
	if err != nil || snap.Page != 2 || snap.State != StatePlaying {
		t.Fatalf("page 2: page=%d state=%v err=%v", snap.Page, snap.State, err)
	}
	if h.stub.TotalCalls() != calls {
		t.Errorf("page 2 should be a cache hit, calls went %d -> %d", calls, h.stub.TotalCalls())
	}
}

func TestController_ChangeRateForcesFreshSynthesis(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	texts := pageTexts(3)
	h.load(t, texts...)

	_, _ = h.ctl.RequestAudio(ctx)
	h.sched.Wait()

	fast := synth.Rate{Percent: 30}
	if _, err := h.ctl.ChangeRate(fast); err != nil {
		t.Fatalf("ChangeRate failed: %v", err)
	}
	if !h.cache.Contains(cache.Key{Page: 1, Rate: synth.DefaultRate}) {
		t.Fatal("old-rate prefetch should still be cached")
	}
	if _, ok := h.cache.Get(cache.Key{Page: 1, Rate: fast}); ok {
		t.Fatal("new rate should miss")
	}

	snap, err := h.ctl.NavigateNext(ctx)
	if err != nil {
		t.Fatalf("NavigateNext failed: %v", err)
	}
	if got := h.stub.Calls(texts[1]); got != 2 {
		t.Errorf("page 1 synthesized %d times, want 2 (one per rate)", got)
	}
	if h.surface.last().Rate != fast || snap.Rate != fast {
		t.Errorf("handoff rate = %v, want %v", h.surface.last().Rate, fast)
	}
}

func TestController_ChangeRateDuringPrefetch(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	texts := pageTexts(3)
	h.load(t, texts...)
	if err := h.cache.Put(cache.Key{Page: 0, Rate: synth.DefaultRate}, synth.StubAudio(texts[0], synth.DefaultRate)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	h.stub.Hold()
	if _, err := h.ctl.RequestAudio(ctx); err != nil {
		t.Fatalf("RequestAudio failed: %v", err)
	}
	old := cache.Key{Page: 1, Rate: synth.DefaultRate}
	waitFor(t, func() bool { return h.sched.InFlight(old) })

	fast := synth.Rate{Percent: 30}
	if _, err := h.ctl.ChangeRate(fast); err != nil {
		t.Fatalf("ChangeRate failed: %v", err)
	}
	h.stub.Release()
	h.sched.Wait()

	if !h.cache.Contains(old) {
		t.Error("prefetch should land under the rate it started with")
	}
	if h.cache.Contains(cache.Key{Page: 1, Rate: fast}) {
		t.Error("old-rate audio must not be stored under the new rate")
	}

	if _, err := h.ctl.NavigateNext(ctx); err != nil {
		t.Fatalf("NavigateNext failed: %v", err)
	}
	if got := h.stub.Calls(texts[1]); got != 2 {
		t.Errorf("page 1 synthesized %d times, want 2 (one per rate)", got)
	}
	if h.surface.last().Rate != fast {
		t.Errorf("handoff rate = %v, want %v", h.surface.last().Rate, fast)
	}
}

func TestController_ChangeRateNotRetroactive(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(2)...)

	snap, _ := h.ctl.RequestAudio(ctx)
	before := h.surface.count()

	snap, err := h.ctl.ChangeRate(synth.Rate{Percent: -20})
	if err != nil {
		t.Fatalf("ChangeRate failed: %v", err)
	}
	if h.surface.count() != before || snap.State != StatePlaying {
		t.Error("rate change should not restart playback")
	}

	if _, err := h.ctl.ChangeRate(synth.Rate{Percent: 500}); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
}

func TestController_SynthesisFailureStaysReady(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(2)...)
	h.stub.FailWith(func(string) error { return errors.New("service unavailable") })

	snap, err := h.ctl.RequestAudio(ctx)
	if !errors.Is(err, synth.ErrSynthesisFailed) {
		t.Fatalf("expected ErrSynthesisFailed, got %v", err)
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Op != "request" || perr.Page != 0 {
		t.Errorf("expected *Error for request page 0, got %#v", err)
	}
	if snap.State != StateReady || snap.Err == nil {
		t.Errorf("state=%v err=%v, want ready with error", snap.State, snap.Err)
	}

	// still navigable, and a retry succeeds
	h.stub.FailWith(nil)
	snap, err = h.ctl.RequestAudio(ctx)
	if err != nil || snap.State != StatePlaying || snap.Err != nil {
		t.Errorf("retry: state=%v err=%v lastErr=%v", snap.State, err, snap.Err)
	}
}

func TestController_TrivialTextHasNoAudio(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, "ok", "a longer second page")

	snap, err := h.ctl.RequestAudio(ctx)
	if err != nil {
		t.Fatalf("RequestAudio failed: %v", err)
	}
	if !snap.NoAudio || snap.State != StateReady {
		t.Errorf("noAudio=%v state=%v", snap.NoAudio, snap.State)
	}
	if h.stub.Calls("ok") != 0 {
		t.Error("trivial text reached the engine")
	}
}

func TestController_SkipEmptyPages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipEmptyPages = true
	h := newHarness(t, cfg)
	h.load(t, "first page with words", "", "  ", "fourth page with words")

	snap, _ := h.ctl.RequestAudio(ctx)
	snap, err := h.ctl.PlaybackCompleted(ctx, snap.Instance)
	if err != nil {
		t.Fatalf("PlaybackCompleted failed: %v", err)
	}
	if snap.Page != 3 || snap.State != StatePlaying {
		t.Errorf("page=%d state=%v, want playing page 3", snap.Page, snap.State)
	}
}

func TestController_NoSkipByDefault(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, "first page with words", "", "third page with words")

	snap, _ := h.ctl.RequestAudio(ctx)
	snap, _ = h.ctl.PlaybackCompleted(ctx, snap.Instance)
	if snap.Page != 1 || !snap.NoAudio {
		t.Errorf("page=%d noAudio=%v, want empty page 1", snap.Page, snap.NoAudio)
	}
}

func TestController_StaleForegroundRequest(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	texts := pageTexts(2)
	h.load(t, texts...)
	_ = h.cache.Put(cache.Key{Page: 1, Rate: synth.DefaultRate}, synth.StubAudio(texts[1], synth.DefaultRate))
	h.stub.Hold()

	errc := make(chan error)
	go func() {
		_, err := h.ctl.RequestAudio(ctx)
		errc <- err
	}()
	waitFor(t, func() bool { return h.ctl.Snapshot().Pending })

	snap, err := h.ctl.JumpTo(ctx, 1)
	if err != nil || snap.State != StatePlaying || snap.Page != 1 {
		t.Fatalf("jump: page=%d state=%v err=%v", snap.Page, snap.State, err)
	}

	h.stub.Release()
	if err := <-errc; !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}

	snap = h.ctl.Snapshot()
	if snap.Page != 1 || snap.State != StatePlaying {
		t.Errorf("stale result changed state: page=%d state=%v", snap.Page, snap.State)
	}
	if h.surface.last().Page != 1 {
		t.Errorf("stale audio reached the surface")
	}
	if !h.cache.Contains(cache.Key{Page: 0, Rate: synth.DefaultRate}) {
		t.Error("stale result should still be cached")
	}
}

func TestController_LoadDocumentResets(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(3)...)

	_, _ = h.ctl.JumpTo(ctx, 2)
	_, _ = h.ctl.ChangeRate(synth.Rate{Percent: 50})
	h.ctl.SetAutoAdvance(false)
	h.sched.Wait()

	h.load(t, "new document page")
	snap := h.ctl.Snapshot()
	if snap.Page != 0 || snap.Rate != synth.DefaultRate || !snap.AutoAdvance || snap.State != StateReady {
		t.Errorf("session not reset: %+v", snap)
	}
	if snap.TotalPages != 1 {
		t.Errorf("total pages = %d, want 1", snap.TotalPages)
	}
	if h.cache.Stats().Entries != 0 {
		t.Error("cache should be cleared on load")
	}
}

func TestController_Unload(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(2)...)
	_, _ = h.ctl.RequestAudio(ctx)

	snap := h.ctl.Unload()
	if snap.Loaded || snap.State != StateIdle {
		t.Errorf("expected idle after unload, got %+v", snap)
	}
}

func TestController_SurfaceFailure(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.load(t, pageTexts(2)...)
	h.surface.fail = errors.New("no audio device")

	snap, err := h.ctl.RequestAudio(ctx)
	if err != nil {
		t.Fatalf("RequestAudio failed: %v", err)
	}
	if snap.State != StateReady || snap.Err == nil {
		t.Errorf("state=%v err=%v, want ready with error", snap.State, snap.Err)
	}
}

func TestController_Find(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	if _, err := h.ctl.Find("intro"); !errors.Is(err, ErrNoDocument) {
		t.Errorf("expected ErrNoDocument before load, got %v", err)
	}

	h.load(t, "Introduction\nsome words", "Methods\nmore words", "Results\nnumbers")
	found, err := h.ctl.Find("meth")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(found) == 0 || found[0].Page != 1 {
		t.Errorf("expected page 1 first, got %+v", found)
	}
}

func TestController_EmptyDocumentRejected(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	snap, err := h.ctl.LoadDocument(document.NewLazyStore("empty.pdf", document.SliceExtractor(nil)))
	if !errors.Is(err, document.ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	if snap.Loaded || snap.State != StateIdle {
		t.Errorf("empty document should not load, got %+v", snap)
	}
	if _, err := h.ctl.NavigateNext(ctx); !errors.Is(err, ErrNoDocument) {
		t.Errorf("NavigateNext: expected ErrNoDocument, got %v", err)
	}

	h.load(t, pageTexts(2)...)
	if _, err := h.ctl.LoadDocument(document.NewLazyStore("empty.pdf", document.SliceExtractor(nil))); !errors.Is(err, document.ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	if snap := h.ctl.Snapshot(); !snap.Loaded || snap.TotalPages != 2 || snap.Page != 0 {
		t.Errorf("previous document should stay loaded, got %+v", snap)
	}
}

// gatedStore blocks extraction of every page but the first until open is
// closed.
type gatedStore struct {
	texts []string
	open  chan struct{}
}

func (s *gatedStore) Document() document.Document {
	return document.Document{Path: "gated.txt", TotalPages: len(s.texts)}
}

func (s *gatedStore) PageCount() int { return len(s.texts) }

func (s *gatedStore) Page(index int) (document.Page, error) {
	if index < 0 || index >= len(s.texts) {
		return document.Page{}, document.ErrOutOfRange
	}
	if index > 0 {
		<-s.open
	}
	return document.Page{Index: index, Text: s.texts[index]}, nil
}

func (s *gatedStore) Close() error { return nil }

func TestController_FindDoesNotBlockCommands(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	store := &gatedStore{texts: []string{"Introduction", "Methods", "Results"}, open: make(chan struct{})}
	if _, err := h.ctl.LoadDocument(store); err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}

	found := make(chan []document.Entry, 1)
	go func() {
		entries, _ := h.ctl.Find("meth")
		found <- entries
	}()

	done := make(chan struct{})
	go func() {
		h.ctl.SetAutoAdvance(true)
		_ = h.ctl.Snapshot()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("commands blocked while Find was extracting titles")
	}

	close(store.open)
	select {
	case entries := <-found:
		if len(entries) == 0 || entries[0].Page != 1 {
			t.Errorf("expected page 1 first, got %+v", entries)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Find did not return")
	}
}

func TestStateMachine_Transitions(t *testing.T) {
	sm := newStateMachine()
	if sm.transition(StatePlaying) {
		t.Error("idle -> playing should be rejected")
	}
	for _, to := range []State{StateReady, StatePlaying, StateAdvancing, StateReady, StatePlaying, StateFinished} {
		if !sm.transition(to) {
			t.Fatalf("transition to %v rejected from %v", to, sm.current)
		}
	}
	if sm.transition(StatePlaying) {
		t.Error("finished -> playing should be rejected")
	}
	sm.reset()
	if sm.current != StateIdle {
		t.Errorf("reset left state %v", sm.current)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
