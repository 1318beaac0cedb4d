package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/pagecast/internal/cache"
	"github.com/dgnsrekt/pagecast/internal/document"
	"github.com/dgnsrekt/pagecast/internal/prefetch"
	"github.com/dgnsrekt/pagecast/internal/synth"
)

// Handoff is the audio passed to the surface for one playback instance.
type Handoff struct {
	Instance uint64
	Page     int
	Rate     synth.Rate
	Audio    []byte
}

// Surface plays audio. It reports the end of each handoff by calling
// PlaybackCompleted with the handoff's instance, exactly once and never from
// within Play.
type Surface interface {
	Play(h Handoff) error
	Stop()
}

// SpeechCache is the cache the controller reads and maintains.
type SpeechCache interface {
	Get(key cache.Key) (cache.Entry, bool)
	Advance(page int)
	InvalidateAll()
	Stats() cache.Stats
}

// Prefetcher synthesizes audio in the foreground and background.
type Prefetcher interface {
	Fetch(ctx context.Context, page int, text string, r synth.Rate) ([]byte, error)
	Prefetch(pages prefetch.Pages, current int, r synth.Rate)
	Reset()
}

// Config holds session defaults and policies.
type Config struct {
	Rate        synth.Rate
	AutoAdvance bool
	// SkipEmptyPages makes auto-advance pass over pages without text.
	SkipEmptyPages bool
	Logger         *log.Logger
}

// DefaultConfig returns normal speed with auto-advance on.
func DefaultConfig() Config {
	return Config{Rate: synth.DefaultRate, AutoAdvance: true}
}

// Controller serializes user commands and completion signals against one
// Session. Its lock is released while foreground synthesis is awaited, so
// navigation stays responsive; a request overtaken by a newer command is
// reported as ErrStale.
type Controller struct {
	cache   SpeechCache
	sched   Prefetcher
	cfg     Config
	logger  *log.Logger
	surface Surface

	mu      sync.Mutex
	store   document.Store
	sm      *stateMachine
	session Session
	gen     uint64 // bumped by every command that replaces the current request
	pending bool
}

// New creates a controller with no document loaded.
func New(c SpeechCache, sched Prefetcher, cfg Config) *Controller {
	ctl := &Controller{
		cache:   c,
		sched:   sched,
		cfg:     cfg,
		logger:  cfg.Logger,
		sm:      newStateMachine(),
		session: newSession(cfg.Rate, cfg.AutoAdvance),
	}
	if ctl.logger == nil {
		ctl.logger = log.Default()
	}
	ctl.sm.onEnter = func(from, to State) {
		ctl.session.State = to
		ctl.logger.Debug("state", "from", from, "to", to, "page", ctl.session.CurrentPage)
	}
	return ctl
}

// SetSurface attaches the playback surface. A nil surface discards audio.
func (c *Controller) SetSurface(s Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface = s
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// LoadDocument replaces the current document with store and resets the
// session, the cache and pending prefetch work. The controller takes
// ownership of store and closes it when it is replaced. A store without
// pages is rejected with document.ErrEmptyDocument and the current document
// stays loaded.
func (c *Controller) LoadDocument(store document.Store) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if store == nil {
		return c.snapshot(), ErrNoDocument
	}
	if store.PageCount() < 1 {
		return c.snapshot(), document.ErrEmptyDocument
	}

	c.unloadLocked()
	c.store = store
	c.sm.transition(StateReady)

	doc := store.Document()
	c.logger.Info("document loaded", "path", doc.Path, "pages", doc.TotalPages)
	return c.snapshot(), nil
}

// Unload drops the current document and returns to Idle.
func (c *Controller) Unload() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unloadLocked()
	return c.snapshot()
}

func (c *Controller) unloadLocked() {
	c.stopSurface()
	// reset the scheduler before clearing the cache so no result from the
	// old document lands afterwards
	c.sched.Reset()
	c.cache.InvalidateAll()

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("failed to close document", "err", err)
		}
		c.store = nil
	}

	c.gen++
	c.pending = false
	c.session = newSession(c.cfg.Rate, c.cfg.AutoAdvance)
	c.sm.reset()
}

// RequestAudio makes audio for the current page available and hands it to
// the surface. A cache miss is synthesized in the foreground, joining any
// prefetch already running for the same page and rate. On failure the
// controller stays Ready with the error recorded. Empty pages produce no
// audio and no synthesis. Once the outcome is known the following pages are
// prefetched.
func (c *Controller) RequestAudio(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.store == nil {
		defer c.mu.Unlock()
		return c.snapshot(), ErrNoDocument
	}

	index, r := c.session.CurrentPage, c.session.Rate
	page, err := c.store.Page(index)
	if err != nil {
		defer c.mu.Unlock()
		return c.snapshot(), &Error{Op: "request", Page: index, Err: err}
	}

	if c.sm.current != StateReady {
		c.stopSurface()
		c.sm.transition(StateReady)
	}
	c.gen++
	gen := c.gen
	c.pending = false
	c.session.LastError = nil
	c.session.NoAudio = false

	if page.IsEmpty {
		defer c.mu.Unlock()
		c.logger.Debug("page has no text", "page", index)
		c.session.NoAudio = true
		c.prefetchLocked()
		return c.snapshot(), nil
	}

	if e, ok := c.cache.Get(cache.Key{Page: index, Rate: r}); ok {
		defer c.mu.Unlock()
		c.play(index, r, e.Audio)
		c.prefetchLocked()
		return c.snapshot(), nil
	}

	c.pending = true
	c.mu.Unlock()

	audio, err := c.sched.Fetch(ctx, index, page.Text, r)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		c.logger.Debug("discarding superseded request", "page", index, "rate", r)
		return c.snapshot(), &Error{Op: "request", Page: index, Err: ErrStale}
	}
	c.pending = false

	if err != nil {
		c.logger.Warn("foreground synthesis failed", "page", index, "rate", r, "err", err)
		c.session.LastError = err
		return c.snapshot(), &Error{Op: "request", Page: index, Err: err}
	}
	if audio == nil {
		c.session.NoAudio = true
		c.prefetchLocked()
		return c.snapshot(), nil
	}

	c.play(index, r, audio)
	c.prefetchLocked()
	return c.snapshot(), nil
}

// play hands audio to the surface as a new playback instance.
func (c *Controller) play(index int, r synth.Rate, audio []byte) {
	c.session.Instance++
	h := Handoff{Instance: c.session.Instance, Page: index, Rate: r, Audio: audio}

	if c.surface != nil {
		if err := c.surface.Play(h); err != nil {
			c.logger.Warn("playback failed", "page", index, "err", err)
			c.session.LastError = fmt.Errorf("playback: %w", err)
			return
		}
	}
	c.sm.transition(StatePlaying)
}

func (c *Controller) prefetchLocked() {
	c.sched.Prefetch(c.store, c.session.CurrentPage, c.session.Rate)
}

func (c *Controller) stopSurface() {
	if c.surface != nil {
		c.surface.Stop()
	}
}

// NavigateNext moves to the next page and requests its audio. It is a no-op
// on the last page.
func (c *Controller) NavigateNext(ctx context.Context) (Snapshot, error) {
	return c.step(ctx, "next", 1)
}

// NavigatePrev moves to the previous page and requests its audio. It is a
// no-op on the first page.
func (c *Controller) NavigatePrev(ctx context.Context) (Snapshot, error) {
	return c.step(ctx, "prev", -1)
}

func (c *Controller) step(ctx context.Context, op string, delta int) (Snapshot, error) {
	c.mu.Lock()
	if c.store == nil {
		defer c.mu.Unlock()
		return c.snapshot(), ErrNoDocument
	}

	target := c.session.CurrentPage + delta
	target = max(target, 0)
	target = min(target, c.store.PageCount()-1)
	if target == c.session.CurrentPage {
		defer c.mu.Unlock()
		return c.snapshot(), nil
	}

	c.logger.Debug("navigate", "op", op, "to", target)
	c.moveLocked(target)
	c.mu.Unlock()

	return c.RequestAudio(ctx)
}

// JumpTo moves to page index and requests its audio.
func (c *Controller) JumpTo(ctx context.Context, index int) (Snapshot, error) {
	c.mu.Lock()
	if c.store == nil {
		defer c.mu.Unlock()
		return c.snapshot(), ErrNoDocument
	}
	if index < 0 || index >= c.store.PageCount() {
		defer c.mu.Unlock()
		return c.snapshot(), &Error{Op: "jump", Page: index, Err: document.ErrOutOfRange}
	}

	c.moveLocked(index)
	c.mu.Unlock()

	return c.RequestAudio(ctx)
}

// moveLocked passes through Advancing to Ready on page target.
func (c *Controller) moveLocked(target int) {
	c.stopSurface()
	c.sm.transition(StateAdvancing)
	c.session.CurrentPage = target
	c.session.NoAudio = false
	c.gen++
	c.pending = false
	c.cache.Advance(target)
	c.sm.transition(StateReady)
}

// PlaybackCompleted handles the end of playback instance. Signals for any
// instance other than the one currently playing, or repeated signals for it,
// are ignored. With auto-advance on, the next page is requested; at the last
// page the session is Finished.
func (c *Controller) PlaybackCompleted(ctx context.Context, instance uint64) (Snapshot, error) {
	c.mu.Lock()

	s := &c.session
	if c.store == nil || c.sm.current != StatePlaying || instance != s.Instance || instance == s.consumed {
		c.logger.Debug("ignoring completion", "instance", instance, "current", s.Instance, "state", c.sm.current)
		defer c.mu.Unlock()
		return c.snapshot(), nil
	}
	s.consumed = instance

	if !s.AutoAdvance {
		defer c.mu.Unlock()
		return c.snapshot(), nil
	}

	last := c.store.PageCount() - 1
	if s.CurrentPage >= last {
		defer c.mu.Unlock()
		c.sm.transition(StateFinished)
		c.logger.Info("finished document", "pages", last+1)
		return c.snapshot(), nil
	}

	target := s.CurrentPage + 1
	if c.cfg.SkipEmptyPages {
		target = c.nextReadable(target, last)
	}
	c.moveLocked(target)
	c.mu.Unlock()

	return c.RequestAudio(ctx)
}

// nextReadable returns the first page from start that has text, or last.
func (c *Controller) nextReadable(start, last int) int {
	for i := start; i < last; i++ {
		p, err := c.store.Page(i)
		if err == nil && !p.IsEmpty {
			return i
		}
		c.logger.Debug("skipping empty page", "page", i)
	}
	return last
}

// ChangeRate sets the rate used from the next request on. Audio already
// playing or cached at the old rate is left alone.
func (c *Controller) ChangeRate(r synth.Rate) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := r.Validate(); err != nil {
		return c.snapshot(), fmt.Errorf("%w: %w", ErrInvalidRate, err)
	}
	c.session.Rate = r
	return c.snapshot(), nil
}

// SetAutoAdvance turns auto-advance on or off.
func (c *Controller) SetAutoAdvance(on bool) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session.AutoAdvance = on
	return c.snapshot()
}

// Find returns the pages of the loaded document whose titles match query,
// best match first. Titles are extracted without holding the controller
// lock, so other commands proceed while a lazy store is read.
func (c *Controller) Find(query string) ([]document.Entry, error) {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()

	if store == nil {
		return nil, ErrNoDocument
	}
	return document.FindPages(store, query)
}

// Close stops playback and closes the loaded document.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopSurface()
	c.gen++
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

func (c *Controller) snapshot() Snapshot {
	s := c.session
	snap := Snapshot{
		Page:        s.CurrentPage,
		State:       c.sm.current,
		Rate:        s.Rate,
		AutoAdvance: s.AutoAdvance,
		Instance:    s.Instance,
		NoAudio:     s.NoAudio,
		Pending:     c.pending,
		Err:         s.LastError,
		Cache:       c.cache.Stats(),
	}
	if c.store != nil {
		snap.Loaded = true
		snap.Document = c.store.Document()
		snap.TotalPages = c.store.PageCount()
		if p, err := c.store.Page(s.CurrentPage); err == nil {
			snap.Text = p.Text
		}
	}
	return snap
}
