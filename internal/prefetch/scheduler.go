package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/pagecast/internal/cache"
	"github.com/dgnsrekt/pagecast/internal/document"
	"github.com/dgnsrekt/pagecast/internal/metrics"
	"github.com/dgnsrekt/pagecast/internal/synth"
	"golang.org/x/sync/singleflight"
)

// DefaultLookahead is how many pages past the current one are prefetched.
const DefaultLookahead = 1

// ErrClosed is returned by Fetch after Close.
var ErrClosed = errors.New("prefetch scheduler closed")

// AudioCache is the subset of the speech cache the scheduler uses.
type AudioCache interface {
	Get(key cache.Key) (cache.Entry, bool)
	Contains(key cache.Key) bool
	Put(key cache.Key, audio []byte) error
}

// Pages is the subset of a document store the scheduler reads.
type Pages interface {
	PageCount() int
	Page(index int) (document.Page, error)
}

// Options configures a Scheduler.
type Options struct {
	Lookahead int
	Logger    *log.Logger
	Metrics   *metrics.Recorder
}

// Scheduler runs synthesis tasks and stores their results in the cache.
type Scheduler struct {
	synth     synth.Synthesizer
	cache     AudioCache
	lookahead int
	logger    *log.Logger
	metrics   *metrics.Recorder

	// ctx bounds every task; shared tasks never run on a caller's context.
	ctx    context.Context
	cancel context.CancelFunc

	group singleflight.Group
	wg    sync.WaitGroup

	// mu guards epoch, inflight and pending, and is held across the epoch
	// check and cache write of a finished task.
	mu       sync.Mutex
	epoch    uint64
	inflight map[cache.Key]struct{}
	// pending holds keys claimed by a background prefetch that may not have
	// reached synthesis yet.
	pending map[cache.Key]struct{}
}

// New creates a scheduler writing to c.
func New(s synth.Synthesizer, c AudioCache, opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	sc := &Scheduler{
		synth:     s,
		cache:     c,
		lookahead: opts.Lookahead,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		inflight:  make(map[cache.Key]struct{}),
		pending:   make(map[cache.Key]struct{}),
	}
	if sc.lookahead < 0 {
		sc.lookahead = 0
	}
	if sc.logger == nil {
		sc.logger = log.Default()
	}
	return sc
}

// Lookahead returns the number of pages prefetched ahead of the current one.
func (s *Scheduler) Lookahead() int { return s.lookahead }

// Fetch returns audio for page at rate r: from the cache, by joining a task
// already synthesizing the same key, or by starting one. Nil audio with a nil
// error means the text produced no audio. Cancelling ctx abandons the wait
// but not the task.
func (s *Scheduler) Fetch(ctx context.Context, page int, text string, r synth.Rate) ([]byte, error) {
	key := cache.Key{Page: page, Rate: r}
	if e, ok := s.cache.Get(key); ok {
		return e.Audio, nil
	}
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}

	if s.InFlight(key) {
		s.logger.Debug("joining in-flight synthesis", "key", key)
		s.metrics.Join()
	}

	select {
	case res := <-s.start(key, text):
		if res.Err != nil {
			return nil, res.Err
		}
		audio, _ := res.Val.([]byte)
		return audio, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Prefetch schedules background synthesis for the pages after current, up
// to the lookahead. Pages that are empty, cached, or already being
// synthesized are skipped. Failures are logged and dropped; nothing is
// retried. It never blocks on synthesis.
func (s *Scheduler) Prefetch(pages Pages, current int, r synth.Rate) {
	if s.ctx.Err() != nil {
		return
	}

	for i := 1; i <= s.lookahead; i++ {
		index := current + i
		if index >= pages.PageCount() {
			return
		}

		key := cache.Key{Page: index, Rate: r}
		if s.cache.Contains(key) {
			s.metrics.Prefetch("cached")
			continue
		}
		epoch, ok := s.claim(key)
		if !ok {
			s.metrics.Prefetch("inflight")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.unclaim(key, epoch)
			s.prefetchPage(pages, key)
		}()
	}
}

func (s *Scheduler) prefetchPage(pages Pages, key cache.Key) {
	page, err := pages.Page(key.Page)
	if err != nil || page.IsEmpty {
		s.logger.Debug("prefetch skipped", "key", key, "err", err)
		s.metrics.Prefetch("empty")
		return
	}

	if s.cache.Contains(key) {
		s.metrics.Prefetch("cached")
		return
	}

	s.metrics.Prefetch("launched")
	select {
	case res := <-s.start(key, page.Text):
		if res.Err != nil {
			s.logger.Debug("prefetch failed", "key", key, "err", res.Err)
			s.metrics.Prefetch("failed")
		}
	case <-s.ctx.Done():
	}
}

// start joins or launches the task for key in the current epoch.
func (s *Scheduler) start(key cache.Key, text string) <-chan singleflight.Result {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	flight := fmt.Sprintf("%d/%d/%d", epoch, key.Page, key.Rate.Percent)
	return s.group.DoChan(flight, func() (any, error) {
		s.setInFlight(key, epoch, true)
		defer s.setInFlight(key, epoch, false)

		// a task for the same key may have finished between the caller's
		// lookup and this one starting
		if e, ok := s.cache.Get(key); ok {
			return e.Audio, nil
		}

		audio, err := s.synth.Synthesize(s.ctx, text, key.Rate)
		if err != nil {
			return nil, err
		}
		if len(audio) == 0 {
			return nil, nil
		}
		s.store(key, epoch, audio)
		return audio, nil
	})
}

// store writes audio to the cache unless the epoch has moved on.
func (s *Scheduler) store(key cache.Key, epoch uint64, audio []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		s.logger.Debug("discarding result from previous document", "key", key)
		s.metrics.Prefetch("stale")
		return
	}
	if err := s.cache.Put(key, audio); err != nil {
		s.logger.Warn("failed to cache audio", "key", key, "err", err)
		return
	}
	s.metrics.Prefetch("stored")
}

// claim marks key as pending for a background prefetch. It fails when key is
// already pending or being synthesized.
func (s *Scheduler) claim(key cache.Key) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inflight[key]; ok {
		return 0, false
	}
	if _, ok := s.pending[key]; ok {
		return 0, false
	}
	s.pending[key] = struct{}{}
	return s.epoch, true
}

func (s *Scheduler) unclaim(key cache.Key, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch == s.epoch {
		delete(s.pending, key)
	}
}

func (s *Scheduler) setInFlight(key cache.Key, epoch uint64, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		return
	}
	if on {
		s.inflight[key] = struct{}{}
	} else {
		delete(s.inflight, key)
	}
}

// InFlight reports whether key is being synthesized for the current document.
func (s *Scheduler) InFlight(key cache.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.inflight[key]
	return ok
}

// Reset starts a new document epoch. Tasks still running for the previous
// document finish, but their results are discarded. Call it before
// invalidating the cache so no old result can land afterwards.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.inflight = make(map[cache.Key]struct{})
	s.pending = make(map[cache.Key]struct{})
}

// Epoch returns the current document epoch.
func (s *Scheduler) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Wait blocks until all background prefetch tasks have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels running tasks and waits for background work to stop.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}
