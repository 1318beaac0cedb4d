package cache

import (
	"container/list"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// SpeechCache maps (page, rate) keys to synthesized audio. All methods are
// safe for concurrent use; each Put is atomic for its key.
type SpeechCache struct {
	cfg    Config
	codec  codec
	logger *log.Logger

	mu     sync.RWMutex
	items  map[Key]*list.Element
	lru    *list.List // front is most recently used
	anchor int
	size   int64
	stats  Stats
}

// noKey matches no real entry.
var noKey = Key{Page: -1}

type speechEntry struct {
	key       Key
	stored    []byte
	createdAt time.Time
}

// New creates an empty cache anchored at page 0.
func New(cfg Config) (*SpeechCache, error) {
	c := &SpeechCache{
		cfg:    cfg,
		codec:  copyCodec{},
		logger: cfg.Logger,
		items:  make(map[Key]*list.Element),
		lru:    list.New(),
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if cfg.Behind < 0 {
		c.cfg.Behind = 0
	}
	if cfg.Ahead < 0 {
		c.cfg.Ahead = 0
	}
	if cfg.Compress {
		z, err := newZstdCodec(cfg.CompressionLevel)
		if err != nil {
			return nil, err
		}
		c.codec = z
	}
	return c, nil
}

// Get returns the entry for key. Lookups never change which keys are held
// or the order in which they are evicted.
func (c *SpeechCache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		c.mu.Unlock()
		c.cfg.Metrics.CacheLookup(false)
		return Entry{}, false
	}
	c.stats.Hits++
	e := elem.Value.(*speechEntry)
	stored, createdAt := e.stored, e.createdAt
	c.mu.Unlock()

	c.cfg.Metrics.CacheLookup(true)

	// stored is never mutated after insertion, so decoding can happen
	// outside the lock.
	audio, err := c.codec.decode(stored)
	if err != nil {
		c.logger.Warn("cached audio unreadable", "key", key, "err", err)
		return Entry{}, false
	}
	return Entry{
		Key:       key,
		Audio:     audio,
		SizeBytes: len(stored),
		CreatedAt: createdAt,
	}, true
}

// Contains reports whether key is held, without touching recency or stats.
func (c *SpeechCache) Contains(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.items[key]
	return ok
}

// Put stores audio under key, replacing any previous entry. Retention policy
// is applied before Put returns; the entry just written is always kept.
func (c *SpeechCache) Put(key Key, audio []byte) error {
	if len(audio) == 0 {
		return ErrNoAudio
	}

	stored := c.codec.encode(audio)
	size := int64(len(stored))
	if c.cfg.MaxBytes > 0 && size > c.cfg.MaxBytes {
		return ErrItemTooLarge
	}

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*speechEntry)
		c.size += size - int64(len(e.stored))
		e.stored = stored
		e.createdAt = time.Now()
		c.lru.MoveToFront(elem)
	} else {
		elem := c.lru.PushFront(&speechEntry{key: key, stored: stored, createdAt: time.Now()})
		c.items[key] = elem
		c.size += size
	}

	evicted := c.evictOutsideWindow(key)
	evicted += c.evictOverBudget(key)
	total := c.size
	c.mu.Unlock()

	c.logger.Debug("cached audio",
		"key", key,
		"size", humanize.Bytes(uint64(size)),
		"total", humanize.Bytes(uint64(total)),
		"evicted", evicted)
	c.cfg.Metrics.CacheEvicted(evicted)
	c.cfg.Metrics.CacheSize(total)
	return nil
}

// Advance moves the window anchor to page and drops entries outside the
// window. It has no effect on membership under the unbounded policy.
func (c *SpeechCache) Advance(page int) {
	c.mu.Lock()
	c.anchor = page
	evicted := c.evictOutsideWindow(noKey)
	total := c.size
	c.mu.Unlock()

	if evicted > 0 {
		c.logger.Debug("window advanced", "anchor", page, "evicted", evicted)
	}
	c.cfg.Metrics.CacheEvicted(evicted)
	c.cfg.Metrics.CacheSize(total)
}

// Anchor returns the page the window is centred on.
func (c *SpeechCache) Anchor() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.anchor
}

// InvalidateAll drops every entry and resets the anchor to page 0.
func (c *SpeechCache) InvalidateAll() {
	c.mu.Lock()
	n := len(c.items)
	c.items = make(map[Key]*list.Element)
	c.lru.Init()
	c.size = 0
	c.anchor = 0
	c.mu.Unlock()

	if n > 0 {
		c.logger.Debug("cache invalidated", "entries", n)
	}
	c.cfg.Metrics.CacheSize(0)
}

// Keys returns the held keys ordered by page, then rate.
func (c *SpeechCache) Keys() []Key {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	slices.SortFunc(keys, func(a, b Key) int {
		if a.Page != b.Page {
			return a.Page - b.Page
		}
		return a.Rate.Percent - b.Rate.Percent
	})
	return keys
}

// Stats returns a snapshot of the cache counters.
func (c *SpeechCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Entries = len(c.items)
	s.Bytes = c.size
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
	return s
}

// Policy returns the retention policy in effect.
func (c *SpeechCache) Policy() PolicyKind { return c.cfg.Policy }

// Close releases compression resources. The cache must not be used after.
func (c *SpeechCache) Close() error {
	c.codec.close()
	return nil
}

func (c *SpeechCache) inWindow(page int) bool {
	return page >= c.anchor-c.cfg.Behind && page <= c.anchor+c.cfg.Ahead
}

// evictOutsideWindow must be called with the lock held.
func (c *SpeechCache) evictOutsideWindow(keep Key) int {
	if c.cfg.Policy != PolicyWindow {
		return 0
	}
	n := 0
	for k, elem := range c.items {
		if k == keep || c.inWindow(k.Page) {
			continue
		}
		c.removeElement(elem)
		n++
	}
	return n
}

// evictOverBudget must be called with the lock held.
func (c *SpeechCache) evictOverBudget(keep Key) int {
	if c.cfg.MaxBytes <= 0 {
		return 0
	}
	n := 0
	for elem := c.lru.Back(); elem != nil && c.size > c.cfg.MaxBytes; {
		prev := elem.Prev()
		if elem.Value.(*speechEntry).key != keep {
			c.removeElement(elem)
			n++
		}
		elem = prev
	}
	return n
}

func (c *SpeechCache) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	e := elem.Value.(*speechEntry)
	delete(c.items, e.key)
	c.size -= int64(len(e.stored))
	c.stats.Evictions++
}
