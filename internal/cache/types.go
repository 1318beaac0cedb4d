package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/pagecast/internal/metrics"
	"github.com/dgnsrekt/pagecast/internal/synth"
)

var (
	// ErrItemTooLarge is returned when an entry exceeds the byte ceiling on its own.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrNoAudio is returned when Put is given empty audio.
	ErrNoAudio = errors.New("no audio to cache")

	// ErrCacheCorrupted is returned when stored audio cannot be decoded.
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Key identifies audio for one page at one speaking rate.
type Key struct {
	Page int
	Rate synth.Rate
}

func (k Key) String() string {
	return fmt.Sprintf("page %d @ %s", k.Page, k.Rate)
}

// Entry is a cached audio clip. Audio returned by Get is the caller's copy.
type Entry struct {
	Key       Key
	Audio     []byte
	SizeBytes int // bytes held by the cache, after compression
	CreatedAt time.Time
}

// PolicyKind selects how entries are retained.
type PolicyKind int

const (
	// PolicyWindow keeps pages within [anchor-Behind, anchor+Ahead].
	PolicyWindow PolicyKind = iota
	// PolicyUnbounded keeps every entry until InvalidateAll.
	PolicyUnbounded
)

func (p PolicyKind) String() string {
	switch p {
	case PolicyWindow:
		return "window"
	case PolicyUnbounded:
		return "unbounded"
	default:
		return "unknown"
	}
}

// ParsePolicy parses "window" or "unbounded". An empty string is window.
func ParsePolicy(s string) (PolicyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "window":
		return PolicyWindow, nil
	case "unbounded":
		return PolicyUnbounded, nil
	default:
		return 0, fmt.Errorf("unknown cache policy %q (want window or unbounded)", s)
	}
}

// Config configures a SpeechCache.
type Config struct {
	Policy PolicyKind
	Behind int // pages kept before the anchor (window policy)
	Ahead  int // pages kept after the anchor (window policy)

	// MaxBytes caps stored bytes; least recently written entries go first.
	// Zero disables the ceiling.
	MaxBytes int64

	Compress         bool
	CompressionLevel int // zstd level, 1-22, default 3

	Logger  *log.Logger
	Metrics *metrics.Recorder
}

// DefaultConfig returns a window cache keeping the current and next page.
func DefaultConfig() Config {
	return Config{
		Policy:           PolicyWindow,
		Behind:           0,
		Ahead:            1,
		CompressionLevel: 3,
	}
}

// Stats holds cache counters.
type Stats struct {
	Entries   int
	Bytes     int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}
