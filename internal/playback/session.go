package playback

import (
	"github.com/dgnsrekt/pagecast/internal/cache"
	"github.com/dgnsrekt/pagecast/internal/document"
	"github.com/dgnsrekt/pagecast/internal/synth"
)

// Session is the mutable state of one loaded document.
type Session struct {
	CurrentPage int
	Rate        synth.Rate
	AutoAdvance bool
	State       State

	// Instance identifies the most recent handoff to the surface. Completion
	// signals carrying any other instance are ignored.
	Instance uint64
	// consumed is the last instance whose completion was acted on.
	consumed uint64

	NoAudio   bool  // current page has no audio (empty or trivial text)
	LastError error // last foreground failure, cleared by the next request
}

func newSession(rate synth.Rate, autoAdvance bool) Session {
	return Session{
		Rate:        rate,
		AutoAdvance: autoAdvance,
		State:       StateIdle,
	}
}

// Snapshot is the observable state after a command.
type Snapshot struct {
	Document    document.Document
	Loaded      bool
	Page        int
	TotalPages  int
	Text        string // text of the current page
	State       State
	Rate        synth.Rate
	AutoAdvance bool
	Instance    uint64
	NoAudio     bool
	Pending     bool // foreground synthesis in progress
	Err         error
	Cache       cache.Stats
}

// AtFirstPage reports whether the current page is the first.
func (s Snapshot) AtFirstPage() bool { return s.Page == 0 }

// AtLastPage reports whether the current page is the last.
func (s Snapshot) AtLastPage() bool { return s.Page >= s.TotalPages-1 }
