package synth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Stub engine defaults.
const (
	stubSampleRate     = 8000
	stubWordsPerMinute = 150
)

// StubEngine is an in-process engine producing silent WAV audio whose length
// follows the word count. Output is deterministic for a given text and rate.
// It counts calls and can be made to fail or block, which makes it useful for
// tests and offline demos.
type StubEngine struct {
	// Delay is slept before every response.
	Delay time.Duration

	mu    sync.Mutex
	calls map[string]int
	total int
	fail  func(text string) error
	gate  chan struct{}
}

// NewStubEngine creates a stub engine.
func NewStubEngine() *StubEngine {
	return &StubEngine{calls: make(map[string]int)}
}

// Name implements Engine.
func (e *StubEngine) Name() string { return "stub" }

// FailWith makes Synthesize return the error produced by fn; a nil error
// lets the call succeed. Passing nil clears the hook.
func (e *StubEngine) FailWith(fn func(text string) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = fn
}

// Hold makes subsequent calls block until Release is called.
func (e *StubEngine) Hold() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = make(chan struct{})
}

// Release unblocks calls waiting since Hold.
func (e *StubEngine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gate != nil {
		close(e.gate)
		e.gate = nil
	}
}

// Calls returns how many times text was synthesized, at any rate.
func (e *StubEngine) Calls(text string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[text]
}

// TotalCalls returns the number of Synthesize calls.
func (e *StubEngine) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

// Synthesize implements Engine.
func (e *StubEngine) Synthesize(ctx context.Context, text string, r Rate) ([]byte, error) {
	e.mu.Lock()
	e.calls[text]++
	e.total++
	fail, gate := e.fail, e.gate
	e.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		if err := fail(text); err != nil {
			return nil, err
		}
	}
	return StubAudio(text, r), nil
}

// StubAudio returns the audio StubEngine produces for text at rate r.
func StubAudio(text string, r Rate) []byte {
	words := max(len(strings.Fields(text)), 1)
	seconds := float64(words) / stubWordsPerMinute * 60 / r.Speed()
	samples := int(seconds * stubSampleRate)

	note := chunk{id: [4]byte{'n', 'o', 't', 'e'}, data: []byte(fmt.Sprintf("%s|%s", r, text))}
	return encodeWAV(make([]byte, samples*2), stubSampleRate, 1, note)
}
