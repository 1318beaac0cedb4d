package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/pagecast/internal/playback"
	"github.com/dustin/go-humanize"
	"github.com/ebitengine/oto/v3"
)

// ErrClosed is returned when playing on a closed player.
var ErrClosed = errors.New("player is closed")

// PlayerState represents the current state of the player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stream is one playing clip. *oto.Player implements it.
type stream interface {
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(volume float64)
	Close() error
}

// sink creates streams on an output device.
type sink interface {
	newStream(r io.Reader) stream
}

type otoSink struct {
	ctx *oto.Context
}

func (s otoSink) newStream(r io.Reader) stream { return s.ctx.NewPlayer(r) }

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate   int           // 44100 or 48000 Hz
	Channels     int           // 1 = mono, 2 = stereo
	BufferSize   time.Duration // device buffer, 0 for the driver default
	PollInterval time.Duration // how often the end of a clip is checked
	Logger       *log.Logger
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate:   44100,
		Channels:     2,
		PollInterval: 50 * time.Millisecond,
	}
}

func validateConfig(cfg PlayerConfig) error {
	if cfg.SampleRate != 44100 && cfg.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", cfg.Channels)
	}
	if cfg.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// oto allows a single context per process.
var (
	contextOnce sync.Once
	sharedCtx   *oto.Context
	contextErr  error
)

func otoContext(cfg PlayerConfig) (*oto.Context, error) {
	contextOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   cfg.BufferSize,
		})
		if err != nil {
			contextErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		sharedCtx = ctx
	})
	return sharedCtx, contextErr
}

var _ playback.Surface = (*Player)(nil)

// Player plays page handoffs one at a time and reports when each finishes.
// It implements playback.Surface.
type Player struct {
	sink   sink
	cfg    PlayerConfig
	logger *log.Logger

	mu         sync.Mutex
	state      PlayerState
	current    stream
	data       []byte // keeps the PCM alive while oto reads it
	instance   uint64
	done       chan struct{}
	volume     float64
	onComplete func(instance uint64)
}

// NewPlayer opens the audio device. onComplete is called from a separate
// goroutine when a handoff plays to its end; it is not called for clips that
// were stopped or replaced.
func NewPlayer(cfg PlayerConfig, onComplete func(instance uint64)) (*Player, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ctx, err := otoContext(cfg)
	if err != nil {
		return nil, err
	}
	return newPlayer(otoSink{ctx: ctx}, cfg, onComplete), nil
}

func newPlayer(s sink, cfg PlayerConfig, onComplete func(uint64)) *Player {
	p := &Player{
		sink:       s,
		cfg:        cfg,
		logger:     cfg.Logger,
		volume:     1.0,
		onComplete: onComplete,
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	return p
}

// SetOnComplete replaces the completion callback.
func (p *Player) SetOnComplete(fn func(instance uint64)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onComplete = fn
}

// Play decodes h.Audio and starts playing it, replacing any current clip.
func (p *Player) Play(h playback.Handoff) error {
	pcm, err := Decode(h.Audio)
	if err != nil {
		return fmt.Errorf("decode page %d: %w", h.Page+1, err)
	}
	pcm = Convert(pcm, p.cfg.SampleRate, p.cfg.Channels)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return ErrClosed
	}
	p.stopLocked()

	st := p.sink.newStream(bytes.NewReader(pcm.Data))
	st.SetVolume(p.volume)
	st.Play()

	p.current = st
	p.data = pcm.Data
	p.instance = h.Instance
	p.state = StatePlaying
	p.done = make(chan struct{})
	go p.watch(st, h.Instance, p.done)

	p.logger.Debug("playing",
		"page", h.Page,
		"instance", h.Instance,
		"rate", h.Rate,
		"size", humanize.Bytes(uint64(len(pcm.Data))),
		"duration", pcm.Duration().Round(time.Millisecond))
	return nil
}

// watch waits for st to drain and reports completion of instance.
func (p *Player) watch(st stream, instance uint64, done <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.current != st {
			p.mu.Unlock()
			return
		}
		if p.state != StatePlaying || st.IsPlaying() {
			p.mu.Unlock()
			continue
		}

		p.releaseLocked()
		p.state = StateStopped
		fn := p.onComplete
		p.mu.Unlock()

		p.logger.Debug("playback complete", "instance", instance)
		if fn != nil {
			fn(instance)
		}
		return
	}
}

// Stop stops the current clip without reporting completion.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.state == StateStopped || p.state == StateClosed {
		return
	}
	if p.current != nil {
		p.current.Pause()
	}
	p.releaseLocked()
	p.state = StateStopped
}

// releaseLocked closes the current stream and ends its watcher.
func (p *Player) releaseLocked() {
	if p.current != nil {
		if err := p.current.Close(); err != nil {
			p.logger.Debug("closing stream", "err", err)
		}
		p.current = nil
	}
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	p.data = nil
}

// TogglePause pauses a playing clip or resumes a paused one, and returns the
// resulting state.
func (p *Player) TogglePause() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StatePlaying:
		p.current.Pause()
		p.state = StatePaused
	case StatePaused:
		p.current.Play()
		p.state = StatePlaying
	}
	return p.state
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.volume = volume
	if p.current != nil {
		p.current.SetVolume(volume)
	}
	return nil
}

// State returns the current player state.
func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Instance returns the instance of the last handoff played.
func (p *Player) Instance() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instance
}

// Close stops playback. The oto context stays open for the process.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.state = StateClosed
	return nil
}
