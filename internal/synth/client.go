package synth

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/pagecast/internal/metrics"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// Default client settings.
const (
	DefaultMinTextLength     = 3
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerMinute = 50
)

// Engine is a text-to-speech backend. Implementations return encoded audio
// (MP3 or WAV) for text spoken at rate r.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, text string, r Rate) ([]byte, error)
}

// Synthesizer is the contract consumers depend on; *Client implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, r Rate) ([]byte, error)
}

// Options configures a Client.
type Options struct {
	// MinTextLength is the minimum number of non-space runes worth a request.
	MinTextLength int
	// Timeout bounds a single engine call. Zero disables it.
	Timeout time.Duration
	// RequestsPerMinute throttles engine calls. Zero disables throttling.
	RequestsPerMinute int

	Logger  *log.Logger
	Metrics *metrics.Recorder
}

// DefaultOptions returns the settings used by the CLI.
func DefaultOptions() Options {
	return Options{
		MinTextLength:     DefaultMinTextLength,
		Timeout:           DefaultTimeout,
		RequestsPerMinute: DefaultRequestsPerMinute,
	}
}

// Client adapts an Engine to the synthesis contract.
type Client struct {
	engine  Engine
	minLen  int
	timeout time.Duration
	limiter *rate.Limiter
	logger  *log.Logger
	metrics *metrics.Recorder

	calls atomic.Int64
}

// New creates a client for engine.
func New(engine Engine, opts Options) *Client {
	c := &Client{
		engine:  engine,
		minLen:  opts.MinTextLength,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

// Engine returns the wrapped engine's name.
func (c *Client) Engine() string { return c.engine.Name() }

// Calls returns how many requests reached the engine.
func (c *Client) Calls() int64 { return c.calls.Load() }

// Synthesize converts text to audio at rate r. Text shorter than the minimum
// length yields nil audio and a nil error without contacting the engine.
func (c *Client) Synthesize(ctx context.Context, text string, r Rate) ([]byte, error) {
	name := c.engine.Name()

	if utf8.RuneCountInString(strings.TrimSpace(text)) < c.minLen {
		c.logger.Debug("text below minimum length, no audio", "engine", name, "chars", len(text))
		c.metrics.Synthesis(name, "skipped")
		return nil, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.metrics.Synthesis(name, "error")
			return nil, &Error{Engine: name, Reason: "rate limit wait cancelled", Err: err}
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	c.calls.Add(1)
	audio, err := c.engine.Synthesize(ctx, text, r)
	took := time.Since(start)

	if err != nil {
		c.logger.Warn("synthesis failed", "engine", name, "rate", r, "took", took, "err", err)
		c.metrics.Synthesis(name, "error")
		return nil, &Error{Engine: name, Reason: "engine request failed", Err: err}
	}
	if len(audio) == 0 {
		c.metrics.Synthesis(name, "error")
		return nil, &Error{Engine: name, Reason: "engine returned no audio"}
	}

	c.logger.Debug("synthesized",
		"engine", name,
		"rate", r,
		"chars", len(text),
		"size", humanize.Bytes(uint64(len(audio))),
		"took", took)
	c.metrics.Synthesis(name, "ok")
	return audio, nil
}

// Close releases the engine if it holds resources.
func (c *Client) Close() error {
	if closer, ok := c.engine.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
