package synth

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// GTTSConfig configures the gTTS engine.
type GTTSConfig struct {
	Language string // language code, defaults to "en"
	Slow     bool   // gtts-cli --slow
	Binary   string // defaults to "gtts-cli"
	FFmpeg   string // defaults to "ffmpeg"; used only for non-default rates
}

// GTTSEngine synthesizes MP3 audio with gtts-cli (Google Translate TTS). gTTS
// has no rate control of its own, so non-default rates are applied with an
// ffmpeg atempo filter.
type GTTSEngine struct {
	cfg GTTSConfig
}

// NewGTTSEngine creates a gTTS engine.
func NewGTTSEngine(cfg GTTSConfig) *GTTSEngine {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Binary == "" {
		cfg.Binary = "gtts-cli"
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	return &GTTSEngine{cfg: cfg}
}

// Name implements Engine.
func (e *GTTSEngine) Name() string { return "gtts" }

// Validate checks that the required binaries are installed.
func (e *GTTSEngine) Validate() error {
	if _, err := exec.LookPath(e.cfg.Binary); err != nil {
		return fmt.Errorf("gtts: %s not found in PATH (pip install gTTS): %w", e.cfg.Binary, err)
	}
	return nil
}

// Synthesize implements Engine.
func (e *GTTSEngine) Synthesize(ctx context.Context, text string, r Rate) ([]byte, error) {
	// "-" reads the text from stdin
	args := []string{"-", "--lang", e.cfg.Language}
	if e.cfg.Slow {
		args = append(args, "--slow")
	}

	mp3, err := runCommand(ctx, []byte(text), e.cfg.Binary, args...)
	if err != nil {
		return nil, err
	}
	if r == DefaultRate {
		return mp3, nil
	}
	return e.retime(ctx, mp3, r)
}

// retime changes the tempo of mp3 without altering pitch.
func (e *GTTSEngine) retime(ctx context.Context, mp3 []byte, r Rate) ([]byte, error) {
	tempo := strconv.FormatFloat(r.Speed(), 'f', 2, 64)
	return runCommand(ctx, mp3, e.cfg.FFmpeg,
		"-hide_banner", "-loglevel", "error",
		"-f", "mp3", "-i", "pipe:0",
		"-filter:a", "atempo="+tempo,
		"-f", "mp3", "pipe:1")
}
