package synth

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// PiperConfig configures the Piper engine.
type PiperConfig struct {
	Binary     string // defaults to "piper"
	Model      string // path to the .onnx voice model
	SpeakerID  int
	SampleRate int // sample rate of the model, defaults to 22050
}

// PiperEngine synthesizes speech offline with the piper binary. Raw PCM from
// piper is wrapped in a WAV container.
type PiperEngine struct {
	cfg PiperConfig
}

// NewPiperEngine creates a Piper engine.
func NewPiperEngine(cfg PiperConfig) *PiperEngine {
	if cfg.Binary == "" {
		cfg.Binary = "piper"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}
	return &PiperEngine{cfg: cfg}
}

// Name implements Engine.
func (e *PiperEngine) Name() string { return "piper" }

// Validate checks the binary and model.
func (e *PiperEngine) Validate() error {
	if _, err := exec.LookPath(e.cfg.Binary); err != nil {
		return fmt.Errorf("piper: %s not found in PATH: %w", e.cfg.Binary, err)
	}
	if e.cfg.Model == "" {
		return fmt.Errorf("piper: no model configured")
	}
	if _, err := os.Stat(e.cfg.Model); err != nil {
		return fmt.Errorf("piper: model: %w", err)
	}
	return nil
}

// Synthesize implements Engine.
func (e *PiperEngine) Synthesize(ctx context.Context, text string, r Rate) ([]byte, error) {
	args := []string{
		"--model", e.cfg.Model,
		"--output-raw",
		"--length_scale", strconv.FormatFloat(r.LengthScale(), 'f', 3, 64),
	}
	if e.cfg.SpeakerID > 0 {
		args = append(args, "--speaker", strconv.Itoa(e.cfg.SpeakerID))
	}

	pcm, err := runCommand(ctx, []byte(text+"\n"), e.cfg.Binary, args...)
	if err != nil {
		return nil, err
	}
	return encodeWAV(pcm, e.cfg.SampleRate, 1), nil
}
