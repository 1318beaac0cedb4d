package synth

import (
	"fmt"
	"strings"
)

// EngineConfig selects and configures an engine.
type EngineConfig struct {
	Name   string // gtts, piper, google or stub
	GTTS   GTTSConfig
	Piper  PiperConfig
	Google GoogleConfig
}

// validator is implemented by engines that depend on external tools.
type validator interface {
	Validate() error
}

// NewEngine builds the engine named in cfg and validates its dependencies.
func NewEngine(cfg EngineConfig) (Engine, error) {
	var e Engine
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "gtts":
		e = NewGTTSEngine(cfg.GTTS)
	case "piper":
		e = NewPiperEngine(cfg.Piper)
	case "google":
		e = NewGoogleEngine(cfg.Google)
	case "stub":
		e = NewStubEngine()
	default:
		return nil, fmt.Errorf("%q: %w (want gtts, piper, google or stub)", cfg.Name, ErrUnknownEngine)
	}

	if v, ok := e.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return e, nil
}
