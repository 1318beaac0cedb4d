package synth

import (
	"context"
	"fmt"
	"sync"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

// GoogleConfig configures the Google Cloud Text-to-Speech engine.
// Credentials come from the standard application default credentials.
type GoogleConfig struct {
	LanguageCode string // defaults to "en-US"
	VoiceName    string // optional, e.g. "en-US-Standard-A"
}

// GoogleEngine synthesizes MP3 audio with Google Cloud Text-to-Speech.
type GoogleEngine struct {
	cfg GoogleConfig

	mu     sync.Mutex
	client *texttospeech.Client
}

// NewGoogleEngine creates the engine. The API client is dialed on first use.
func NewGoogleEngine(cfg GoogleConfig) *GoogleEngine {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	return &GoogleEngine{cfg: cfg}
}

// Name implements Engine.
func (e *GoogleEngine) Name() string { return "google" }

func (e *GoogleEngine) apiClient(ctx context.Context) (*texttospeech.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		return e.client, nil
	}
	c, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	e.client = c
	return c, nil
}

// Synthesize implements Engine.
func (e *GoogleEngine) Synthesize(ctx context.Context, text string, r Rate) ([]byte, error) {
	c, err := e.apiClient(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: e.cfg.LanguageCode,
			Name:         e.cfg.VoiceName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  r.SpeakingRate(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("google: synthesize: %w", err)
	}
	return resp.GetAudioContent(), nil
}

// Close releases the API connection.
func (e *GoogleEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
