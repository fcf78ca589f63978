// Package transcription converts encoded speech segments into text using
// an external speech-to-text provider.
package transcription

import (
	"context"
	"fmt"

	"github.com/opsdeck/scribe/internal/config"
	"github.com/opsdeck/scribe/pkg/logger"
)

// Transcriber converts a complete encoded audio segment into text.
// Implementations are safe for use by a single caller at a time; the
// dictation queue worker never issues concurrent calls.
type Transcriber interface {
	// Transcribe sends the audio (a self-contained Ogg/Opus stream) to the
	// provider and returns the recognized text. An empty string with a nil
	// error means the provider heard nothing usable.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// NewTranscriber builds the provider selected by the configuration.
func NewTranscriber(cfg *config.TranscriptionConfig, log *logger.Logger) (Transcriber, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			Model:          cfg.Model,
			Language:       cfg.Language,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}, log), nil
	case "gemini":
		return NewGeminiClient(GeminiConfig{
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.Model,
			Language: cfg.Language,
		}, log)
	default:
		return nil, fmt.Errorf("unknown transcription provider: %s", cfg.Provider)
	}
}
