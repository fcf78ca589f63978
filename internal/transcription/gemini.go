package transcription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/opsdeck/scribe/pkg/logger"
)

// GeminiConfig holds the settings for the Gemini transcription client.
type GeminiConfig struct {
	APIKey   string
	Model    string
	Language string
}

// GeminiClient transcribes audio segments with the Gemini API by attaching
// the encoded segment inline to a generation request.
type GeminiClient struct {
	client   *genai.Client
	model    string
	language string
	logger   *logger.Logger
}

// NewGeminiClient creates a new Gemini transcription client.
func NewGeminiClient(cfg GeminiConfig, log *logger.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		log.Warn("Gemini API key is empty - transcription will not work")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:   client,
		model:    cfg.Model,
		language: cfg.Language,
		logger:   log.Named("gemini"),
	}, nil
}

// Transcribe sends the segment inline with a transcription prompt and
// returns the model's text output.
func (c *GeminiClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio segment")
	}

	prompt := "Transcribe this audio verbatim. Return only the spoken words with no commentary."
	if c.language != "" {
		prompt = fmt.Sprintf("Transcribe this audio verbatim. The speaker is using language %q. Return only the spoken words with no commentary.", c.language)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			{InlineData: &genai.Blob{MIMEType: "audio/ogg", Data: audio}},
		}, genai.RoleUser),
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate transcription: %w", err)
	}

	text := strings.TrimSpace(result.Text())

	c.logger.Debug("Transcription completed",
		logger.Int("audio_bytes", len(audio)),
		logger.Int("text_length", len(text)),
		logger.Duration("elapsed", time.Since(start)))

	return text, nil
}
