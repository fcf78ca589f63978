package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/opsdeck/scribe/pkg/logger"
)

// DefaultOpenAIBase is the upstream API endpoint used when no override is
// configured.
const DefaultOpenAIBase = "https://api.openai.com"

// OpenAIConfig holds the settings for the OpenAI transcription client.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Language       string
	TimeoutSeconds int
}

// OpenAIClient sends audio segments to OpenAI's transcription endpoint.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewOpenAIClient creates a new OpenAI transcription client.
// The base URL is resolved in order: explicit config value, the
// OPENAI_API_BASE environment variable, then the upstream default.
func NewOpenAIClient(cfg OpenAIConfig, log *logger.Logger) *OpenAIClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	if cfg.APIKey == "" {
		log.Warn("OpenAI API key is empty - transcription will not work")
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		if env := os.Getenv("OPENAI_API_BASE"); env != "" {
			base = strings.TrimRight(env, "/")
		} else {
			base = DefaultOpenAIBase
		}
	}

	return &OpenAIClient{
		apiKey:   cfg.APIKey,
		baseURL:  base,
		model:    cfg.Model,
		language: cfg.Language,
		logger:   log.Named("openai"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Transcribe uploads the segment as a multipart form to the audio
// transcriptions endpoint and returns the recognized text.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("OpenAI API key is required for transcription")
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio segment")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "segment.ogg")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if c.language != "" {
		if err := writer.WriteField("language", c.language); err != nil {
			return "", fmt.Errorf("failed to write language field: %w", err)
		}
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("failed to write response_format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	apiURL := c.baseURL + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code: %d, response: %s", resp.StatusCode, string(bodyBytes))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.Debug("Transcription completed",
		logger.Int("audio_bytes", len(audio)),
		logger.Int("text_length", len(result.Text)),
		logger.Duration("elapsed", time.Since(start)))

	return strings.TrimSpace(result.Text), nil
}
