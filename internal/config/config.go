package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server        ServerConfig        `toml:"server"`        // HTTP server settings
	Logging       LoggingConfig       `toml:"logging"`       // Application logging settings
	Storage       StorageConfig       `toml:"storage"`       // Transcript persistence settings
	Audio         AudioConfig         `toml:"audio"`         // Audio capture settings
	VAD           VADConfig           `toml:"vad"`           // Voice activity detection settings
	Transcription TranscriptionConfig `toml:"transcription"` // Transcription provider settings
	Dictation     DictationConfig     `toml:"dictation"`     // Dictation session settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // Primary HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, recommended for streaming)
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains transcript persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Path to the SQLite database file
}

// AudioConfig contains audio capture configuration
type AudioConfig struct {
	// FFmpeg capture settings
	FFmpegPath  string `toml:"ffmpeg_path"`  // Path to FFmpeg executable
	InputFormat string `toml:"input_format"` // FFmpeg input format for the capture device (e.g., "alsa", "pulse", "avfoundation")
	InputDevice string `toml:"input_device"` // Capture device identifier (e.g., "default", "hw:0")
	SampleRate  int    `toml:"sample_rate"`  // Audio sample rate in Hz
	Channels    int    `toml:"channels"`     // Number of audio channels (1 for mono, 2 for stereo)

	TickMs int `toml:"tick_ms"` // Energy tick sampling interval in milliseconds
}

// VADConfig contains voice activity detection settings
type VADConfig struct {
	SilenceThreshold  float64 `toml:"silence_threshold"`   // Energy level above which a tick counts as speech (0.0-1.0)
	SilenceDurationMs int     `toml:"silence_duration_ms"` // Milliseconds of sustained silence to confirm end of speech
	MinSpeechMs       int     `toml:"min_speech_ms"`       // Minimum speech duration in milliseconds for a segment to be kept
}

// TranscriptionConfig contains settings for the external transcription service
type TranscriptionConfig struct {
	Provider string `toml:"provider"` // Transcription provider: "openai" or "gemini"

	// OpenAI settings
	OpenAIAPIKey  string `toml:"openai_api_key"`      // OpenAI API key for transcription requests
	OpenAIBaseURL string `toml:"openai_api_base_url"` // Optional OpenAI base URL (e.g., for proxies). Defaults to https://api.openai.com

	// Gemini settings
	GeminiAPIKey string `toml:"gemini_api_key"` // Google Gemini API key for transcription requests

	Model          string `toml:"model"`           // Model to use (e.g., "whisper-1" or "gemini-2.0-flash")
	Language       string `toml:"language"`        // Primary language for transcription (e.g., "en")
	TimeoutSeconds int    `toml:"timeout_seconds"` // HTTP timeout for transcription API requests in seconds
}

// DictationConfig contains dictation session settings
type DictationConfig struct {
	DefaultSpeaker string `toml:"default_speaker"` // Speaker assigned to segments before any explicit selection
}

// Load loads the configuration from the given TOML file
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// applyDefaults fills in default values for fields left unset in the file
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "scribe.db"
	}
	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = "ffmpeg"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.TickMs == 0 {
		c.Audio.TickMs = 50
	}
	if c.VAD.SilenceThreshold == 0 {
		c.VAD.SilenceThreshold = 0.08
	}
	if c.VAD.SilenceDurationMs == 0 {
		c.VAD.SilenceDurationMs = 1000
	}
	if c.VAD.MinSpeechMs == 0 {
		c.VAD.MinSpeechMs = 300
	}
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = "openai"
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = "whisper-1"
	}
	if c.Transcription.TimeoutSeconds == 0 {
		c.Transcription.TimeoutSeconds = 120
	}
	if c.Dictation.DefaultSpeaker == "" {
		c.Dictation.DefaultSpeaker = "operator"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio sample_rate must be positive: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return fmt.Errorf("audio channels must be 1 or 2: %d", c.Audio.Channels)
	}
	if c.Audio.TickMs <= 0 {
		return fmt.Errorf("audio tick_ms must be positive: %d", c.Audio.TickMs)
	}

	if c.VAD.SilenceThreshold < 0 || c.VAD.SilenceThreshold > 1 {
		return fmt.Errorf("vad silence_threshold must be between 0 and 1: %f", c.VAD.SilenceThreshold)
	}
	if c.VAD.SilenceDurationMs <= 0 {
		return fmt.Errorf("vad silence_duration_ms must be positive: %d", c.VAD.SilenceDurationMs)
	}
	if c.VAD.MinSpeechMs < 0 {
		return fmt.Errorf("vad min_speech_ms must be non-negative: %d", c.VAD.MinSpeechMs)
	}

	switch c.Transcription.Provider {
	case "openai":
		if c.Transcription.OpenAIAPIKey == "" {
			fmt.Printf("WARN: No OpenAI API key provided - transcription will fail until one is configured\n")
		}
	case "gemini":
		if c.Transcription.GeminiAPIKey == "" {
			fmt.Printf("WARN: No Gemini API key provided - transcription will fail until one is configured\n")
		}
	default:
		return fmt.Errorf("unknown transcription provider: %q", c.Transcription.Provider)
	}

	if c.Transcription.TimeoutSeconds <= 0 {
		return fmt.Errorf("transcription timeout_seconds must be positive: %d", c.Transcription.TimeoutSeconds)
	}

	return nil
}
