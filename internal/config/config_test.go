package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
[transcription]
openai_api_key = "sk-test"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Audio.TickMs != 50 {
		t.Errorf("expected default tick_ms 50, got %d", cfg.Audio.TickMs)
	}
	if cfg.VAD.SilenceThreshold != 0.08 {
		t.Errorf("expected default silence_threshold 0.08, got %f", cfg.VAD.SilenceThreshold)
	}
	if cfg.VAD.SilenceDurationMs != 1000 {
		t.Errorf("expected default silence_duration_ms 1000, got %d", cfg.VAD.SilenceDurationMs)
	}
	if cfg.VAD.MinSpeechMs != 300 {
		t.Errorf("expected default min_speech_ms 300, got %d", cfg.VAD.MinSpeechMs)
	}
	if cfg.Transcription.Provider != "openai" {
		t.Errorf("expected default provider openai, got %q", cfg.Transcription.Provider)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = 9090
host = "0.0.0.0"

[vad]
silence_threshold = 0.12
silence_duration_ms = 800
min_speech_ms = 250

[transcription]
provider = "gemini"
gemini_api_key = "test-key"
model = "gemini-2.0-flash"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.VAD.SilenceThreshold != 0.12 {
		t.Errorf("expected silence_threshold 0.12, got %f", cfg.VAD.SilenceThreshold)
	}
	if cfg.Transcription.Provider != "gemini" {
		t.Errorf("expected provider gemini, got %q", cfg.Transcription.Provider)
	}
	if cfg.Transcription.Model != "gemini-2.0-flash" {
		t.Errorf("expected model gemini-2.0-flash, got %q", cfg.Transcription.Model)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{
			name:      "valid defaults",
			mutate:    func(c *Config) {},
			expectErr: false,
		},
		{
			name:      "invalid port",
			mutate:    func(c *Config) { c.Server.Port = -1 },
			expectErr: true,
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "verbose" },
			expectErr: true,
		},
		{
			name:      "threshold above range",
			mutate:    func(c *Config) { c.VAD.SilenceThreshold = 1.5 },
			expectErr: true,
		},
		{
			name:      "zero silence duration",
			mutate:    func(c *Config) { c.VAD.SilenceDurationMs = 0 },
			expectErr: true,
		},
		{
			name:      "unknown provider",
			mutate:    func(c *Config) { c.Transcription.Provider = "acme" },
			expectErr: true,
		},
		{
			name:      "invalid channel count",
			mutate:    func(c *Config) { c.Audio.Channels = 5 },
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			cfg.Transcription.OpenAIAPIKey = "sk-test"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadWithFallbackPrefersExplicitPath(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = 7070
`)

	cfg, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
}
