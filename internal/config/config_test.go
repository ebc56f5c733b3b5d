package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.BaseURL != "http://127.0.0.1:1234/v1" {
		t.Fatalf("expected default backend url, got %s", cfg.LLM.BaseURL)
	}
	if cfg.TTS.SampleRate != 24000 {
		t.Fatalf("expected 24000 Hz default, got %d", cfg.TTS.SampleRate)
	}
	if cfg.TTS.Voice != "af_nicole" {
		t.Fatalf("expected default voice af_nicole, got %s", cfg.TTS.Voice)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxd.yaml")
	body := `
http:
  port: 8088
llm:
  model: nous-capybara-34b
  temperature: 0.3
tts:
  mode: exec
  command: "python kokoro_worker.py --lang {lang}"
  voice: af_heart
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8088 {
		t.Fatalf("expected port override, got %d", cfg.HTTP.Port)
	}
	if cfg.LLM.Model != "nous-capybara-34b" || cfg.LLM.Temperature != 0.3 {
		t.Fatalf("expected llm overrides, got %+v", cfg.LLM)
	}
	if cfg.TTS.Mode != "exec" || cfg.TTS.Voice != "af_heart" {
		t.Fatalf("expected tts overrides, got %+v", cfg.TTS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXD_HTTP_PORT", "9000")
	t.Setenv("VOXD_LLM_BASE_URL", "http://lmstudio:1234/v1")
	t.Setenv("VOXD_LLM_MODEL", "pinned-model")
	t.Setenv("VOXD_LLM_TEMPERATURE", "1.1")
	t.Setenv("VOXD_TTS_VOICE", "jf_alpha")
	t.Setenv("VOXD_BUS_ENABLED", "true")
	t.Setenv("VOXD_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOXD_PIPELINE_QUEUE_SIZE", "16")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", cfg.HTTP.Port)
	}
	if cfg.LLM.BaseURL != "http://lmstudio:1234/v1" || cfg.LLM.Model != "pinned-model" {
		t.Fatalf("expected llm env overrides, got %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 1.1 {
		t.Fatalf("expected temperature 1.1, got %v", cfg.LLM.Temperature)
	}
	if cfg.TTS.Voice != "jf_alpha" {
		t.Fatalf("expected voice override, got %s", cfg.TTS.Voice)
	}
	if !cfg.Bus.Enabled || len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected bus overrides, got %+v", cfg.Bus)
	}
	if cfg.Pipeline.QueueSize != 16 {
		t.Fatalf("expected queue size 16, got %d", cfg.Pipeline.QueueSize)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }},
		{"bad retention", func(c *Config) { c.EventStore.RetentionMode = "forever" }},
		{"empty base url", func(c *Config) { c.LLM.BaseURL = "" }},
		{"bad tts mode", func(c *Config) { c.TTS.Mode = "hologram" }},
		{"exec without command", func(c *Config) { c.TTS.Mode = "exec"; c.TTS.Command = "" }},
		{"bad sample rate", func(c *Config) { c.TTS.SampleRate = 0 }},
		{"bad temperature", func(c *Config) { c.LLM.Temperature = 3 }},
		{"bad queue size", func(c *Config) { c.Pipeline.QueueSize = 0 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.edit(&cfg)
		if err := validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestSlogLevelMapping(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		got := TelemetryConfig{LogLevel: tc.in}.SlogLevel()
		if got != tc.want {
			t.Fatalf("level %q: expected %v, got %v", tc.in, tc.want, got)
		}
	}
}
