package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// SlogLevel maps log_level onto a slog level. Unknown values fall
// back to info.
func (t TelemetryConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(t.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type HTTPConfig struct {
	Bind      string `yaml:"bind"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path             string `yaml:"path"`
	RetentionMode    string `yaml:"retention_mode"`
	RetentionDays    int    `yaml:"retention_days"`
	MaxConversations int    `yaml:"max_conversations"`
	VacuumOnStart    bool   `yaml:"vacuum_on_start"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"` // empty => auto-detect from backend
	Temperature float64 `yaml:"temperature"`
}

type TTSConfig struct {
	Mode        string `yaml:"mode"` // mock, exec
	Command     string `yaml:"command"`
	CatalogPath string `yaml:"catalog_path"`
	Voice       string `yaml:"voice"`
	Lang        string `yaml:"lang"`
	SampleRate  int    `yaml:"sample_rate"`
}

type PlayerConfig struct {
	Mode    string `yaml:"mode"` // none, exec
	Command string `yaml:"command"`
}

type PipelineConfig struct {
	QueueSize      int `yaml:"queue_size"`
	ChunkTimeoutMS int `yaml:"chunk_timeout_ms"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	LLM         LLMConfig        `yaml:"llm"`
	TTS         TTSConfig        `yaml:"tts"`
	Player      PlayerConfig     `yaml:"player"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxd",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:      "0.0.0.0",
			Port:      5000,
			StaticDir: "./web",
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:             "./data/voxd-events.db",
			RetentionMode:    "session",
			RetentionDays:    30,
			MaxConversations: 10000,
		},
		LLM: LLMConfig{
			BaseURL:     "http://127.0.0.1:1234/v1",
			APIKey:      "lm-studio",
			Temperature: 0.7,
		},
		TTS: TTSConfig{
			Mode:        "mock",
			CatalogPath: "./VOICES.md",
			Voice:       "af_nicole",
			Lang:        "a",
			SampleRate:  24000,
		},
		Player: PlayerConfig{
			Mode:    "none",
			Command: "aplay -q -f S16_LE -r {rate} -c 1",
		},
		Pipeline: PipelineConfig{
			QueueSize:      64,
			ChunkTimeoutMS: 60000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOXD_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXD_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXD_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXD_HTTP_PORT")
	overrideString(&cfg.HTTP.StaticDir, "VOXD_HTTP_STATIC_DIR")
	overrideString(&cfg.Telemetry.LogLevel, "VOXD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXD_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "VOXD_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOXD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXD_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXD_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXD_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXD_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXD_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXD_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXD_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "VOXD_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VOXD_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VOXD_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxConversations, "VOXD_EVENT_STORE_MAX_CONVERSATIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VOXD_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.LLM.BaseURL, "VOXD_LLM_BASE_URL")
	overrideString(&cfg.LLM.APIKey, "VOXD_LLM_API_KEY")
	overrideString(&cfg.LLM.Model, "VOXD_LLM_MODEL")
	overrideFloat(&cfg.LLM.Temperature, "VOXD_LLM_TEMPERATURE")
	overrideString(&cfg.TTS.Mode, "VOXD_TTS_MODE")
	overrideString(&cfg.TTS.Command, "VOXD_TTS_COMMAND")
	overrideString(&cfg.TTS.CatalogPath, "VOXD_TTS_CATALOG_PATH")
	overrideString(&cfg.TTS.Voice, "VOXD_TTS_VOICE")
	overrideString(&cfg.TTS.Lang, "VOXD_TTS_LANG")
	overrideInt(&cfg.TTS.SampleRate, "VOXD_TTS_SAMPLE_RATE")
	overrideString(&cfg.Player.Mode, "VOXD_PLAYER_MODE")
	overrideString(&cfg.Player.Command, "VOXD_PLAYER_COMMAND")
	overrideInt(&cfg.Pipeline.QueueSize, "VOXD_PIPELINE_QUEUE_SIZE")
	overrideInt(&cfg.Pipeline.ChunkTimeoutMS, "VOXD_PIPELINE_CHUNK_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.LLM.BaseURL == "" {
		return errors.New("llm.base_url must not be empty")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Voice == "" {
		return errors.New("tts.voice must not be empty")
	}
	if cfg.TTS.Lang == "" {
		return errors.New("tts.lang must not be empty")
	}
	switch cfg.Player.Mode {
	case "none", "exec":
	default:
		return errors.New("player.mode must be one of none|exec")
	}
	if cfg.Player.Mode == "exec" && cfg.Player.Command == "" {
		return errors.New("player.command must be set when mode=exec")
	}
	if cfg.Pipeline.QueueSize <= 0 {
		return errors.New("pipeline.queue_size must be >= 1")
	}
	if cfg.Pipeline.ChunkTimeoutMS < 0 {
		return errors.New("pipeline.chunk_timeout_ms must be >= 0")
	}
	return nil
}
