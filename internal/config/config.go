package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Audio      AudioConfig      `yaml:"audio"`
	Temp       TempConfig       `yaml:"temp"`
	Store      StoreConfig      `yaml:"store"`
	LogLevel   string           `yaml:"log_level"`
}

// ServerConfig holds HTTP listener and upload settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	MaxUploadMB       int64         `yaml:"max_upload_mb"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// TranscribeConfig holds speech-to-text backend settings.
type TranscribeConfig struct {
	Backend           string `yaml:"backend"` // "whisper" or "openai"
	ModelPath         string `yaml:"model_path"`
	FallbackModelPath string `yaml:"fallback_model_path"`
	Language          string `yaml:"language"`
	Threads           uint   `yaml:"threads"`
	MaxConcurrent     int64  `yaml:"max_concurrent"`
	CleanOutput       bool   `yaml:"clean_output"`
}

// OpenAIConfig holds settings for the OpenAI-compatible remote backend.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AudioConfig holds decoding settings.
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	Normalize  bool   `yaml:"normalize"`
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// TempConfig controls where uploads are staged and how they are removed.
type TempConfig struct {
	Dir           string        `yaml:"dir"`
	DeleteRetries int           `yaml:"delete_retries"`
	DeleteDelay   time.Duration `yaml:"delete_delay"`
}

// StoreConfig selects the transcription history backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite", "postgres" or "none"
	DSN    string `yaml:"dsn"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB * 1024 * 1024
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gostt-server")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory holding models and the history database.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "gostt-server")
}

// DefaultModelsDir returns the directory downloaded models are stored in.
func DefaultModelsDir() string {
	return filepath.Join(DefaultDataDir(), "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              "127.0.0.1:5000",
			MaxUploadMB:       25,
			AllowedExtensions: []string{".wav", ".mp3", ".flac", ".m4a", ".opus", ".ogg"},
			CORSOrigins:       []string{"*"},
			ReadTimeout:       2 * time.Minute,
			WriteTimeout:      10 * time.Minute,
			ShutdownTimeout:   30 * time.Second,
		},
		Transcribe: TranscribeConfig{
			Backend:           "whisper",
			ModelPath:         filepath.Join(DefaultModelsDir(), "ggml-small.en.bin"),
			FallbackModelPath: filepath.Join(DefaultModelsDir(), "ggml-base.en.bin"),
			Language:          "en",
			MaxConcurrent:     1,
			CleanOutput:       true,
		},
		OpenAI: OpenAIConfig{
			Model: "whisper-1",
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Normalize:  true,
			FFmpegPath: "ffmpeg",
		},
		Temp: TempConfig{
			DeleteRetries: 5,
			DeleteDelay:   100 * time.Millisecond,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(DefaultDataDir(), "history.db"),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.expandPaths()

	return cfg, nil
}

// LoadEnv loads a .env file from the working directory when one exists and
// applies GOSTT_* overrides on top of cfg.
func LoadEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	overrides := []struct {
		key string
		dst *string
	}{
		{"GOSTT_ADDR", &cfg.Server.Addr},
		{"GOSTT_BACKEND", &cfg.Transcribe.Backend},
		{"GOSTT_MODEL_PATH", &cfg.Transcribe.ModelPath},
		{"GOSTT_FALLBACK_MODEL_PATH", &cfg.Transcribe.FallbackModelPath},
		{"GOSTT_LANGUAGE", &cfg.Transcribe.Language},
		{"GOSTT_LOG_LEVEL", &cfg.LogLevel},
		{"GOSTT_STORE_DRIVER", &cfg.Store.Driver},
		{"GOSTT_STORE_DSN", &cfg.Store.DSN},
		{"GOSTT_TEMP_DIR", &cfg.Temp.Dir},
		{"GOSTT_FFMPEG_PATH", &cfg.Audio.FFmpegPath},
		{"OPENAI_API_KEY", &cfg.OpenAI.APIKey},
		{"OPENAI_BASE_URL", &cfg.OpenAI.BaseURL},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok && v != "" {
			*o.dst = v
		}
	}

	// DATABASE_URL is the conventional postgres variable; it only applies to
	// the postgres driver so a stray value does not clobber the sqlite path.
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Store.Driver == "postgres" {
		cfg.Store.DSN = v
	}

	cfg.expandPaths()
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be > 0")
	}
	if len(c.Server.AllowedExtensions) == 0 {
		return fmt.Errorf("server.allowed_extensions must not be empty")
	}
	for _, ext := range c.Server.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("server.allowed_extensions: %q must start with a dot", ext)
		}
	}

	switch c.Transcribe.Backend {
	case "whisper":
		if c.Transcribe.ModelPath == "" {
			return fmt.Errorf("transcribe.model_path must not be empty")
		}
	case "openai":
		if c.OpenAI.APIKey == "" && c.OpenAI.BaseURL == "" {
			return fmt.Errorf("openai.api_key must be set for the openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("openai.model must not be empty")
		}
	default:
		return fmt.Errorf("transcribe.backend must be \"whisper\" or \"openai\", got %q", c.Transcribe.Backend)
	}

	if c.Transcribe.MaxConcurrent <= 0 {
		return fmt.Errorf("transcribe.max_concurrent must be > 0")
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Temp.DeleteRetries <= 0 {
		return fmt.Errorf("temp.delete_retries must be > 0")
	}
	if c.Temp.DeleteDelay < 0 {
		return fmt.Errorf("temp.delete_delay must not be negative")
	}

	switch c.Store.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must not be empty for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be sqlite, postgres, or none, got %q", c.Store.Driver)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// AllowsExtension reports whether ext (with leading dot) is an accepted upload type.
// The comparison is case-insensitive.
func (s ServerConfig) AllowsExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range s.AllowedExtensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

// defaultConfigTemplate is written by WriteDefault. Keep in sync with Default().
const defaultConfigTemplate = `# gostt-server configuration
# Values left out fall back to built-in defaults.

server:
  addr: "127.0.0.1:5000"
  max_upload_mb: 25
  allowed_extensions: [".wav", ".mp3", ".flac", ".m4a", ".opus", ".ogg"]
  cors_origins: ["*"]
  read_timeout: 2m
  write_timeout: 10m
  shutdown_timeout: 30s

transcribe:
  backend: whisper            # whisper | openai
  model_path: ~/.local/share/gostt-server/models/ggml-small.en.bin
  fallback_model_path: ~/.local/share/gostt-server/models/ggml-base.en.bin
  language: en
  max_concurrent: 1
  clean_output: true

openai:
  model: whisper-1
  # api_key: set OPENAI_API_KEY instead of committing it here

audio:
  sample_rate: 16000
  normalize: true
  ffmpeg_path: ffmpeg

temp:
  delete_retries: 5
  delete_delay: 100ms

store:
  driver: sqlite              # sqlite | postgres | none
  dsn: ~/.local/share/gostt-server/history.db

log_level: info
`

// WriteDefault writes the commented default config to DefaultConfigPath.
// It returns the path written, or ("", nil) when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}

func (c *Config) expandPaths() {
	c.Transcribe.ModelPath = expandTilde(c.Transcribe.ModelPath)
	c.Transcribe.FallbackModelPath = expandTilde(c.Transcribe.FallbackModelPath)
	c.Temp.Dir = expandTilde(c.Temp.Dir)
	if c.Store.Driver == "sqlite" {
		c.Store.DSN = expandTilde(c.Store.DSN)
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
