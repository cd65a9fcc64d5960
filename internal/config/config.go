package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/menta2k/image-captioner/pkg/types"
)

// EnvPrefix prefixes environment overrides, e.g. CAPTIONER_MODEL_REGION
const EnvPrefix = "CAPTIONER"

// Supported model backends
const (
	BackendBedrock   = "bedrock"
	BackendAnthropic = "anthropic"
	BackendOllama    = "ollama"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server" json:"server"`
	Model   ModelConfig   `mapstructure:"model" json:"model"`
	Encoder EncoderConfig `mapstructure:"encoder" json:"encoder"`
	Log     LogConfig     `mapstructure:"log" json:"log"`
}

// ServerConfig holds configuration for the web UI
type ServerConfig struct {
	Addr           string  `mapstructure:"addr" json:"addr"`
	MaxUploadBytes int     `mapstructure:"max_upload_bytes" json:"max_upload_bytes"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"` // 0 disables throttling
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`
}

// ModelConfig holds configuration for the remote model endpoint
type ModelConfig struct {
	Backend         string        `mapstructure:"backend" json:"backend"`
	Region          string        `mapstructure:"region" json:"region"`
	ModelID         string        `mapstructure:"model_id" json:"model_id"`
	MaxTokens       int           `mapstructure:"max_tokens" json:"max_tokens"`
	Instruction     string        `mapstructure:"instruction" json:"instruction"`
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout"`
	AnthropicURL    string        `mapstructure:"anthropic_url" json:"anthropic_url"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key" json:"-"`
	OllamaURL       string        `mapstructure:"ollama_url" json:"ollama_url"`
}

// EncoderConfig holds configuration for the payload sent to the model
type EncoderConfig struct {
	Format       string `mapstructure:"format" json:"format"`
	MaxDimension int    `mapstructure:"max_dimension" json:"max_dimension"`
	JPEGQuality  int    `mapstructure:"jpeg_quality" json:"jpeg_quality"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8501",
			MaxUploadBytes: 20 << 20,
			RateLimitRPS:   0,
			RateLimitBurst: 1,
		},
		Model: ModelConfig{
			Backend:      BackendBedrock,
			Region:       "us-east-1",
			ModelID:      "us.anthropic.claude-3-5-sonnet-20241022-v2:0",
			MaxTokens:    4096,
			Instruction:  "Provide a caption for this image",
			Timeout:      5 * time.Minute,
			AnthropicURL: "https://api.anthropic.com",
			OllamaURL:    "http://localhost:11434",
		},
		Encoder: EncoderConfig{
			Format:       string(types.PNG),
			MaxDimension: 0,
			JPEGQuality:  90,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional file and the
// environment. A .env file in the working directory is loaded first when
// present. An empty path falls back to GetConfigPath when that file exists.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if p := GetConfigPath(); fileExists(p) {
			path = p
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Model.AnthropicAPIKey == "" {
		config.Model.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFromFile loads configuration from a JSON or YAML file
func LoadFromFile(filename string) (*Config, error) {
	if !fileExists(filename) {
		return nil, fmt.Errorf("failed to read config file: %s does not exist", filename)
	}
	return Load(filename)
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("server.rate_limit_rps", d.Server.RateLimitRPS)
	v.SetDefault("server.rate_limit_burst", d.Server.RateLimitBurst)

	v.SetDefault("model.backend", d.Model.Backend)
	v.SetDefault("model.region", d.Model.Region)
	v.SetDefault("model.model_id", d.Model.ModelID)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)
	v.SetDefault("model.instruction", d.Model.Instruction)
	v.SetDefault("model.timeout", d.Model.Timeout)
	v.SetDefault("model.anthropic_url", d.Model.AnthropicURL)
	v.SetDefault("model.anthropic_api_key", d.Model.AnthropicAPIKey)
	v.SetDefault("model.ollama_url", d.Model.OllamaURL)

	v.SetDefault("encoder.format", d.Encoder.Format)
	v.SetDefault("encoder.max_dimension", d.Encoder.MaxDimension)
	v.SetDefault("encoder.jpeg_quality", d.Encoder.JPEGQuality)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// SaveToFile saves configuration to a JSON file. The API key is never written.
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps cannot be negative")
	}

	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("server.rate_limit_burst must be at least 1 when throttling is enabled")
	}

	switch c.Model.Backend {
	case BackendBedrock:
		if c.Model.Region == "" {
			return fmt.Errorf("model.region cannot be empty for the bedrock backend")
		}
	case BackendAnthropic:
		if c.Model.AnthropicAPIKey == "" {
			return fmt.Errorf("model.anthropic_api_key (or ANTHROPIC_API_KEY) is required for the anthropic backend")
		}
	case BackendOllama:
		if c.Model.OllamaURL == "" {
			return fmt.Errorf("model.ollama_url cannot be empty for the ollama backend")
		}
	default:
		return fmt.Errorf("model.backend must be one of bedrock, anthropic, ollama (got %q)", c.Model.Backend)
	}

	if c.Model.ModelID == "" {
		return fmt.Errorf("model.model_id cannot be empty")
	}

	if c.Model.MaxTokens < 1 {
		return fmt.Errorf("model.max_tokens must be positive")
	}

	if strings.TrimSpace(c.Model.Instruction) == "" {
		return fmt.Errorf("model.instruction cannot be empty")
	}

	if c.Model.Timeout < 0 {
		return fmt.Errorf("model.timeout cannot be negative")
	}

	if _, ok := types.ParseRasterFormat(c.Encoder.Format); !ok {
		return fmt.Errorf("encoder.format must be png, jpeg or webp (got %q)", c.Encoder.Format)
	}

	if c.Encoder.MaxDimension < 0 {
		return fmt.Errorf("encoder.max_dimension cannot be negative")
	}

	if c.Encoder.JPEGQuality < 1 || c.Encoder.JPEGQuality > 100 {
		return fmt.Errorf("encoder.jpeg_quality must be between 1 and 100")
	}

	return nil
}

// RasterFormat returns the parsed encoder format; call after Validate
func (c *Config) RasterFormat() types.RasterFormat {
	f, _ := types.ParseRasterFormat(c.Encoder.Format)
	return f
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-captioner", "config.json")
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
