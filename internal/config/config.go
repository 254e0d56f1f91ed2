package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" env:"DOCCHAT_ADDR"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"DOCCHAT_REQUEST_TIMEOUT"` // non-streaming routes
	CORSOrigins    []string      `yaml:"cors_origins" env:"DOCCHAT_CORS_ORIGINS" envSeparator:","`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling"`                // enable sampling in prod
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"` // empty disables the parse cache
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	OpenAIKey       string        `yaml:"openai_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	GeminiKey       string        `yaml:"gemini_key" env:"GEMINI_API_KEY"`
	GeminiURL       string        `yaml:"gemini_url"`
	DefaultModel    string        `yaml:"default_model" env:"DEFAULT_MODEL"`
	Models          []string      `yaml:"models"` // advertised on /api/models
	Timeout         time.Duration `yaml:"timeout"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI streams
}

type ChatConfig struct {
	SystemPrompt     string        `yaml:"system_prompt" env:"DOCCHAT_SYSTEM_PROMPT"`
	MaxTokens        int           `yaml:"max_tokens"`
	Temperature      float64       `yaml:"temperature"`
	TypingDelay      time.Duration `yaml:"typing_delay" env:"DOCCHAT_TYPING_DELAY"`
	KeepAlive        time.Duration `yaml:"keep_alive"`
	ContextFileRunes int           `yaml:"context_file_runes"`
}

type ParserConfig struct {
	DocumentURL string        `yaml:"document_url" env:"DOC_PARSE_URL"`
	OCRURL      string        `yaml:"ocr_url" env:"OCR_URL"`
	APIKey      string        `yaml:"api_key" env:"PARSE_API_KEY"`
	Timeout     time.Duration `yaml:"timeout"`
}

type FilesConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	MaxBatchFiles  int   `yaml:"max_batch_files"`
}

type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Redis  RedisConfig  `yaml:"redis"`
	AI     AIConfig     `yaml:"ai"`
	Chat   ChatConfig   `yaml:"chat"`
	Parser ParserConfig `yaml:"parser"`
	Files  FilesConfig  `yaml:"files"`

	Runtime RuntimeConfig `yaml:"-"`
}

// DefaultEnvFile is the dotenv file read before the environment is applied.
func DefaultEnvFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".openai_env"
	}
	return filepath.Join(home, ".openai_env")
}

// LoadConfig reads the YAML file at path (a missing file is fine), loads
// envFiles into the process environment without overriding what is already
// set, applies env overrides and fills defaults.
func LoadConfig(path string, dev bool, envFiles ...string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:5000"
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "DeepSeek-V3-Fast"
	}
	if cfg.AI.OpenAIBaseURL == "" {
		cfg.AI.OpenAIBaseURL = "https://www.sophnet.com/api/open-apis/v1"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 5 * time.Minute
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}

	if cfg.Chat.SystemPrompt == "" {
		cfg.Chat.SystemPrompt = "你是一个智能助手"
	}
	if cfg.Chat.MaxTokens <= 0 {
		cfg.Chat.MaxTokens = 4096
	}
	if cfg.Chat.Temperature <= 0 {
		cfg.Chat.Temperature = 0.7
	}
	if cfg.Chat.TypingDelay < 0 {
		cfg.Chat.TypingDelay = 0
	}
	if cfg.Chat.KeepAlive <= 0 {
		cfg.Chat.KeepAlive = 10 * time.Second
	}
	if cfg.Chat.ContextFileRunes <= 0 {
		cfg.Chat.ContextFileRunes = 1000
	}

	if cfg.Parser.Timeout <= 0 {
		cfg.Parser.Timeout = 60 * time.Second
	}
	if cfg.Files.MaxUploadBytes <= 0 {
		cfg.Files.MaxUploadBytes = 20 << 20
	}
	if cfg.Files.MaxBatchFiles <= 0 {
		cfg.Files.MaxBatchFiles = 10
	}
}

// Validate reports configuration that cannot serve traffic. In dev mode a
// missing provider key is allowed (the noop streamer is used).
func (c *Config) Validate() error {
	if c.Chat.Temperature > 2 {
		return errors.New("chat.temperature must be within (0, 2]")
	}
	if !c.Runtime.Dev && c.AI.OpenAIKey == "" && c.AI.GeminiKey == "" {
		return errors.New("no AI provider configured: set ai.openai_key (OPENAI_API_KEY) or ai.gemini_key")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}
