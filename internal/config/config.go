package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/garnizeh/estate/internal/assistant"
	"github.com/garnizeh/estate/pkg/ollama"
)

const (
	EnvDevelopment = "development"

	// DefaultJWTSecret is accepted only in development.
	DefaultJWTSecret = "supersecretkey"
)

type Config struct {
	Env           string           `yaml:"env"`
	Addr          string           `yaml:"addr"`
	LogLevel      string           `yaml:"log_level"`
	JWTSecret     string           `yaml:"jwt_secret"`
	TokenDuration time.Duration    `yaml:"token_duration"`
	APITimeout    time.Duration    `yaml:"timeout"`
	DatabasePath  string           `yaml:"database_path"`
	Redis         RedisConfig      `yaml:"redis"`
	Ollama        ollama.Config    `yaml:"ollama"`
	Assistant     assistant.Config `yaml:"assistant"`
	Jobs          JobsConfig       `yaml:"jobs"`
}

// RedisConfig enables the listing query cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type JobsConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// Default returns the configuration used before any source is applied.
func Default() *Config {
	return &Config{
		Env:           EnvDevelopment,
		Addr:          ":8080",
		LogLevel:      "info",
		JWTSecret:     DefaultJWTSecret,
		TokenDuration: 24 * time.Hour,
		APITimeout:    60 * time.Second,
		DatabasePath:  "estate.db",
		Redis:         RedisConfig{TTL: 5 * time.Minute},
		Ollama:        ollama.DefaultConfig(),
		Assistant:     assistant.DefaultConfig(),
		Jobs:          JobsConfig{Workers: 2, PollInterval: time.Second, MaxAttempts: 5},
	}
}

// LoadConfig builds the configuration from defaults, a .env file in the
// working directory (optional), ESTATE_* environment variables and finally
// the YAML file at path (optional). Later sources win.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("ESTATE_ENV", &c.Env)
	str("ESTATE_ADDR", &c.Addr)
	str("ESTATE_LOG_LEVEL", &c.LogLevel)
	str("ESTATE_JWT_SECRET", &c.JWTSecret)
	dur("ESTATE_TOKEN_DURATION", &c.TokenDuration)
	dur("ESTATE_TIMEOUT", &c.APITimeout)
	str("ESTATE_DATABASE_PATH", &c.DatabasePath)
	str("ESTATE_REDIS_ADDR", &c.Redis.Addr)
	str("ESTATE_REDIS_PASSWORD", &c.Redis.Password)
	num("ESTATE_REDIS_DB", &c.Redis.DB)
	dur("ESTATE_REDIS_TTL", &c.Redis.TTL)
	str("ESTATE_OLLAMA_URL", &c.Ollama.BaseURL)
	dur("ESTATE_OLLAMA_TIMEOUT", &c.Ollama.Timeout)
	str("ESTATE_CHAT_MODEL", &c.Assistant.ChatModel)
	str("ESTATE_EMBED_MODEL", &c.Assistant.EmbedModel)
	num("ESTATE_JOB_WORKERS", &c.Jobs.Workers)
	return errors.Join(errs...)
}

// Validate rejects unusable settings and fills the Ollama model list from the
// assistant models when it is empty.
func (c *Config) Validate() error {
	var errs []error
	if c.Env == "" {
		c.Env = EnvDevelopment
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	} else if c.JWTSecret == DefaultJWTSecret && c.Env != EnvDevelopment {
		errs = append(errs, fmt.Errorf("jwt_secret must be changed when env is %q", c.Env))
	}
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.TokenDuration <= 0 {
		errs = append(errs, errors.New("token_duration must be positive"))
	}
	if c.APITimeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.Redis.Addr != "" && c.Redis.TTL <= 0 {
		errs = append(errs, errors.New("redis.ttl must be positive"))
	}
	if _, err := url.ParseRequestURI(c.Ollama.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("ollama.base_url: %w", err))
	}
	if c.Assistant.ChatModel == "" || c.Assistant.EmbedModel == "" {
		errs = append(errs, errors.New("assistant.chat_model and assistant.embed_model are required"))
	}
	if c.Assistant.Timeout <= 0 {
		errs = append(errs, errors.New("assistant.timeout must be positive"))
	}
	if c.Jobs.Workers < 0 {
		errs = append(errs, errors.New("jobs.workers must not be negative"))
	}
	if c.Jobs.MaxAttempts < 1 {
		errs = append(errs, errors.New("jobs.max_attempts must be at least 1"))
	}
	if c.Jobs.PollInterval <= 0 {
		errs = append(errs, errors.New("jobs.poll_interval must be positive"))
	}
	if len(c.Ollama.Models) == 0 {
		c.Ollama.Models = []string{c.Assistant.ChatModel, c.Assistant.EmbedModel}
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Development reports whether the service runs in the development environment.
func (c *Config) Development() bool { return c.Env == EnvDevelopment }
