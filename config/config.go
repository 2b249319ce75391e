// Package config loads callflow settings from defaults, an optional YAML
// file, a .env file and CALLFLOW_ environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/llm/openai"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CALLFLOW_LLM_API_KEY.
const EnvPrefix = "CALLFLOW"

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LLMConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Temperature       float64       `mapstructure:"temperature"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

type EngineConfig struct {
	ExternalRequestTimeout time.Duration `mapstructure:"external_request_timeout"`
	CheckpointDir          string        `mapstructure:"checkpoint_dir"`
	NodeLogDir             string        `mapstructure:"node_log_dir"`
}

type StoreConfig struct {
	Dir         string `mapstructure:"dir"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SquadConfig struct {
	HistoryLimit   int `mapstructure:"history_limit"`
	SummaryWindow  int `mapstructure:"summary_window"`
	TransferWindow int `mapstructure:"transfer_window"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// Config is the complete callflow configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Squad   SquadConfig   `mapstructure:"squad"`
	Server  ServerConfig  `mapstructure:"server"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			Timeout:     30 * time.Second,
			MaxRetries:  2,
		},
		Engine: EngineConfig{ExternalRequestTimeout: 10 * time.Second},
		Store:  StoreConfig{Dir: "."},
		Redis:  RedisConfig{KeyPrefix: "callflow:"},
		Squad: SquadConfig{
			HistoryLimit:   50,
			SummaryWindow:  20,
			TransferWindow: 10,
		},
		Server: ServerConfig{Addr: ":8080", MetricsPath: "/metrics"},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)
	v.SetDefault("llm.requests_per_second", cfg.LLM.RequestsPerSecond)
	v.SetDefault("llm.max_retries", cfg.LLM.MaxRetries)

	v.SetDefault("engine.external_request_timeout", cfg.Engine.ExternalRequestTimeout)
	v.SetDefault("engine.checkpoint_dir", cfg.Engine.CheckpointDir)
	v.SetDefault("engine.node_log_dir", cfg.Engine.NodeLogDir)

	v.SetDefault("store.dir", cfg.Store.Dir)
	v.SetDefault("store.postgres_dsn", cfg.Store.PostgresDSN)

	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.key_prefix", cfg.Redis.KeyPrefix)

	v.SetDefault("squad.history_limit", cfg.Squad.HistoryLimit)
	v.SetDefault("squad.summary_window", cfg.Squad.SummaryWindow)
	v.SetDefault("squad.transfer_window", cfg.Squad.TransferWindow)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.metrics_path", cfg.Server.MetricsPath)
}

// Load reads the configuration. path names a YAML file and may be empty.
// Variables from envFiles (".env" when none are given) are exported to the
// process environment first; missing env files are skipped.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg := Default()
	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks the configuration for values no component accepts.
func (c *Config) Validate() error {
	if _, ok := logLevels[strings.ToLower(c.Logging.Level)]; !ok {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm timeout must not be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2")
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("llm requests per second must not be negative")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm max retries must not be negative")
	}
	if c.Engine.ExternalRequestTimeout < 0 {
		return fmt.Errorf("external request timeout must not be negative")
	}
	if c.Squad.HistoryLimit < 0 || c.Squad.SummaryWindow < 0 || c.Squad.TransferWindow < 0 {
		return fmt.Errorf("squad windows must not be negative")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	return nil
}

// Logger returns a logger writing to w as configured.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level := logLevels[strings.ToLower(c.Logging.Level)]
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return callflow.NewLoggerWithLevel(w, level)
}

// OpenAI returns the provider configuration.
func (c *Config) OpenAI() openai.Config {
	return openai.Config{
		APIKey:            c.LLM.APIKey,
		BaseURL:           c.LLM.BaseURL,
		Model:             c.LLM.Model,
		Timeout:           c.LLM.Timeout,
		RequestsPerSecond: c.LLM.RequestsPerSecond,
		MaxRetries:        c.LLM.MaxRetries,
	}
}
