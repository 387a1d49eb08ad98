package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type ContentConfig struct {
	Root      string `mapstructure:"root"`
	Catalog   string `mapstructure:"catalog"`
	Notebooks string `mapstructure:"notebooks"`
}

type RunnerConfig struct {
	Python         string        `mapstructure:"python"`
	Backend        string        `mapstructure:"backend"` // local or docker
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	MaxTimeout     time.Duration `mapstructure:"max_timeout"`
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	MaxMemoryMB    int           `mapstructure:"max_memory_mb"`
	MaxOutputKB    int           `mapstructure:"max_output_kb"`
	RunAsUID       int           `mapstructure:"run_as_uid"`
	RunAsGID       int           `mapstructure:"run_as_gid"`
	DockerImage    string        `mapstructure:"docker_image"`
}

type LimitsConfig struct {
	GlobalRPS   float64 `mapstructure:"global_rps"`
	ClientRPS   float64 `mapstructure:"client_rps"`
	ClientBurst int     `mapstructure:"client_burst"`
	// TrustedProxies may set X-Forwarded-For. Empty means use the peer address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Content ContentConfig `mapstructure:"content"`
	Runner  RunnerConfig  `mapstructure:"runner"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

// Load reads pylearn.yaml from the working directory or $HOME/.pylearn.
// A missing file is not an error; defaults and PYLEARN_* env vars apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("pylearn")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.pylearn")
	return load(v)
}

// LoadFile reads an explicit config file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("PYLEARN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("content.root", "./content")
	v.SetDefault("content.catalog", "catalog.yaml")
	v.SetDefault("content.notebooks", "./notebooks")

	v.SetDefault("runner.python", "python3")
	v.SetDefault("runner.backend", "local")
	v.SetDefault("runner.default_timeout", 5*time.Second)
	v.SetDefault("runner.max_timeout", 30*time.Second)
	v.SetDefault("runner.workers", 4)
	v.SetDefault("runner.queue_size", 16)
	v.SetDefault("runner.max_memory_mb", 256)
	v.SetDefault("runner.max_output_kb", 256)
	v.SetDefault("runner.run_as_uid", 0)
	v.SetDefault("runner.run_as_gid", 0)
	v.SetDefault("runner.docker_image", "python:3.12-slim")

	v.SetDefault("limits.global_rps", 50.0)
	v.SetDefault("limits.client_rps", 5.0)
	v.SetDefault("limits.client_burst", 10)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1/")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".pylearn", "pylearn.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

// Validate rejects settings the runner and server cannot work with.
func (c *Config) Validate() error {
	switch c.Runner.Backend {
	case "local", "docker":
	default:
		return fmt.Errorf("unknown runner backend: %s", c.Runner.Backend)
	}
	if c.Runner.Workers <= 0 {
		return fmt.Errorf("runner.workers must be positive, got %d", c.Runner.Workers)
	}
	if c.Runner.QueueSize < 0 {
		return fmt.Errorf("runner.queue_size must not be negative, got %d", c.Runner.QueueSize)
	}
	if c.Runner.DefaultTimeout <= 0 {
		return fmt.Errorf("runner.default_timeout must be positive")
	}
	if c.Runner.MaxTimeout < c.Runner.DefaultTimeout {
		return fmt.Errorf("runner.max_timeout (%s) is below runner.default_timeout (%s)",
			c.Runner.MaxTimeout, c.Runner.DefaultTimeout)
	}
	return nil
}

// CatalogPath returns the catalog file location, resolved against the content root.
func (c *Config) CatalogPath() string {
	if filepath.IsAbs(c.Content.Catalog) {
		return c.Content.Catalog
	}
	return filepath.Join(c.Content.Root, c.Content.Catalog)
}

// expandEnv resolves values of the form ${VAR}.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}
