// Package config loads SDK and tool configuration from YAML files and the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tidemark-io/tidemark-go/pkg/client"
	"github.com/tidemark-io/tidemark-go/pkg/logging"
	"github.com/tidemark-io/tidemark-go/pkg/pagination"
)

// EnvPrefix is the prefix for environment variable overrides. Nested keys use
// a double underscore: TIDEMARK_API__API_KEY sets api.api_key.
const EnvPrefix = "TIDEMARK_"

// Config is the top-level configuration for the SDK and its tools.
type Config struct {
	API     APIConfig     `koanf:"api"`
	Fetch   FetchConfig   `koanf:"fetch"`
	Logging LoggingConfig `koanf:"logging"`
}

// APIConfig configures the HTTP client.
type APIConfig struct {
	BaseURL     string        `koanf:"base_url"`
	Project     string        `koanf:"project"`
	APIKey      string        `koanf:"api_key"`
	ClientName  string        `koanf:"client_name"`
	Timeout     time.Duration `koanf:"timeout"`
	DisableGzip bool          `koanf:"disable_gzip"`
}

// FetchConfig configures paged datapoint fetching.
type FetchConfig struct {
	MaxWorkers int           `koanf:"max_workers"`
	Timeout    time.Duration `koanf:"timeout"`
	Protobuf   bool          `koanf:"protobuf"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if strings.TrimSpace(c.API.Project) == "" {
		return fmt.Errorf("api.project is required")
	}
	if strings.TrimSpace(c.API.APIKey) == "" {
		return fmt.Errorf("api.api_key is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0")
	}

	if c.Fetch.MaxWorkers <= 0 {
		return fmt.Errorf("fetch.max_workers must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}

	return nil
}

// Load parses config from defaults, an optional YAML file, and TIDEMARK_*
// environment variables (in ascending precedence), then validates it. A .env
// file in the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	k := koanf.New(".")

	fetchDefaults := pagination.DefaultConfig()
	defaults := map[string]interface{}{
		"api.base_url":      client.DefaultBaseURL,
		"api.project":       "",
		"api.api_key":       "",
		"api.client_name":   "",
		"api.timeout":       "30s",
		"api.disable_gzip":  false,
		"fetch.max_workers": fetchDefaults.MaxWorkers,
		"fetch.timeout":     fetchDefaults.Timeout.String(),
		"fetch.protobuf":    true,
		"logging.level":     "info",
		"logging.pretty":    false,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ClientConfig maps the api section onto a client configuration.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:     c.API.BaseURL,
		Project:     c.API.Project,
		APIKey:      c.API.APIKey,
		ClientName:  c.API.ClientName,
		Timeout:     c.API.Timeout,
		DisableGzip: c.API.DisableGzip,
	}
}

// PaginationConfig maps the fetch section onto a parallel fetch configuration.
func (c *Config) PaginationConfig() pagination.Config {
	return pagination.Config{
		MaxWorkers: c.Fetch.MaxWorkers,
		Timeout:    c.Fetch.Timeout,
	}
}

// LoggerConfig maps the logging section onto a logger configuration.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.Logging.Level),
		Pretty: c.Logging.Pretty,
		Output: os.Stderr,
	}
}
