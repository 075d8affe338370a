// Package config loads service configuration from a YAML file, WEBAPI_
// environment variables and command-line overrides, in that precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "config.yaml"

// EnvPrefix prefixes every environment override, e.g. WEBAPI_SERVER__PORT.
const EnvPrefix = "WEBAPI_"

type Config struct {
	Server        ServerConfig            `koanf:"server"`
	App           AppConfig               `koanf:"app"`
	Log           LogConfig               `koanf:"log"`
	Pipeline      PipelineConfig          `koanf:"pipeline"`
	Interceptors  []InterceptorConfig     `koanf:"interceptors"`
	Clients       map[string]ClientConfig `koanf:"clients"`
	Storage       StorageConfig           `koanf:"storage"`
	Sample        SampleConfig            `koanf:"sample"`
	SampleSetting SampleSettingConfig     `koanf:"sample_setting"`
	Options       Options                 `koanf:"options"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Environment string `koanf:"environment"` // Development, Staging, Production, UAT
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

type PipelineConfig struct {
	UnwindOnStop bool `koanf:"unwind_on_stop"`
	CaptureLimit int  `koanf:"capture_limit"` // bytes of response body kept for post-hooks
	Tracing      bool `koanf:"tracing"`
}

// InterceptorConfig is one entry of the ordered interceptor list.
type InterceptorConfig struct {
	Name      string   `koanf:"name"`
	Kind      string   `koanf:"kind"` // defaults to request-url
	Enabled   bool     `koanf:"enabled"`
	Title     string   `koanf:"title"`
	Methods   []string `koanf:"methods"`    // allow-methods
	KeyHashes []string `koanf:"key_hashes"` // api-key, hex SHA-256
}

type ClientConfig struct {
	BaseURL        string            `koanf:"base_url"`
	Headers        map[string]string `koanf:"headers"`
	Timeout        time.Duration     `koanf:"timeout"`
	RequireHeaders []string          `koanf:"require_headers"`
	BlockPrivate   bool              `koanf:"block_private"` // refuse loopback and private addresses
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite, none
	SQLite SQLiteConfig `koanf:"sqlite"`
	Memory MemoryConfig `koanf:"memory"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type MemoryConfig struct {
	Capacity int `koanf:"capacity"`
}

type SampleConfig struct {
	Seed        int64  `koanf:"seed"` // 0 seeds from the clock
	GitHubOwner string `koanf:"github_owner"`
	GitHubRepo  string `koanf:"github_repo"`
	WeatherURL  string `koanf:"weather_url"`
}

type SampleSettingConfig struct {
	Key1 string `koanf:"key1"`
	Key2 string `koanf:"key2"`
}

// Options is the hot-reloadable section handed to request handlers.
type Options struct {
	Option1 string `koanf:"option1"`
	Option2 int    `koanf:"option2"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads DefaultPath and the environment.
func Load() (*Config, error) {
	return LoadFrom(DefaultPath, nil)
}

// LoadFrom reads the YAML file at path (a missing file is not an error),
// then WEBAPI_ environment variables, then key=value overrides.
func LoadFrom(path string, overrides []string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid override %q: want key=value", o)
		}
		if err := k.Set(strings.TrimSpace(key), value); err != nil {
			return nil, fmt.Errorf("apply override %q: %w", o, err)
		}
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Interceptors {
		if cfg.Interceptors[i].Kind == "" {
			cfg.Interceptors[i].Kind = "request-url"
		}
		for j, h := range cfg.Interceptors[i].KeyHashes {
			cfg.Interceptors[i].KeyHashes[j] = substituteEnvVars(h)
		}
	}

	for name, c := range cfg.Clients {
		c.BaseURL = substituteEnvVars(c.BaseURL)
		for h, v := range c.Headers {
			c.Headers[h] = substituteEnvVars(v)
		}
		cfg.Clients[name] = c
	}
	cfg.Sample.WeatherURL = substituteEnvVars(cfg.Sample.WeatherURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":              8080,
		"server.shutdown_timeout":  "20s",
		"server.request_timeout":   "60s",
		"app.name":                 "webapi-sample",
		"app.environment":          "Production",
		"log.level":                "info",
		"storage.type":             "memory",
		"storage.sqlite.path":      "./data/journal.db",
		"storage.memory.capacity":  1024,
		"sample.github_owner":      "aspnet",
		"sample.github_repo":       "AspNetCore.Docs",
		"sample.weather_url":       "http://weather.livedoor.com/forecast/webservice/json/v1?city=270000",
		"clients.github.base_url":  "https://api.github.com/",
		"clients.weather.base_url": "http://weather.livedoor.com/forecast/webservice/json/v1?city=270000",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
	// The built-in interceptor mirrors the startup filter that logs request URLs.
	if !k.Exists("interceptors") {
		k.Set("interceptors", []any{
			map[string]any{"name": "before", "kind": "request-url", "enabled": true, "title": "before"},
		})
	}
}

// Validate reports configuration errors that would otherwise surface at
// assembly time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Type {
	case "memory", "sqlite", "none":
	default:
		return fmt.Errorf("storage.type %q: want memory, sqlite or none", c.Storage.Type)
	}
	seen := make(map[string]bool, len(c.Interceptors))
	for i, ic := range c.Interceptors {
		if ic.Name == "" {
			return fmt.Errorf("interceptors[%d]: name is required", i)
		}
		if seen[ic.Name] {
			return fmt.Errorf("interceptors[%d]: duplicate name %q", i, ic.Name)
		}
		seen[ic.Name] = true
	}
	return nil
}

// EnvironmentMode folds the configured environment into the three modes
// the service distinguishes.
func (c *Config) EnvironmentMode() string {
	switch strings.ToLower(c.App.Environment) {
	case "production", "staging", "uat":
		return "Production"
	case "development":
		return "Development"
	default:
		return "Unknown"
	}
}

// IsDevelopment reports whether detailed errors may be shown to clients.
func (c *Config) IsDevelopment() bool {
	return c.EnvironmentMode() == "Development"
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
