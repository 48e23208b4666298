// Package config loads unsafe-ls settings from a YAML file, a .env file, and
// the environment. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = ".unsafe-ls.yaml"

// Environment variables that override the config file.
const (
	EnvFormat   = "UNSAFE_LS_FORMAT"
	EnvDB       = "UNSAFE_LS_DB"
	EnvWorkers  = "UNSAFE_LS_WORKERS"
	EnvLogLevel = "UNSAFE_LS_LOG_LEVEL"
)

// Output formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

type Config struct {
	Format         string   `yaml:"format"`
	DB             string   `yaml:"db"`
	Workers        int      `yaml:"workers"`
	Lines          bool     `yaml:"lines"`
	Hints          []string `yaml:"hints"`
	NoDefaultHints bool     `yaml:"no_default_hints"`
	Logger         Logger   `yaml:"logger"`
}

type Logger struct {
	Level      string `yaml:"level"`
	JSONFormat bool   `yaml:"json_format"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{Format: FormatText}
}

// Load reads path, or DefaultPath when path is empty, then applies .env
// files and environment overrides. A missing DefaultPath is not an error; a
// missing explicit path is. envFiles defaults to ".env"; missing env files
// are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := LoadYAML(path, cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadYAML decodes the YAML file at path into data.
func LoadYAML(path string, data any) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	d.KnownFields(true)
	if err := d.Decode(data); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvFormat)); v != "" {
		cfg.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvDB)); v != "" {
		cfg.DB = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		cfg.Workers = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logger.Level = v
	}
	return nil
}

// Validate checks that cfg holds usable values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration object is nil")
	}
	switch cfg.Format {
	case FormatText, FormatJSON, FormatSARIF:
	default:
		return fmt.Errorf("unknown format %q (want text, json or sarif)", cfg.Format)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	switch strings.ToUpper(cfg.Logger.Level) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "ERROR", "OFF":
	default:
		return fmt.Errorf("unknown log level %q", cfg.Logger.Level)
	}
	return nil
}
