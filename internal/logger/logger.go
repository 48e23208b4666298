// Package logger builds the hclog loggers used across unsafe-ls.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/jward/unsafels/internal/config"
)

// NewLogger returns a named logger writing to stderr.
func NewLogger(cfg *config.Config, name string) hclog.Logger {
	return New(cfg, name, os.Stderr)
}

// New returns a named logger writing to out. The level comes from cfg, then
// UNSAFE_LS_LOG_LEVEL, then INFO. config.Load has already folded the
// environment into cfg, so a level set there by a flag wins.
func New(cfg *config.Config, name string, out io.Writer) hclog.Logger {
	jsonFormat := false
	if cfg != nil {
		jsonFormat = cfg.Logger.JSONFormat
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:        name,
		DisableTime: true,
		JSONFormat:  jsonFormat,
		Output:      out,
		Level:       determineLogLevel(cfg),
	})
}

func determineLogLevel(cfg *config.Config) hclog.Level {
	if cfg != nil && cfg.Logger.Level != "" {
		return parseLogLevel(cfg.Logger.Level)
	}
	if v := os.Getenv(config.EnvLogLevel); v != "" {
		return parseLogLevel(v)
	}
	return hclog.Info
}

func parseLogLevel(level string) hclog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "INFO":
		return hclog.Info
	case "WARN":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	case "OFF":
		return hclog.Off
	default:
		return hclog.Info
	}
}
