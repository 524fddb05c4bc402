// Package logging builds the zap loggers used by the plmxml commands
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// EnvLevel is the environment variable consulted when Config.Level is empty
const EnvLevel = "PLMXML_LOG_LEVEL"

// Config holds logging configuration
type Config struct {
	Level       string `json:"level"`
	Format      string `json:"format"` // "json" or "console"
	OutputPath  string `json:"output_path"`
	Development bool   `json:"development"`
}

// New creates a logger from config. Logs go to stderr unless OutputPath is set.
func New(config Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	levelName := config.Level
	if levelName == "" {
		levelName = os.Getenv(EnvLevel)
	}
	if levelName == "" {
		levelName = "warn"
	}
	level, err := zap.ParseAtomicLevel(strings.ToLower(levelName))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	zapConfig.Level = level

	switch config.Format {
	case "", "console":
		zapConfig.Encoding = "console"
	case "json":
		zapConfig.Encoding = "json"
	default:
		return nil, fmt.Errorf("unknown log format %q", config.Format)
	}

	zapConfig.OutputPaths = []string{"stderr"}
	if config.OutputPath != "" {
		zapConfig.OutputPaths = []string{config.OutputPath}
	}
	// Diagnostics already carry their own position.
	zapConfig.DisableStacktrace = true

	return zapConfig.Build()
}
