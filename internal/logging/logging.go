// Package logging builds zap loggers for the command-line tools.
package logging

import (
	"go.uber.org/zap"
)

// Config holds logging configuration
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // "json" or "console"
	OutputPath  string
	Development bool
	Fields      map[string]string
}

// NewLogger creates a structured logger from cfg. An unparsable level
// falls back to info.
func NewLogger(cfg Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	if cfg.OutputPath != "" {
		zapConfig.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	fields := make([]zap.Field, 0, len(cfg.Fields))
	for k, v := range cfg.Fields {
		fields = append(fields, zap.String(k, v))
	}
	return logger.With(fields...), nil
}

// NewDefaultLogger creates a console logger at info level, falling back to
// a no-op logger if construction fails.
func NewDefaultLogger() *zap.Logger {
	logger, err := NewLogger(Config{Level: "info", Format: "console"})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
