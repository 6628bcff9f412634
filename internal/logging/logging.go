// Package logging configures the structured logger shared by every filemesh
// subsystem. Each component receives a *zap.Logger through its constructor
// rather than reaching for a package-level global.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the logger's verbosity and encoding.
type Config struct {
	// Development enables human-readable console output with DPanic-level
	// stack traces; production mode emits JSON.
	Development bool
	// Level is the minimum enabled level ("debug", "info", "warn", "error").
	// Empty defaults to "info".
	Level string
}

// New builds a *zap.Logger for the given config. It never returns an error:
// an invalid level falls back to Info rather than failing peer startup.
func New(cfg Config) *zap.Logger {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = zapcore.InfoLevel
		}
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		// Build only fails on a bad sink; fall back to a logger that writes
		// nowhere rather than crash peer startup over observability.
		return zap.NewNop()
	}
	return logger
}

// Named returns a child logger scoped to one of filemesh's subsystems.
func Named(base *zap.Logger, component string) *zap.Logger {
	if base == nil {
		return zap.NewNop()
	}
	return base.Named(component)
}
