package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. The "local" environment gets zap's
// development config (console, stack traces on warn); anything else gets JSON.
func NewLogger(env, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env == "local" || env == "" {
		cfg = zap.NewDevelopmentConfig()
	}

	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
