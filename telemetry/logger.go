// Package telemetry constructs the zap.Logger instances a Replica is
// handed (spec §9 "no global state" — every logger is an explicit
// constructor argument, never a package-level default).
package telemetry

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap.Logger for the given level name ("debug", "info",
// "warn", "error"), production-encoded (JSON, epoch-seconds timestamps) unless
// development is true, which switches to zap's human-readable console
// encoding and enables stack traces on warnings — the same split the
// wider pack makes between its "NewProduction" CLI entry points and its
// "NewDevelopment" ad hoc tooling.
func NewLogger(levelName string, development bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("telemetry: parse log level %q: %w", levelName, err)
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("telemetry: build logger: %w", err)
	}
	return logger, nil
}

// Named returns a child logger scoped to a replica's own symbolic id, the
// same per-replica scoping a Hub gives each connection's slog instance in
// the teacher.
func Named(base *zap.Logger, replicaID string) *zap.Logger {
	return base.Named(replicaID).With(zap.String("replica", replicaID))
}
