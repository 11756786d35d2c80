// Package logging builds the zap logger used by the barsim binary.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a development logger (console, debug level) when verbose is
// set and a production logger (JSON, info level) otherwise. quiet raises
// the production level to warn.
func New(verbose, quiet bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if quiet {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}
