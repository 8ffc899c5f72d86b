// Package logutil builds the zap loggers used by the command line tools.
package logutil

import (
	"go.uber.org/zap"
)

// NewLogger returns a production logger, or a development logger with debug
// output enabled when verbose is set.
func NewLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
