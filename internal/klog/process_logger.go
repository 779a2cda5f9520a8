package klog

import "go.uber.org/zap"

// NewProcessLogger returns the structured diagnostic logger used for the
// process's own operational messages — worker pool lifecycle, PPC
// protocol violations, config load errors — as distinct from the
// per-request klog(level, fmt, ...) API and the per-vhost access log.
// Grounded in the retrieved pack's dependency graph pulling
// go.uber.org/zap for exactly this kind of structured process logging.
func NewProcessLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
