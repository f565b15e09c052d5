package rpa

import "log/slog"

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets a logger for debug output during open and extraction.
// By default no output is produced.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithMaxIndexSize limits the decompressed index size.
// Set limit to 0 to disable the limit. The default is DefaultMaxIndexSize.
func WithMaxIndexSize(limit uint64) Option {
	return func(a *Archive) {
		a.maxIndexSize = limit
	}
}

// WithMaxMemberSize limits the maximum per-member size.
// Set limit to 0 to disable the limit. The default is no limit.
func WithMaxMemberSize(limit uint64) Option {
	return func(a *Archive) {
		a.maxMemberSize = limit
	}
}
