// Package build provides the small amount of logging plumbing every cate
// subsystem shares: a swappable writer that sits in front of the log
// rotator, and a helper for minting per-subsystem loggers off one backend.
package build

import (
	"io"

	"github.com/btcsuite/btclog"
)

// LogWriter is the logging backend's target before and after the file
// rotator has been initialized. Subsystem loggers are created eagerly at
// package init time, before main() has parsed the config and knows the log
// file path, so writes are simply dropped until RotatorPipe is set.
type LogWriter struct {
	RotatorPipe *io.PipeWriter
}

func (w *LogWriter) Write(b []byte) (int, error) {
	if w.RotatorPipe == nil {
		return len(b), nil
	}
	return w.RotatorPipe.Write(b)
}

// NewSubLogger mints a tagged logger from a backend's Logger method,
// defaulting to a disabled logger if genLogger is nil (used in tests that
// don't care about log output).
func NewSubLogger(subsystem string, genLogger func(string) btclog.Logger) btclog.Logger {
	if genLogger == nil {
		return btclog.Disabled
	}
	return genLogger(subsystem)
}
