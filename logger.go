package compositor

import (
	"log/slog"
	"sync/atomic"
)

var (
	silent = slog.New(slog.DiscardHandler)
	logger atomic.Pointer[slog.Logger]
)

func init() { logger.Store(silent) }

// SetLogger sets the logger shared by the renderer, the resource provider
// and the GPU backends. The default discards everything, and nil restores
// that default. It may be called while frames are being drawn.
//
// Debug carries per-frame detail such as pass allocation, batch flushes and
// program compiles. Info marks lifecycle changes (adapter chosen, surface
// reshaped). Warn reports degraded frames, for example a missing backdrop,
// a lost context or a sync-query stall. Error reports quads the draw layer
// cannot handle.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent
	}
	logger.Store(l)
}

// Logger returns the logger set by SetLogger.
func Logger() *slog.Logger { return logger.Load() }
