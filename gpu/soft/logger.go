package soft

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/compositor"
)

// override replaces compositor.Logger for this package when set.
var override atomic.Pointer[slog.Logger]

func slogger() *slog.Logger {
	if l := override.Load(); l != nil {
		return l
	}
	return compositor.Logger()
}

// SetLogger gives the software context its own logger. With nil it logs
// through compositor.Logger again.
func SetLogger(l *slog.Logger) { override.Store(l) }

// Silence drops the log output of the software context.
func Silence() { override.Store(slog.New(slog.DiscardHandler)) }
