package soft

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/gogpu/compositor"
)

func TestLoggerFollowsRoot(t *testing.T) {
	t.Cleanup(func() {
		SetLogger(nil)
		compositor.SetLogger(nil)
	})

	var root, own bytes.Buffer
	compositor.SetLogger(slog.New(slog.NewTextHandler(&root, nil)))
	slogger().Info("from root")
	if !strings.Contains(root.String(), "from root") {
		t.Errorf("root log = %q, want message", root.String())
	}

	SetLogger(slog.New(slog.NewTextHandler(&own, nil)))
	slogger().Info("from soft")
	if !strings.Contains(own.String(), "from soft") || strings.Contains(root.String(), "from soft") {
		t.Errorf("override not used: own %q, root %q", own.String(), root.String())
	}

	Silence()
	if slogger().Enabled(context.Background(), slog.LevelError) {
		t.Error("Silence() should disable logging")
	}

	SetLogger(nil)
	if !slogger().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("SetLogger(nil) should follow the root logger again")
	}
}
