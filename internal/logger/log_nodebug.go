//go:build !debug

package logger

import (
	"context"
	"log/slog"
)

// Release builds: debug dumps are fully eliminated (including attr evaluation)

func DebugLazy(_ context.Context, _ *slog.Logger, _ string, _ func() []slog.Attr) {
	// no-op
}
