//go:build debug

package logger

import (
	"context"
	"log/slog"
)

// Usage:
//
// logger.DebugLazy(ctx, l, "probe finished", func() []slog.Attr {
// 	return []slog.Attr{
// 		slog.Any("result", expensiveDump()),
// 	}
// })

func DebugLazy(ctx context.Context, l *slog.Logger, msg string, build func() []slog.Attr) {
	if l == nil {
		l = slog.Default()
	}
	if l.Enabled(ctx, slog.LevelDebug) {
		l.LogAttrs(ctx, slog.LevelDebug, msg, build()...)
	}
}
