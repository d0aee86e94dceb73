package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	LevelTrace = slog.LevelDebug - 4
	LevelFatal = slog.LevelError + 4
)

type Opts struct {
	Level     string
	Format    string
	AddSource bool
}

var levels = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a level name to slog.Level (INFO if unknown).
func ParseLevel(name string) (slog.Level, bool) {
	lvl, ok := levels[strings.ToLower(name)]
	if !ok {
		return slog.LevelInfo, false
	}
	return lvl, true
}

func Init(opts *Opts) {
	slog.SetDefault(New(os.Stderr, opts))
}

func New(w io.Writer, opts *Opts) *slog.Logger {
	if opts == nil {
		opts = &Opts{}
	}
	lvl, _ := ParseLevel(opts.Level)

	replaceAttr := func(_ []string, attr slog.Attr) slog.Attr {
		// print basename of a source. short-circuit: only when add-source is enabled
		if opts.AddSource && attr.Key == slog.SourceKey {
			if src, ok := attr.Value.Any().(*slog.Source); ok {
				src.File = filepath.Base(src.File)
				attr.Value = slog.AnyValue(src)
			}
		}
		// custom levels. short-circuit: replace only when the given level is not a slog one.
		if lvl <= slog.LevelDebug || lvl >= slog.LevelError {
			if attr.Key == slog.LevelKey {
				recLvl, ok := attr.Value.Any().(slog.Level)
				if !ok {
					return attr
				}
				switch recLvl {
				case LevelTrace:
					return slog.String(slog.LevelKey, "TRACE")
				case LevelFatal:
					return slog.String(slog.LevelKey, "FATAL")
				default:
					return attr
				}
			}
		}
		return attr
	}

	handlerOpts := &slog.HandlerOptions{
		AddSource:   opts.AddSource,
		Level:       lvl,
		ReplaceAttr: replaceAttr,
	}

	// TEXT if not set
	var baseHandler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		baseHandler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		baseHandler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(baseHandler.WithAttrs([]slog.Attr{
		slog.Int("pid", os.Getpid()),
	}))
}
