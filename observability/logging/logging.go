package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig describes an optional rotating log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Setup configures the standard library logger to emit structured JSON on
// stdout at info level and returns the underlying slog.Logger. All log lines
// include the service name and environment when provided.
func Setup(service, env string) *slog.Logger {
	return SetupWriter(service, env, os.Stdout, slog.LevelInfo)
}

// SetupWriter is Setup with an explicit sink and minimum level. Attributes
// whose keys are known to carry credentials are masked before encoding.
func SetupWriter(service, env string, w io.Writer, level slog.Leveler) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			if IsSensitive(attr.Key) && attr.Value.Kind() == slog.KindString {
				return MaskField(attr.Key, attr.Value.String())
			}
			return attr
		},
	})

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// RotatingFile opens a size-rotated log file. Zero limits fall back to 100MB
// per file, 5 backups and 30 days of retention.
func RotatingFile(cfg FileConfig) (io.WriteCloser, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("log file path required")
	}
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	if out.MaxSize <= 0 {
		out.MaxSize = 100
	}
	if out.MaxBackups <= 0 {
		out.MaxBackups = 5
	}
	if out.MaxAge <= 0 {
		out.MaxAge = 30
	}
	return out, nil
}

// ParseLevel maps debug, info, warn and error (case-insensitive) to slog
// levels. The empty string selects info.
func ParseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(trimmed)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}
