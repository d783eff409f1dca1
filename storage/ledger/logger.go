package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// Option customises Open.
type Option func(*openConfig)

type openConfig struct {
	logger *slog.Logger
}

// WithLogger routes gorm diagnostics (errors and slow queries) to l.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *openConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// slogWriter adapts slog to gorm's printf-style logger.Writer. gorm only
// reaches it for errors and slow queries at the Warn level configured below.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	msg := strings.TrimSpace(strings.ReplaceAll(fmt.Sprintf(format, args...), "\n", " "))
	w.logger.LogAttrs(context.Background(), slog.LevelWarn, "ledger query", slog.String("detail", msg))
}

func gormLogger(l *slog.Logger) logger.Interface {
	return logger.New(slogWriter{logger: l.With("component", "ledger")}, logger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
