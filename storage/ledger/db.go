package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const defaultFilePragmas = "mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// ErrDSNRequired is returned when no database location is configured.
var ErrDSNRequired = errors.New("ledger: database dsn must be configured")

// FileDSN converts a filesystem path into an on-disk SQLite DSN with sensible
// defaults.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrDSNRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve ledger path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}

// MemoryDSN returns a named shared-cache in-memory SQLite DSN.
func MemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

// Open connects to the ledger database and applies migrations. postgres://
// and postgresql:// DSNs select the Postgres driver; anything else is handed
// to SQLite, which is limited to a single connection so writers queue instead
// of failing with lock errors. Query errors and slow statements are logged
// through slog; missing rows are expected lookups and stay silent.
func Open(dsn string, opts ...Option) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	oc := openConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&oc)
	}
	cfg := &gorm.Config{Logger: gormLogger(oc.logger)}
	var dialector gorm.Dialector
	postgresDSN := isPostgresDSN(trimmed)
	if postgresDSN {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if !postgresDSN {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("ledger connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

func supportsRowLocks(db *gorm.DB) bool {
	return db.Dialector.Name() != "sqlite"
}
