// Package db opens the local SQLite database used for approval
// archives and daemon task state.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/quarrylabs/warden/internal/pathutil"
)

const defaultDBFile = "~/.warden/warden.db"

type Config struct {
	// DSN is a file path or ":memory:". Empty means the default
	// location under ~/.warden.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	BusyTimeoutMs   int           `mapstructure:"busy_timeout_ms" yaml:"busy_timeout_ms"`
	WAL             bool          `mapstructure:"wal" yaml:"wal"`
	ForeignKeys     bool          `mapstructure:"foreign_keys" yaml:"foreign_keys"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// ResolveSQLiteDSN expands the configured DSN to an absolute path and
// creates its parent directory. ":memory:" passes through untouched.
func ResolveSQLiteDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = defaultDBFile
	}
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") {
		return dsn, nil
	}
	path := pathutil.ExpandHomePath(dsn)
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve sqlite dsn: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return "", fmt.Errorf("create db dir: %w", err)
	}
	return abs, nil
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn, err := ResolveSQLiteDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(ctx, sqlDB, cfg); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return sqlDB, nil
}

func applyPragmas(ctx context.Context, sqlDB *sql.DB, cfg Config) error {
	if cfg.WAL {
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return err
		}
	}
	if cfg.BusyTimeoutMs > 0 {
		if _, err := sqlDB.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeoutMs)); err != nil {
			return err
		}
	}
	if cfg.ForeignKeys {
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
			return err
		}
	}
	return nil
}
