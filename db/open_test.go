package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestResolveSQLiteDSN_MemoryPassthrough(t *testing.T) {
	got, err := ResolveSQLiteDSN(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if got != ":memory:" {
		t.Fatalf("expected :memory: unchanged, got %q", got)
	}
}

func TestResolveSQLiteDSN_CreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "nested", "warden.db")
	got, err := ResolveSQLiteDSN(dsn)
	if err != nil {
		t.Fatal(err)
	}
	if got != dsn {
		t.Fatalf("expected %q, got %q", dsn, got)
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "pragmas.db")
	sqlDB, err := Open(ctx, Config{DSN: dsn, WAL: false, ForeignKeys: true, BusyTimeoutMs: 500, MaxOpenConns: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer sqlDB.Close()

	var fk int
	if err := sqlDB.QueryRowContext(ctx, "PRAGMA foreign_keys;").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fk)
	}
}

func TestOpen_FileDatabase(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "warden.db")
	sqlDB, err := Open(ctx, Config{DSN: dsn})
	if err != nil {
		t.Fatal(err)
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatal(err)
	}
}
