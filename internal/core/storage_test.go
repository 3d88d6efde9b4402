package core

import (
	"database/sql"
	"path/filepath"
	"testing"

	"labplanner/internal/infra/persistence/memory"
	"labplanner/internal/infra/persistence/postgres"
	"labplanner/internal/infra/persistence/postgres/testutil"
	"labplanner/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv(EnvStorageDriver, string(StorageMemory))
	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	t.Setenv(EnvStorageDriver, "")
	path := filepath.Join(t.TempDir(), "archive.db")
	t.Setenv(EnvSQLitePath, path)
	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	ss, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	t.Cleanup(func() { _ = ss.Close() })
	if ss.Path() != path {
		t.Fatalf("expected path %s, got %s", path, ss.Path())
	}
}

func TestOpenPersistentStorePostgres(t *testing.T) {
	db, _ := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	t.Setenv(EnvStorageDriver, string(StoragePostgres))
	t.Setenv(EnvPostgresDSN, "postgres://stub")
	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*postgres.Store); !ok {
		t.Fatalf("expected postgres store, got %T", store)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv(EnvStorageDriver, "redis")
	if _, err := OpenPersistentStore(nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
