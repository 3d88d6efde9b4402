package core

import (
	"fmt"
	"os"

	"labplanner/internal/infra/persistence/memory"
	"labplanner/internal/infra/persistence/postgres"
	"labplanner/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// Environment variables read by OpenPersistentStore.
const (
	EnvStorageDriver = "LABPLANNER_STORAGE_DRIVER"
	EnvSQLitePath    = "LABPLANNER_SQLITE_PATH"
	EnvPostgresDSN   = "LABPLANNER_POSTGRES_DSN"
)

// OpenPersistentStore selects an archive backend using environment variables.
// Defaults to sqlite when unset.
//
//	LABPLANNER_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	LABPLANNER_SQLITE_PATH: path to sqlite file (default ./labplanner.db)
//	LABPLANNER_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv(EnvStorageDriver)
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		ss, err := sqlite.NewStore(os.Getenv(EnvSQLitePath), engine)
		if err != nil {
			return nil, err
		}
		return ss, nil
	case StoragePostgres:
		ps, err := postgres.NewStore(os.Getenv(EnvPostgresDSN), engine)
		if err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
