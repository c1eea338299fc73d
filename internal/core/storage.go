package core

import (
	"fmt"
	"os"

	"tracecore/internal/infra/persistence/memory"
	"tracecore/internal/infra/persistence/postgres"
	"tracecore/internal/infra/persistence/sqlite"
	"tracecore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	TRACECORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	TRACECORE_SQLITE_PATH: path to sqlite file (default ./tracecore.db)
//	TRACECORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := os.Getenv("TRACECORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("TRACECORE_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("TRACECORE_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
