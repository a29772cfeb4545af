package config

import (
	"fmt"

	"devcrew/store"
)

const (
	StorageMemory   = store.BackendMemory
	StorageSQLite   = store.BackendSQLite
	StoragePostgres = store.BackendPostgres
)

// StorageConfig defines where chat runs and executions are persisted
type StorageConfig struct {
	Backend string `hcl:"backend,optional"` // "memory", "sqlite" or "postgres"
	Path    string `hcl:"path,optional"`    // SQLite file path (default: ".devcrew/store.db")
	DSN     string `hcl:"dsn,optional"`     // Postgres connection string
}

// Defaults fills in default values for unset fields
func (s *StorageConfig) Defaults() {
	if s.Backend == "" {
		s.Backend = StorageMemory
	}
	if s.Path == "" {
		s.Path = ".devcrew/store.db"
	}
}

// Options converts the block into store options
func (s *StorageConfig) Options() store.Options {
	return store.Options{Backend: s.Backend, Path: s.Path, DSN: s.DSN}
}

func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case StorageMemory, StorageSQLite:
		return nil
	case StoragePostgres:
		if s.DSN == "" {
			return fmt.Errorf("postgres backend requires 'dsn'")
		}
		return nil
	}
	return fmt.Errorf("unknown storage backend '%s'", s.Backend)
}
