package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and locates a storage backend
type Options struct {
	Backend string
	// Path is the SQLite database file
	Path string
	// DSN is the Postgres connection string
	DSN string
}

// NewBundle creates a store Bundle for the configured backend
func NewBundle(ctx context.Context, opts Options) (*Bundle, error) {
	switch opts.Backend {
	case BackendSQLite:
		dir := filepath.Dir(opts.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
		}
		return NewSQLiteBundle(opts.Path)

	case BackendPostgres:
		return NewPostgresBundle(ctx, opts.DSN)

	case BackendMemory, "":
		return NewMemoryBundle(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (expected 'memory', 'sqlite' or 'postgres')", opts.Backend)
	}
}
