package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dvsmart-go/internal/config"
	"dvsmart-go/internal/dvs"
)

// Store is a RecordStore whose schema can be checked and migrated.
type Store interface {
	dvs.RecordStore

	// CheckMigrations returns an error if the schema is not at the latest version.
	CheckMigrations() error

	// Migrate brings the schema to the latest version.
	Migrate() error
}

// NewStoreFromConfig creates a Store based on the store config type. When a
// job cache size is configured the store is wrapped in a JobCache.
// The schema is neither checked nor migrated.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)

	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite store")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		s, err = OpenSQLite(filepath.Join(cfg.DataDir, "dvsmart.db"))
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for postgres store")
		}
		s, err = OpenPostgres(ctx, cfg.DSN, cfg.MaxOpenConns)
	case "mongodb":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for mongodb store")
		}
		s, err = OpenMongo(ctx, cfg.DSN, cfg.Database)
	case "memory":
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.JobCacheSize > 0 {
		s = NewJobCache(s, cfg.JobCacheSize, cfg.JobCacheTTL)
	}
	return s, nil
}
