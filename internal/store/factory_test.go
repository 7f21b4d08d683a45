package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dvsmart-go/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		s, err := NewStoreFromConfig(ctx, config.StoreConfig{Type: "sqlite", DataDir: dir})
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		defer s.Close()

		if _, ok := s.(*SQLStore); !ok {
			t.Errorf("store type = %T, want *SQLStore", s)
		}
		if err := s.Migrate(); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "dvsmart.db")); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("memory with job cache", func(t *testing.T) {
		s, err := NewStoreFromConfig(ctx, config.StoreConfig{Type: "memory", JobCacheSize: 4})
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		defer s.Close()
		if _, ok := s.(*JobCache); !ok {
			t.Errorf("store type = %T, want *JobCache", s)
		}
		if err := s.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	errorCases := []struct {
		name string
		cfg  config.StoreConfig
	}{
		{"unknown type", config.StoreConfig{Type: "redis"}},
		{"sqlite without data dir", config.StoreConfig{Type: "sqlite"}},
		{"postgres without dsn", config.StoreConfig{Type: "postgres"}},
		{"mongodb without dsn", config.StoreConfig{Type: "mongodb"}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStoreFromConfig(ctx, tt.cfg); err == nil {
				t.Error("NewStoreFromConfig() expected error")
			}
		})
	}
}
