package app

import (
	"os"
	"path/filepath"
	"testing"

	"dvsmart-go/internal/config"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("DVSMART_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("DVSMART_HOME", "/custom/dvsmart")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/dvsmart" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/dvsmart")
		}
		if defaults["log_dir"] != "/custom/dvsmart/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/dvsmart/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("DVSMART_CONFIG_PATH", "")
		t.Setenv("DVSMART_HOME", "")
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("XDG_DATA_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "dvsmart.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "dvsmart")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}

		wantLog := filepath.Join(wantBase, "log")
		if defaults["log_dir"] != wantLog {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], wantLog)
		}
	})
}

func TestGetDefaults_XDG(t *testing.T) {
	t.Setenv("DVSMART_CONFIG_PATH", "")
	t.Setenv("DVSMART_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")

	defaults, err := GetDefaults()
	if err != nil {
		t.Fatalf("GetDefaults() error = %v", err)
	}
	if defaults["config_path"] != filepath.Join("/xdg/config", "dvsmart.toml") {
		t.Errorf("config_path = %q", defaults["config_path"])
	}
	if defaults["log_dir"] != filepath.Join("/xdg/data", "dvsmart", "log") {
		t.Errorf("log_dir = %q", defaults["log_dir"])
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dvsmart.toml")
	cfg := config.NewConfig("dvsmart", dir)
	if err := config.Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	t.Run("env file overrides", func(t *testing.T) {
		t.Setenv("DVSMART_WORKERS", "")
		env := filepath.Join(dir, ".env.local")
		if err := os.WriteFile(env, []byte("DVSMART_WORKERS=9\n"), 0644); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Remove(env) })

		got, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if got.Lifecycle.Workers != 9 {
			t.Errorf("Workers = %d, want 9", got.Lifecycle.Workers)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Setenv("DVSMART_WORKERS", "0")
		if _, err := LoadConfig(path); err == nil {
			t.Error("LoadConfig() expected validation error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(dir, "missing.toml")); err == nil {
			t.Error("LoadConfig() expected error for missing file")
		}
	})
}
