package app

import (
	"fmt"
	"os"
	"path/filepath"

	"dvsmart-go/internal/config"
)

// GetDefaults resolves the config file, data and log locations.
//
//	DVSMART_CONFIG_PATH  config file, else $XDG_CONFIG_HOME/dvsmart.toml (~/.config)
//	DVSMART_HOME         data directory, else $XDG_DATA_HOME/dvsmart (~/.local/share)
func GetDefaults() (map[string]string, error) {
	configPath, err := resolvePath("DVSMART_CONFIG_PATH", "XDG_CONFIG_HOME", ".config", "dvsmart.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := resolvePath("DVSMART_HOME", "XDG_DATA_HOME", filepath.Join(".local", "share"), "dvsmart")
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// resolvePath returns $override if set, else name below $xdgVar, else name
// below homeRel in the user's home directory.
func resolvePath(override, xdgVar, homeRel, name string) (string, error) {
	if p := os.Getenv(override); p != "" {
		return p, nil
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, name), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, homeRel, name), nil
}

// LoadConfig loads .env files from the config file's directory and the
// working directory, then reads the config file and applies environment
// overrides.
func LoadConfig(path string) (*config.Config, error) {
	for _, dir := range []string{".", filepath.Dir(path)} {
		if err := config.LoadEnvFiles(dir); err != nil {
			return nil, err
		}
	}

	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
