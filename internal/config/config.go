package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for dvsmart.
type Config struct {
	ServiceName string            `toml:"service_name"`
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	Log         LogConfig         `toml:"log"`
	Source      SourceConfig      `toml:"source"`
	Destination DestinationConfig `toml:"destination"`
	Encryption  EncryptionConfig  `toml:"encryption"`
	Store       StoreConfig       `toml:"store"`
	Lifecycle   LifecycleConfig   `toml:"lifecycle"`
	Events      EventsConfig      `toml:"events"`
	Server      ServerConfig      `toml:"server"`
}

// LogConfig controls the log level and rotation of the log file.
type LogConfig struct {
	Level      string `toml:"level"` // debug, info, warn or error
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// SourceConfig describes the filesystem files are discovered on.
type SourceConfig struct {
	Root   string   `toml:"root"`
	Ignore []string `toml:"ignore"`
}

// DestinationConfig represents configuration for the reorganized-file store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DestinationConfig struct {
	Type string `toml:"type"` // "filesystem", "s3" or "memory"

	// Root is the path prefix of every destination path.
	Root string `toml:"root,omitempty"`

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3PathStyle bool   `toml:"s3_path_style,omitempty"`
	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// StoreConfig represents configuration for the record store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type    string `toml:"type"`               // "sqlite", "postgres", "mongodb" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
	DSN     string `toml:"dsn,omitempty"`      // postgres DSN or mongodb URI
	// Database is the mongodb database name.
	Database string `toml:"database,omitempty"`

	MaxOpenConns int `toml:"max_open_conns,omitempty"`

	JobCacheSize int           `toml:"job_cache_size"`
	JobCacheTTL  time.Duration `toml:"job_cache_ttl"`
}

// LifecycleConfig tunes the file lifecycle engine.
type LifecycleConfig struct {
	Workers     int           `toml:"workers"`
	BatchSize   int           `toml:"batch_size"`
	MaxAttempts int           `toml:"max_attempts"`
	StaleAfter  time.Duration `toml:"stale_after"`
	Cleanup     bool          `toml:"cleanup"`
	Actor       string        `toml:"actor"`
}

// EventsConfig represents configuration for lifecycle event publishing.
type EventsConfig struct {
	Type     string `toml:"type"` // "none" (default) or "amqp"
	URL      string `toml:"url,omitempty"`
	Exchange string `toml:"exchange,omitempty"`
}

// ServerConfig configures `dvsmart serve`.
type ServerConfig struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	// ScheduleInterval is the time between scheduled job runs; 0 disables them.
	ScheduleInterval time.Duration `toml:"schedule_interval"`
}

// NewConfig creates a new Config with the provided values and defaults.
func NewConfig(serviceName, baseDir string) *Config {
	return &Config{
		ServiceName: serviceName,
		BaseDir:     baseDir,
		LogDir:      filepath.Join(baseDir, "log"),
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Destination: DestinationConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "organized"),
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "dvsmart.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "dvsmart.key"),
		},
		Store: StoreConfig{
			Type:         "sqlite",
			DataDir:      filepath.Join(baseDir, "db"),
			JobCacheSize: 256,
			JobCacheTTL:  10 * time.Minute,
		},
		Lifecycle: LifecycleConfig{
			Workers:     4,
			BatchSize:   100,
			MaxAttempts: 3,
			StaleAfter:  30 * time.Minute,
			Actor:       serviceName,
		},
		Events: EventsConfig{Type: "none"},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Validate checks the tagged unions and lifecycle settings.
func (c *Config) Validate() error {
	var errs []error

	if c.ServiceName == "" {
		errs = append(errs, errors.New("service_name is required"))
	}

	switch c.Store.Type {
	case "sqlite":
		if c.Store.DataDir == "" {
			errs = append(errs, errors.New("store.data_dir required for sqlite store"))
		}
	case "postgres", "mongodb":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn required for %s store", c.Store.Type))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store type: %q", c.Store.Type))
	}

	switch c.Destination.Type {
	case "filesystem":
		if c.Destination.FSRoot == "" {
			errs = append(errs, errors.New("destination.fs_root required for filesystem destination"))
		}
	case "s3":
		if c.Destination.S3Bucket == "" {
			errs = append(errs, errors.New("destination.s3_bucket required for s3 destination"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown destination type: %q", c.Destination.Type))
	}

	// A leading "/" is dropped when destination paths are built; what is
	// left must stay inside the destination.
	if root := strings.TrimLeft(c.Destination.Root, "/"); root != "" && !filepath.IsLocal(filepath.FromSlash(root)) {
		errs = append(errs, fmt.Errorf("destination.root %q must stay inside the destination", c.Destination.Root))
	}

	switch c.Encryption.Type {
	case "", "none", "test":
	case "age":
		if c.Encryption.PublicKeyPath == "" || c.Encryption.PrivateKeyPath == "" {
			errs = append(errs, errors.New("encryption key paths required for age encryption"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown encryption type: %q", c.Encryption.Type))
	}

	switch c.Events.Type {
	case "", "none":
	case "amqp":
		if c.Events.URL == "" {
			errs = append(errs, errors.New("events.url required for amqp events"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events type: %q", c.Events.Type))
	}

	if c.Lifecycle.Workers < 1 {
		errs = append(errs, fmt.Errorf("lifecycle.workers must be positive, got %d", c.Lifecycle.Workers))
	}
	if c.Lifecycle.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("lifecycle.max_attempts must be positive, got %d", c.Lifecycle.MaxAttempts))
	}
	if c.Lifecycle.StaleAfter < 0 {
		errs = append(errs, fmt.Errorf("lifecycle.stale_after must not be negative, got %s", c.Lifecycle.StaleAfter))
	}

	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path and applies
// environment overrides.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment to %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
