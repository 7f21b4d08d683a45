package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env, .env.<DVSMART_ENV> and .env.local from dir, in
// increasing order of precedence. Missing files are skipped. Variables already
// set in the process environment win over .env but not over the other two.
func LoadEnvFiles(dir string) error {
	base := filepath.Join(dir, ".env")
	if _, err := os.Stat(base); err == nil {
		if err := godotenv.Load(base); err != nil {
			return fmt.Errorf("failed to load %s: %w", base, err)
		}
	}

	if env := os.Getenv("DVSMART_ENV"); env != "" {
		envFile := filepath.Join(dir, ".env."+env)
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	local := filepath.Join(dir, ".env.local")
	if _, err := os.Stat(local); err == nil {
		if err := godotenv.Overload(local); err != nil {
			return fmt.Errorf("failed to load %s: %w", local, err)
		}
	}

	return nil
}

// ApplyEnv overrides deployment settings and secrets from DVSMART_* variables.
func ApplyEnv(cfg *Config) error {
	setString(&cfg.ServiceName, "DVSMART_SERVICE_NAME")
	setString(&cfg.Log.Level, "DVSMART_LOG_LEVEL")
	setString(&cfg.Source.Root, "DVSMART_SOURCE_ROOT")

	setString(&cfg.Store.Type, "DVSMART_STORE_TYPE")
	setString(&cfg.Store.DSN, "DVSMART_STORE_DSN")
	setString(&cfg.Store.Database, "DVSMART_STORE_DATABASE")

	setString(&cfg.Destination.Type, "DVSMART_DESTINATION_TYPE")
	setString(&cfg.Destination.S3Bucket, "DVSMART_S3_BUCKET")
	setString(&cfg.Destination.S3Region, "DVSMART_S3_REGION")
	setString(&cfg.Destination.S3Endpoint, "DVSMART_S3_ENDPOINT")
	setString(&cfg.Destination.S3AccessKeyID, "DVSMART_S3_ACCESS_KEY_ID")
	setString(&cfg.Destination.S3SecretAccessKey, "DVSMART_S3_SECRET_ACCESS_KEY")

	setString(&cfg.Events.Type, "DVSMART_EVENTS_TYPE")
	setString(&cfg.Events.URL, "DVSMART_AMQP_URL")

	setString(&cfg.Server.Addr, "DVSMART_HTTP_ADDR")

	if err := setInt(&cfg.Lifecycle.Workers, "DVSMART_WORKERS"); err != nil {
		return err
	}
	if err := setInt(&cfg.Lifecycle.MaxAttempts, "DVSMART_MAX_ATTEMPTS"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Lifecycle.StaleAfter, "DVSMART_STALE_AFTER"); err != nil {
		return err
	}
	return setDuration(&cfg.Server.ScheduleInterval, "DVSMART_SCHEDULE_INTERVAL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
