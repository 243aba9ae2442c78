// Package config loads server configuration for epic-notes.
//
// Values are layered: built-in defaults, then an optional TOML file
// (--config), then environment variables, then CLI flags. Validate reports
// every problem at once through ValidationError.
package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kuitang/epic-notes/internal/blob"
	"github.com/kuitang/epic-notes/internal/obs"
	"github.com/kuitang/epic-notes/internal/ratelimit"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"

	defaultListenAddr = ":8080"
	defaultDBPath     = "./data/notes.db"
	defaultBlobDir    = "./data/blobs"
	defaultS3Region   = "auto"
)

// S3Config holds S3-compatible storage settings. The env names match what
// `fly storage create` sets.
type S3Config struct {
	Endpoint        string `toml:"endpoint"`          // AWS_ENDPOINT_URL_S3
	Region          string `toml:"region"`            // AWS_REGION
	AccessKeyID     string `toml:"access_key_id"`     // AWS_ACCESS_KEY_ID
	SecretAccessKey string `toml:"secret_access_key"` // AWS_SECRET_ACCESS_KEY
	BucketName      string `toml:"bucket_name"`       // BUCKET_NAME
	UsePathStyle    bool   `toml:"use_path_style"`    // S3_USE_PATH_STYLE
}

// RateLimitConfig mirrors ratelimit.Config with TOML names.
type RateLimitConfig struct {
	RPS             float64       `toml:"rps"`
	Burst           int           `toml:"burst"`
	CleanupInterval time.Duration `toml:"cleanup_interval"`
}

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr string `toml:"listen_addr"`
	BaseURL    string `toml:"base_url"`
	LogLevel   string `toml:"log_level"`

	// Database and encryption
	DatabasePath string `toml:"database_path"`
	MasterKey    string `toml:"master_key"` // 64 hex characters; empty leaves the database unencrypted

	// Blob storage
	BlobBackend string   `toml:"blob_backend"` // local | s3
	BlobDir     string   `toml:"blob_dir"`
	S3          S3Config `toml:"s3"`

	RateLimit RateLimitConfig `toml:"rate_limit"`

	// NoS3 forces the local backend regardless of BLOB_BACKEND (--no-s3).
	NoS3 bool `toml:"-"`
}

// Flags are the CLI overrides applied last.
type Flags struct {
	ConfigFile string
	ListenAddr string
	NoS3       bool
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:   defaultListenAddr,
		LogLevel:     "info",
		DatabasePath: defaultDBPath,
		BlobBackend:  BackendLocal,
		BlobDir:      defaultBlobDir,
		S3:           S3Config{Region: defaultS3Region},
		RateLimit: RateLimitConfig{
			RPS:             ratelimit.DefaultConfig.RPS,
			Burst:           ratelimit.DefaultConfig.Burst,
			CleanupInterval: ratelimit.DefaultConfig.CleanupInterval,
		},
	}
}

// Load builds a validated Config from defaults, the optional TOML file,
// the process environment, and flags.
func Load(flags Flags) (*Config, error) {
	return load(flags, os.Getenv)
}

func load(flags Flags, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(flags.ConfigFile); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(getenv)

	if flags.ListenAddr != "" {
		cfg.ListenAddr = flags.ListenAddr
	}
	if flags.NoS3 {
		cfg.NoS3 = true
		cfg.BlobBackend = BackendLocal
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.BlobBackend = strings.ToLower(strings.TrimSpace(cfg.BlobBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	setString(getenv, "LISTEN_ADDR", &c.ListenAddr)
	setString(getenv, "BASE_URL", &c.BaseURL)
	setString(getenv, "LOG_LEVEL", &c.LogLevel)

	setString(getenv, "DATABASE_PATH", &c.DatabasePath)
	setString(getenv, "MASTER_KEY", &c.MasterKey)

	setString(getenv, "BLOB_BACKEND", &c.BlobBackend)
	setString(getenv, "BLOB_DIR", &c.BlobDir)
	setString(getenv, "AWS_ENDPOINT_URL_S3", &c.S3.Endpoint)
	setString(getenv, "AWS_REGION", &c.S3.Region)
	setString(getenv, "AWS_ACCESS_KEY_ID", &c.S3.AccessKeyID)
	setString(getenv, "AWS_SECRET_ACCESS_KEY", &c.S3.SecretAccessKey)
	setString(getenv, "BUCKET_NAME", &c.S3.BucketName)
	setBool(getenv, "S3_USE_PATH_STYLE", &c.S3.UsePathStyle)

	setFloat(getenv, "RATE_LIMIT_RPS", &c.RateLimit.RPS)
	setInt(getenv, "RATE_LIMIT_BURST", &c.RateLimit.Burst)
	setDuration(getenv, "RATE_LIMIT_CLEANUP_INTERVAL", &c.RateLimit.CleanupInterval)
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, "LISTEN_ADDR must not be empty")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		errs = append(errs, "DATABASE_PATH must not be empty")
	}
	if _, err := obs.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if key := strings.TrimSpace(c.MasterKey); key != "" {
		if len(key) != 64 {
			errs = append(errs, "MASTER_KEY must be 64 hex characters (32 bytes)")
		} else if _, err := hex.DecodeString(key); err != nil {
			errs = append(errs, "MASTER_KEY must be hex encoded (generate with: openssl rand -hex 32)")
		}
	}

	switch c.BlobBackend {
	case BackendLocal:
		if strings.TrimSpace(c.BlobDir) == "" {
			errs = append(errs, "BLOB_DIR is required for the local blob backend")
		}
	case BackendS3:
		if c.S3.Endpoint == "" {
			errs = append(errs, "AWS_ENDPOINT_URL_S3 is required (set env var or use --no-s3)")
		}
		if c.S3.BucketName == "" {
			errs = append(errs, "BUCKET_NAME is required (set env var or use --no-s3)")
		}
		if c.S3.AccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
		}
		if c.S3.SecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
		}
	default:
		errs = append(errs, fmt.Sprintf("BLOB_BACKEND %q must be %q or %q", c.BlobBackend, BackendLocal, BackendS3))
	}

	if c.RateLimit.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Encrypted reports whether the database is opened with a derived key.
func (c *Config) Encrypted() bool {
	return strings.TrimSpace(c.MasterKey) != ""
}

// RateLimiterConfig converts to the limiter's configuration.
func (c *Config) RateLimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		RPS:             c.RateLimit.RPS,
		Burst:           c.RateLimit.Burst,
		CleanupInterval: c.RateLimit.CleanupInterval,
	}
}

// S3StoreConfig converts to the blob package's S3 settings.
func (c *Config) S3StoreConfig() blob.S3Config {
	return blob.S3Config{
		Endpoint:        c.S3.Endpoint,
		Region:          c.S3.Region,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		BucketName:      c.S3.BucketName,
		UsePathStyle:    c.S3.UsePathStyle,
	}
}

// PrintStartupSummary prints a human-readable summary of the configuration.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "epic-notes server starting...")

	if c.BlobBackend == BackendS3 {
		fmt.Fprintf(w, "  Storage:  S3 (endpoint: %s, bucket: %s)\n", c.S3.Endpoint, c.S3.BucketName)
	} else if c.NoS3 {
		fmt.Fprintf(w, "  Storage:  Local %s (--no-s3)\n", c.BlobDir)
	} else {
		fmt.Fprintf(w, "  Storage:  Local %s\n", c.BlobDir)
	}

	if c.Encrypted() {
		fmt.Fprintf(w, "  Database: %s (encrypted, key from MASTER_KEY)\n", c.DatabasePath)
	} else {
		fmt.Fprintf(w, "  Database: %s (unencrypted)\n", c.DatabasePath)
	}

	fmt.Fprintf(w, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintf(w, "  Base:     %s\n", c.BaseURL)
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables. Unparseable values
// keep the previous layer's value.

func setString(getenv func(string) string, key string, dst *string) {
	if value := strings.TrimSpace(getenv(key)); value != "" {
		*dst = value
	}
}

func setBool(getenv func(string) string, key string, dst *bool) {
	value := strings.TrimSpace(getenv(key))
	if value == "" {
		return
	}
	if parsed, err := strconv.ParseBool(value); err == nil {
		*dst = parsed
	}
}

func setInt(getenv func(string) string, key string, dst *int) {
	value := strings.TrimSpace(getenv(key))
	if value == "" {
		return
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		*dst = parsed
	}
}

func setFloat(getenv func(string) string, key string, dst *float64) {
	value := strings.TrimSpace(getenv(key))
	if value == "" {
		return
	}
	if parsed, err := strconv.ParseFloat(value, 64); err == nil {
		*dst = parsed
	}
}

func setDuration(getenv func(string) string, key string, dst *time.Duration) {
	value := strings.TrimSpace(getenv(key))
	if value == "" {
		return
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		*dst = parsed
	}
}
