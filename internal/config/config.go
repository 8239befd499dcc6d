// Package config loads taskpulse configuration from an optional YAML file and TASKPULSE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TASKPULSE_"

const maxConfigFileSize = 1 << 20

// Config holds the complete configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Crypto   CryptoConfig   `koanf:"crypto"`
	Sync     SyncConfig     `koanf:"sync"`
	Google   GoogleConfig   `koanf:"google"`
	NATS     NATSConfig     `koanf:"nats"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds listener settings. An empty OpsAddr disables the gRPC ops listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	OpsAddr         string        `koanf:"ops_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	DSN      string `koanf:"dsn"`
	MaxBatch int    `koanf:"max_batch"`
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTKey    string        `koanf:"jwt_key"`
	AccessTTL time.Duration `koanf:"access_ttl"`
}

// CryptoConfig selects the credential master key: a hex key, or a passphrase with salt.
type CryptoConfig struct {
	MasterKey  string `koanf:"master_key"`
	Passphrase string `koanf:"passphrase"`
	Salt       string `koanf:"salt"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	PageRetries   uint64        `koanf:"page_retries"`
	RetryBase     time.Duration `koanf:"retry_base"`
	VendorRPS     float64       `koanf:"vendor_rps"`
	TriggerWindow time.Duration `koanf:"trigger_window"`
	TriggerMax    int           `koanf:"trigger_max"`
}

// GoogleConfig holds the OAuth client used to refresh Google tokens.
type GoogleConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// NATSConfig holds event publishing settings. An empty URL disables publishing.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// Load reads path (skipped when empty), applies TASKPULSE_* overrides, defaults, and validates.
//
//	TASKPULSE_SERVER_ADDR      -> server.addr
//	TASKPULSE_SYNC_PAGE_RETRIES -> sync.page_retries
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps TASKPULSE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.MaxBatch == 0 {
		cfg.Database.MaxBatch = 1000
	}
	if cfg.Auth.AccessTTL == 0 {
		cfg.Auth.AccessTTL = 15 * time.Minute
	}
	if cfg.Sync.PageRetries == 0 {
		cfg.Sync.PageRetries = 3
	}
	if cfg.Sync.RetryBase == 0 {
		cfg.Sync.RetryBase = 500 * time.Millisecond
	}
	if cfg.Sync.VendorRPS == 0 {
		cfg.Sync.VendorRPS = 3 // Notion's documented average limit
	}
	if cfg.Sync.TriggerWindow == 0 {
		cfg.Sync.TriggerWindow = time.Minute
	}
	if cfg.Sync.TriggerMax == 0 {
		cfg.Sync.TriggerMax = 5
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "taskpulse"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Auth.JWTKey == "" {
		errs = append(errs, errors.New("auth.jwt_key is required"))
	}
	if c.Crypto.MasterKey == "" && c.Crypto.Passphrase == "" {
		errs = append(errs, errors.New("crypto.master_key or crypto.passphrase is required"))
	}
	if c.Crypto.Passphrase != "" && c.Crypto.Salt == "" {
		errs = append(errs, errors.New("crypto.salt is required with crypto.passphrase"))
	}
	if c.Database.MaxBatch < 0 || c.Sync.TriggerMax < 0 || c.Sync.VendorRPS < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
