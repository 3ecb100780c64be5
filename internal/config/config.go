// Package config loads livedoc configuration from defaults, an optional
// config file, and the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/steveyegge/livedoc/internal/store"
)

// EnvPrefix namespaces livedoc environment variables (LIVEDOC_PORT, ...).
const EnvPrefix = "LIVEDOC"

// Config is the effective configuration.
type Config struct {
	Host     string `mapstructure:"host" yaml:"host" toml:"host" json:"host"`
	Port     int    `mapstructure:"port" yaml:"port" toml:"port" json:"port"`
	Password string `mapstructure:"password" yaml:"password" toml:"password" json:"password"`

	Store  StoreConfig  `mapstructure:"store" yaml:"store" toml:"store" json:"store"`
	Server ServerConfig `mapstructure:"server" yaml:"server" toml:"server" json:"server"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" toml:"log" json:"log"`
}

// StoreConfig selects and locates the persistent store.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" toml:"backend" json:"backend"`
	Path    string `mapstructure:"path" yaml:"path" toml:"path" json:"path"`
	Watch   bool   `mapstructure:"watch" yaml:"watch" toml:"watch" json:"watch"`
}

// ServerConfig tunes the sync server.
type ServerConfig struct {
	SendTimeout     time.Duration `mapstructure:"send_timeout" yaml:"send_timeout" toml:"send_timeout" json:"send_timeout"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes" toml:"max_message_bytes" json:"max_message_bytes"`
	OutboxSize      int           `mapstructure:"outbox_size" yaml:"outbox_size" toml:"outbox_size" json:"outbox_size"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins" json:"allowed_origins"`
	IndexFile       string        `mapstructure:"index_file" yaml:"index_file" toml:"index_file" json:"index_file"`
}

// LogConfig controls log output. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file" toml:"file" json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" toml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" toml:"max_age_days" json:"max_age_days"`
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("password", "")
	v.SetDefault("store.backend", store.BackendFile)
	v.SetDefault("store.path", "")
	v.SetDefault("store.watch", false)
	v.SetDefault("server.send_timeout", 5*time.Second)
	v.SetDefault("server.max_message_bytes", int64(8<<20))
	v.SetDefault("server.outbox_size", 64)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.index_file", "index.html")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Hosting platforms set PORT. DEV_PASSWORD is still honored for older
	// deployments.
	_ = v.BindEnv("port", EnvPrefix+"_PORT", "PORT")
	_ = v.BindEnv("password", EnvPrefix+"_PASSWORD", "DEV_PASSWORD")

	return v
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (*Config, error) {
	return LoadWith(New(), path)
}

// LoadWith reads configuration into v, which may already carry bound flags.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			v.SetConfigType(ext)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath(cfg.Store.Backend)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultStorePath returns the record location used when none is configured.
func DefaultStorePath(backend string) string {
	if backend == store.BackendSQLite {
		return "document.db"
	}
	return "document.json"
}

// Validate checks field values.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535 (got %d)", c.Port))
	}
	switch c.Store.Backend {
	case store.BackendFile, store.BackendSQLite, store.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend must be one of file, sqlite, memory (got %q)", c.Store.Backend))
	}
	if c.Store.Watch && c.Store.Backend != store.BackendFile {
		errs = append(errs, fmt.Errorf("store.watch requires the file backend"))
	}
	if c.Server.SendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.send_timeout must be positive"))
	}
	if c.Server.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_message_bytes must be positive"))
	}
	if c.Server.OutboxSize <= 0 {
		errs = append(errs, fmt.Errorf("server.outbox_size must be positive"))
	}

	return errors.Join(errs...)
}

// PasswordConfigured reports whether a shared secret is set.
func (c *Config) PasswordConfigured() bool {
	return c.Password != ""
}

// Redacted returns a copy safe to display.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "********"
	}
	c.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return c
}
