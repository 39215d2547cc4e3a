// Package config provides configuration management for pf.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/promptfinder/internal/db/driver"
	pferrors "github.com/randalmurphal/promptfinder/internal/errors"
)

const (
	// Dir is the project configuration directory.
	Dir = ".pf"
	// ConfigFileName is the config file name inside Dir.
	ConfigFileName = "config.yaml"
	// DefaultDBFile is the SQLite database file inside Dir.
	DefaultDBFile = "pf.db"
)

// Config is the pf configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Profile   ProfileConfig   `yaml:"profile"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures `pf serve`.
type ServerConfig struct {
	// Host is the bind address (default: "127.0.0.1")
	Host string `yaml:"host"`

	// Port is the server port (default: 8080)
	Port int `yaml:"port"`

	// MaxPortAttempts is the number of ports to try if Port is busy (default: 10)
	MaxPortAttempts int `yaml:"max_port_attempts"`

	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`

	// URL points CLI commands at a running server instead of the local
	// database.
	URL string `yaml:"url,omitempty"`
}

// DatabaseConfig selects and configures the preset store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// Path is the SQLite file (default: .pf/pf.db)
	Path string `yaml:"path"`

	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds connection settings for the postgres driver.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"` // Use env PF_DB_PASSWORD
	SSLMode  string `yaml:"ssl_mode"`
}

// WorkflowsConfig locates workflow documents on disk.
type WorkflowsConfig struct {
	// Dir is scanned for workflow files. Empty uses only the builtins.
	Dir string `yaml:"dir,omitempty"`

	// Pattern is a doublestar glob relative to Dir.
	Pattern string `yaml:"pattern"`
}

// ProfileConfig controls the profile layer.
type ProfileConfig struct {
	// Timezone names the IANA zone used for sys_today and friends.
	// Empty uses the local zone.
	Timezone string `yaml:"timezone,omitempty"`

	// CacheTTL bounds how long the remote client reuses a profile bag.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// LogConfig controls CLI logging.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`

	// Format is text or json
	Format string `yaml:"format"`
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			MaxPortAttempts: 10,
		},
		Database: DatabaseConfig{
			Driver: string(driver.DialectSQLite),
			Path:   filepath.Join(Dir, DefaultDBFile),
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "pf",
				User:     "pf",
				SSLMode:  "disable",
			},
		},
		Workflows: WorkflowsConfig{
			Pattern: "**/*.{yaml,yml,json}",
		},
		Profile: ProfileConfig{
			CacheTTL: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Dialect returns the parsed database driver.
func (c *Config) Dialect() (driver.Dialect, error) {
	d, err := driver.ParseDialect(c.Database.Driver)
	if err != nil {
		return "", pferrors.ErrConfigInvalid("database.driver", err.Error())
	}
	return d, nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if d, _ := driver.ParseDialect(c.Database.Driver); d == driver.DialectPostgres {
		pg := c.Database.Postgres
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(pg.User, pg.Password),
			Host:     fmt.Sprintf("%s:%d", pg.Host, pg.Port),
			Path:     "/" + pg.Database,
			RawQuery: "sslmode=" + url.QueryEscape(pg.SSLMode),
		}
		return u.String()
	}
	return c.Database.Path
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Profile.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Profile.Timezone)
	if err != nil {
		return nil, pferrors.ErrConfigInvalid("profile.timezone", err.Error())
	}
	return loc, nil
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return pferrors.ErrConfigInvalid("server.port", fmt.Sprintf("%d is out of range", c.Server.Port))
	}
	if c.Server.MaxPortAttempts < 1 {
		return pferrors.ErrConfigInvalid("server.max_port_attempts", "must be at least 1")
	}
	if c.Server.URL != "" {
		u, err := url.Parse(c.Server.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return pferrors.ErrConfigInvalid("server.url", fmt.Sprintf("%q is not an absolute URL", c.Server.URL))
		}
	}

	d, err := c.Dialect()
	if err != nil {
		return err
	}
	switch d {
	case driver.DialectSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return pferrors.ErrConfigMissing("database.path")
		}
	case driver.DialectPostgres:
		pg := c.Database.Postgres
		if pg.Host == "" {
			return pferrors.ErrConfigMissing("database.postgres.host")
		}
		if pg.Database == "" {
			return pferrors.ErrConfigMissing("database.postgres.database")
		}
	}

	if c.Workflows.Pattern == "" {
		return pferrors.ErrConfigMissing("workflows.pattern")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Profile.CacheTTL < 0 {
		return pferrors.ErrConfigInvalid("profile.cache_ttl", "must not be negative")
	}
	if !slices.Contains(validLogLevels, c.Log.Level) {
		return pferrors.ErrConfigInvalid("log.level", fmt.Sprintf("%q is not one of %s", c.Log.Level, strings.Join(validLogLevels, ", ")))
	}
	if !slices.Contains(validLogFormats, c.Log.Format) {
		return pferrors.ErrConfigInvalid("log.format", fmt.Sprintf("%q is not one of %s", c.Log.Format, strings.Join(validLogFormats, ", ")))
	}
	return nil
}

// LoadFrom loads the config from a specific path on top of the defaults.
// A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveTo writes the config as YAML, creating the parent directory.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Init creates the .pf directory under root with a default config.
func Init(root string, force bool) (string, error) {
	path := filepath.Join(root, Dir, ConfigFileName)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := Default().SaveTo(path); err != nil {
		return "", err
	}
	return path, nil
}
