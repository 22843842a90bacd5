package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "BUCKETADMIN_CONFIG"

// Config represents the main configuration for bucketadmin.
type Config struct {
	Listen        string        `toml:"listen"`
	DataDir       string        `toml:"data_dir"`
	LogDir        string        `toml:"log_dir"`
	LogLevel      string        `toml:"log_level"`      // debug, info, warn, error
	DefaultDBName string        `toml:"default_dbname"` // dbname sent by the panel's config form
	Admin         AdminConfig   `toml:"admin"`
	Secrets       SecretsConfig `toml:"secrets"`
	Catalog       CatalogConfig `toml:"catalog"`
	Refresh       RefreshConfig `toml:"refresh"`
}

// AdminConfig enables HTTP basic auth on the panel when Username is set.
type AdminConfig struct {
	Username     string `toml:"username"`
	PasswordHash string `toml:"password_hash"` // bcrypt
}

// SecretsConfig selects where connection passwords are kept.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SecretsConfig struct {
	Type         string `toml:"type"`                    // "age" (default) or "memory"
	IdentityPath string `toml:"identity_path,omitempty"` // only used for type=age
	StorePath    string `toml:"store_path,omitempty"`    // only used for type=age
}

// CatalogConfig tunes catalog queries.
type CatalogConfig struct {
	QueryTimeout Duration `toml:"query_timeout"`
	StatsTTL     Duration `toml:"stats_ttl"`
	FilesLimit   int      `toml:"files_limit"`
}

// RefreshConfig schedules background recomputation of dashboard stats.
type RefreshConfig struct {
	Schedule    string `toml:"schedule"` // cron expression; empty disables
	Concurrency int    `toml:"concurrency"`
}

// Duration is a time.Duration that reads and writes as a TOML string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a Config rooted at baseDir with every field populated.
func Default(baseDir string) *Config {
	return &Config{
		Listen:        ":8888",
		DataDir:       baseDir,
		LogDir:        filepath.Join(baseDir, "log"),
		LogLevel:      "info",
		DefaultDBName: "test",
		Secrets: SecretsConfig{
			Type:         "age",
			IdentityPath: filepath.Join(baseDir, "keys", "identity.txt"),
			StorePath:    filepath.Join(baseDir, "secrets.age"),
		},
		Catalog: CatalogConfig{
			QueryTimeout: Duration{30 * time.Second},
			StatsTTL:     Duration{time.Minute},
			FilesLimit:   20,
		},
		Refresh: RefreshConfig{
			Schedule:    "@every 5m",
			Concurrency: 8,
		},
	}
}

// DefaultPaths returns the default config file path and data directory.
func DefaultPaths() (configPath, baseDir string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("resolving home directory: %w", err)
	}
	configPath = filepath.Join(home, ".config", "bucketadmin", "config.toml")
	if p := os.Getenv(EnvConfigPath); p != "" {
		configPath = p
	}
	return configPath, filepath.Join(home, ".local", "share", "bucketadmin"), nil
}

// ApplyDefaults fills zero values from Default(c.DataDir).
func (c *Config) ApplyDefaults() {
	d := Default(c.DataDir)
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.LogDir == "" {
		c.LogDir = d.LogDir
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.DefaultDBName == "" {
		c.DefaultDBName = d.DefaultDBName
	}
	if c.Secrets.Type == "" {
		c.Secrets.Type = d.Secrets.Type
	}
	if c.Secrets.IdentityPath == "" {
		c.Secrets.IdentityPath = d.Secrets.IdentityPath
	}
	if c.Secrets.StorePath == "" {
		c.Secrets.StorePath = d.Secrets.StorePath
	}
	if c.Catalog.QueryTimeout.Duration <= 0 {
		c.Catalog.QueryTimeout = d.Catalog.QueryTimeout
	}
	if c.Catalog.StatsTTL.Duration <= 0 {
		c.Catalog.StatsTTL = d.Catalog.StatsTTL
	}
	if c.Catalog.FilesLimit <= 0 {
		c.Catalog.FilesLimit = d.Catalog.FilesLimit
	}
	if c.Refresh.Concurrency <= 0 {
		c.Refresh.Concurrency = d.Refresh.Concurrency
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel))
	}
	switch c.Secrets.Type {
	case "age", "memory":
	default:
		errs = append(errs, fmt.Errorf("secrets.type %q: want age or memory", c.Secrets.Type))
	}
	if c.Admin.Username != "" && c.Admin.PasswordHash == "" {
		errs = append(errs, errors.New("admin.password_hash is required when admin.username is set"))
	}
	if c.Refresh.Schedule != "" {
		if _, err := cron.ParseStandard(c.Refresh.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("refresh.schedule %q: %w", c.Refresh.Schedule, err))
		}
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

// ReadFromFile reads a Config from path, applies defaults and validates it.
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
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// WriteToFile replaces the config at path, creating its directory.
func WriteToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing config file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := WriteToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
