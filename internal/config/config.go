// Package config loads the planner server configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen        = ":8099"
	defaultDataDir       = "/data"
	defaultStaticDir     = "./static"
	defaultTickInterval  = 60 * time.Second
	defaultUpcomingCount = 5
	defaultHorizonDays   = 90
	defaultFeedCheck     = time.Minute
)

// Duration is a time.Duration written as "60s" or "5m" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	if d == 0 {
		return "", nil
	}
	return time.Duration(d).String(), nil
}

// CalDAVConfig describes an optional remote calendar that local events are
// published to.
type CalDAVConfig struct {
	// URL is the CalDAV server root, e.g. "https://dav.example.com".
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
	// CalendarPath is the collection path events are written under.
	CalendarPath string `yaml:"calendar_path"`
}

// Enabled reports whether publishing is configured.
func (c CalDAVConfig) Enabled() bool {
	return c.URL != "" && c.CalendarPath != ""
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DataDir holds the SQLite database.
	DataDir string `yaml:"data_dir"`

	// StaticDir is served at / when non-empty.
	StaticDir string `yaml:"static_dir"`

	// Timezone is the IANA zone that event dates and times are read in.
	// Empty means the server's local zone.
	Timezone string `yaml:"timezone"`

	// TickInterval is how often due reminders are checked.
	TickInterval Duration `yaml:"tick_interval"`

	// RetireAfter marks reminders fired without delivery once they are
	// this far past due. Zero keeps retrying.
	RetireAfter Duration `yaml:"retire_after"`

	// UpcomingCount seeds the upcoming_count setting on first run.
	UpcomingCount int `yaml:"upcoming_count"`

	// SeedDemo fills an empty calendar with sample events.
	SeedDemo bool `yaml:"seed_demo"`

	// ImportHorizonDays bounds expansion of recurring imported events.
	ImportHorizonDays int `yaml:"import_horizon_days"`

	// FeedCheckInterval is how often subscribed feeds are checked for a
	// due sync. Each feed has its own sync interval.
	FeedCheckInterval Duration `yaml:"feed_check_interval"`

	CalDAV CalDAVConfig `yaml:"caldav"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            defaultListen,
		DataDir:           defaultDataDir,
		StaticDir:         defaultStaticDir,
		TickInterval:      Duration(defaultTickInterval),
		UpcomingCount:     defaultUpcomingCount,
		SeedDemo:          true,
		ImportHorizonDays: defaultHorizonDays,
		FeedCheckInterval: Duration(defaultFeedCheck),
	}
}

// Normalize fills in missing or invalid values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.TickInterval < Duration(time.Second) {
		c.TickInterval = Duration(defaultTickInterval)
	}
	if c.RetireAfter < 0 {
		c.RetireAfter = 0
	}
	if c.UpcomingCount <= 0 {
		c.UpcomingCount = defaultUpcomingCount
	}
	if c.ImportHorizonDays <= 0 {
		c.ImportHorizonDays = defaultHorizonDays
	}
	if c.FeedCheckInterval < Duration(time.Second) {
		c.FeedCheckInterval = Duration(defaultFeedCheck)
	}
}

// ApplyEnv overrides file settings with environment variables.
func (c *Config) ApplyEnv() {
	c.Listen = getEnv("PLANNER_LISTEN", c.Listen)
	c.DataDir = getEnv("PLANNER_DATA_DIR", c.DataDir)
	c.StaticDir = getEnv("PLANNER_STATIC_DIR", c.StaticDir)
	c.Timezone = getEnv("PLANNER_TIMEZONE", c.Timezone)
	c.CalDAV.Password = getEnv("CALDAV_PASSWORD", c.CalDAV.Password)
}

// Location resolves Timezone. An empty Timezone is the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DatabasePath returns the SQLite file path inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "planner.db")
}

// Load reads configuration from the YAML file at path. A missing file is
// created with defaults. Environment overrides are applied last and never
// written back.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
		cfg.ApplyEnv()
		return cfg, nil
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".planner-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// getEnv returns an environment variable value or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
