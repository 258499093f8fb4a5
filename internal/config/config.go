package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CalendarSelection is one configured Google calendar choice. An empty
// Calendars list means "every listed calendar is enabled"; the target
// resolver handles that case.
type CalendarSelection struct {
	ID      string `yaml:"id" json:"id"`
	Label   string `yaml:"label" json:"label"`
	Color   string `yaml:"color" json:"color"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// FeedConfig describes a single ICS subscription source. Enabled is a
// pointer so that an omitted key means enabled.
type FeedConfig struct {
	URL     string `yaml:"url" json:"url"`
	Label   string `yaml:"label" json:"label"`
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// IsEnabled reports whether the feed takes part in syncs.
func (f FeedConfig) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// GoogleConfig holds Google Calendar sync settings. Token acquisition is
// out of band; TokenFile points at the stored OAuth token.
type GoogleConfig struct {
	SyncDays     int    `yaml:"sync_days" json:"sync_days"`
	ClientID     string `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`
	TokenFile    string `yaml:"token_file,omitempty" json:"token_file,omitempty"`
}

// ICalConfig groups the ICS feed subscriptions.
type ICalConfig struct {
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used when a feed supplies floating times
	// without a TZID of its own.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule (e.g. "*/10 * * * *") for the
	// background refresh loop. If empty it is derived from RefreshMinutes.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// RefreshMinutes is the legacy interval form of RefreshCron.
	RefreshMinutes int `yaml:"refresh_minutes" json:"refresh_minutes"`

	// DisableAutoSync turns the background refresh loop off entirely.
	// Used by tests and ops environments; manual syncs still work.
	DisableAutoSync bool `yaml:"disable_auto_sync,omitempty" json:"disable_auto_sync,omitempty"`

	// DataDir is where the event cache database and the per-feed HTTP
	// cache live.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Google    GoogleConfig        `yaml:"google" json:"google"`
	Calendars []CalendarSelection `yaml:"calendars" json:"calendars"`
	ICal      ICalConfig          `yaml:"ical" json:"ical"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8080",
		Timezone:       "UTC",
		RefreshCron:    "*/10 * * * *",
		RefreshMinutes: 10,
		DataDir:        "./var",
		Google:         GoogleConfig{SyncDays: 30},
		Calendars:      []CalendarSelection{},
		ICal:           ICalConfig{Feeds: []FeedConfig{}},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs (e.g. older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.RefreshMinutes <= 0 {
		c.RefreshMinutes = 10
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/10 * * * *"
	}
	if c.DataDir == "" {
		c.DataDir = "./var"
	}
	if c.Google.SyncDays <= 0 {
		c.Google.SyncDays = 30
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarSelection{}
	}
	if c.ICal.Feeds == nil {
		c.ICal.Feeds = []FeedConfig{}
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written (0600, parent
// directory created) and returned. Otherwise the YAML is unmarshalled and
// normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
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

	tmp, err := os.CreateTemp(dir, ".calendard-config-*.tmp")
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

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
