package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"icsgen/internal/ics"
	"icsgen/internal/model"
	"icsgen/internal/tz"
)

// DefaultPath is where the CLI looks for its configuration file.
const DefaultPath = "/etc/icsgen/config.yaml"

// ErrDefaultNotSaved is returned by Load, together with a usable default
// config, when the file did not exist and could not be created.
var ErrDefaultNotSaved = errors.New("config: default config not saved")

// Environment variables that override file values.
const (
	EnvListen            = "ICSGEN_LISTEN"
	EnvLogLevel          = "ICSGEN_LOG_LEVEL"
	EnvCalDAVPassword    = "ICSGEN_CALDAV_PASSWORD"
	EnvBasicAuthPassword = "ICSGEN_BASIC_AUTH_PASSWORD"
)

const (
	defaultListen     = "127.0.0.1:8080"
	defaultLogLevel   = "info"
	defaultSweep      = "0 * * * *"
	defaultArchiveAge = 720 * time.Hour
	defaultLineEnding = ics.LineEndingCRLF
	configDirMode     = 0o700
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// ArchiveConfig controls the local copy kept of every generated document.
type ArchiveConfig struct {
	// Dir is the archive directory. Empty disables archiving.
	Dir string `yaml:"dir" json:"dir"`

	// Sweep is a cron schedule (e.g. "0 * * * *") for deleting old files.
	Sweep string `yaml:"sweep" json:"sweep"`

	// MaxAge is how long archived files are kept.
	MaxAge time.Duration `yaml:"max_age" json:"max_age"`
}

// Enabled reports whether archiving is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Dir != ""
}

// CalDAVConfig points at a calendar collection that receives every
// generated event.
type CalDAVConfig struct {
	URL        string `yaml:"url" json:"url"`
	Username   string `yaml:"username" json:"username"`
	Password   string `yaml:"password" json:"password"`
	Collection string `yaml:"collection" json:"collection"`
}

// Enabled reports whether CalDAV publishing is configured.
func (c CalDAVConfig) Enabled() bool {
	return c.URL != "" && c.Collection != ""
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DefaultTimeZone preselects the zone (PST, CST, EST) in the form and
	// fills in submissions that omit it.
	DefaultTimeZone string `yaml:"default_timezone" json:"default_timezone"`

	// DefaultLocation fills in submissions that omit the location.
	DefaultLocation string `yaml:"default_location" json:"default_location"`

	// ProductID is written to PRODID.
	ProductID string `yaml:"product_id" json:"product_id"`

	// LineEnding is "crlf" or "lf".
	LineEnding string `yaml:"line_ending" json:"line_ending"`

	// OmitNewlineMarker drops the trailing escaped newline after the
	// calendar name and summary.
	OmitNewlineMarker bool `yaml:"omit_newline_marker" json:"omit_newline_marker"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Archive ArchiveConfig `yaml:"archive" json:"archive"`

	CalDAV CalDAVConfig `yaml:"caldav" json:"caldav"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		LogLevel:        defaultLogLevel,
		DefaultTimeZone: tz.DefaultKey,
		DefaultLocation: model.DefaultLocation,
		ProductID:       ics.DefaultProductID,
		LineEnding:      defaultLineEnding,
		Archive: ArchiveConfig{
			Sweep:  defaultSweep,
			MaxAge: defaultArchiveAge,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	// Unknown zones fall back to the default instead of failing every
	// submission that relies on it.
	if r, err := tz.Lookup(c.DefaultTimeZone); err == nil {
		c.DefaultTimeZone = r.Key
	} else {
		c.DefaultTimeZone = tz.DefaultKey
	}
	if strings.TrimSpace(c.DefaultLocation) == "" {
		c.DefaultLocation = model.DefaultLocation
	}
	if c.ProductID == "" {
		c.ProductID = ics.DefaultProductID
	}
	switch strings.ToLower(c.LineEnding) {
	case ics.LineEndingLF:
		c.LineEnding = ics.LineEndingLF
	default:
		c.LineEnding = ics.LineEndingCRLF
	}

	if c.Archive.Sweep == "" {
		c.Archive.Sweep = defaultSweep
	}
	if c.Archive.MaxAge <= 0 {
		c.Archive.MaxAge = defaultArchiveAge
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.Archive.Sweep); err != nil {
		return fmt.Errorf("config: archive.sweep %q: %w", c.Archive.Sweep, err)
	}
	if c.CalDAV.URL != "" && c.CalDAV.Collection == "" {
		return errors.New("config: caldav.collection is required when caldav.url is set")
	}
	return nil
}

// ApplyEnv loads a .env file from the working directory, if present, and
// overrides file values with ICSGEN_* environment variables.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	c.Listen = getEnv(EnvListen, c.Listen)
	c.LogLevel = strings.ToLower(getEnv(EnvLogLevel, c.LogLevel))
	c.CalDAV.Password = getEnv(EnvCalDAVPassword, c.CalDAV.Password)

	if pw := getEnv(EnvBasicAuthPassword, ""); pw != "" {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{Username: "admin"}
		}
		c.BasicAuth.Password = pw
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

// EncodeOptions maps the document settings onto encoder options.
func (c *Config) EncodeOptions() ics.Options {
	return ics.Options{
		ProductID:         c.ProductID,
		LineEnding:        c.LineEnding,
		OmitNewlineMarker: c.OmitNewlineMarker,
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, fmt.Errorf("%w: %w", ErrDefaultNotSaved, err)
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirMode); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".icsgen-config-*.tmp")
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

	// Credentials may live in this file.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
