package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icsgen/internal/ics"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadDefaultWhenUnwritable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	path := filepath.Join(blocker, "config.yaml")

	cfg, err := Load(path)
	require.ErrorIs(t, err, ErrDefaultNotSaved)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `listen: ":9000"
default_timezone: est
line_ending: LF
archive:
  dir: /var/lib/icsgen
  max_age: 48h
caldav:
  url: https://dav.example.com
  collection: /calendars/me/work/
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "EST", cfg.DefaultTimeZone)
	assert.Equal(t, "Zoom", cfg.DefaultLocation)
	assert.Equal(t, ics.LineEndingLF, cfg.LineEnding)
	assert.Equal(t, ics.DefaultProductID, cfg.ProductID)
	assert.True(t, cfg.Archive.Enabled())
	assert.Equal(t, 48*time.Hour, cfg.Archive.MaxAge)
	assert.Equal(t, "0 * * * *", cfg.Archive.Sweep)
	assert.True(t, cfg.CalDAV.Enabled())
	assert.Nil(t, cfg.BasicAuth)
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	cfg := &Config{
		DefaultTimeZone: "MST",
		LineEnding:      "weird",
		LogLevel:        " DEBUG ",
		BasicAuth:       &BasicAuthConfig{},
	}
	cfg.Normalize()

	assert.Equal(t, "PST", cfg.DefaultTimeZone)
	assert.Equal(t, ics.LineEndingCRLF, cfg.LineEnding)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Nil(t, cfg.BasicAuth)
	assert.Equal(t, 720*time.Hour, cfg.Archive.MaxAge)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Archive.Sweep = "every hour"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.CalDAV.URL = "https://dav.example.com"
	assert.Error(t, cfg.Validate())

	assert.NoError(t, DefaultConfig().Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.OmitNewlineMarker = true
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "pw"}
	cfg.Archive.Dir = "/tmp/archive"
	cfg.Archive.MaxAge = 90 * time.Minute
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvListen, "0.0.0.0:7000")
	t.Setenv(EnvLogLevel, "ERROR")
	t.Setenv(EnvCalDAVPassword, "dav-secret")
	t.Setenv(EnvBasicAuthPassword, "web-secret")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "0.0.0.0:7000", cfg.Listen)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "dav-secret", cfg.CalDAV.Password)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)
	assert.Equal(t, "web-secret", cfg.BasicAuth.Password)
}

func TestApplyEnvDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	// Register for restore; godotenv does not override variables that exist.
	t.Setenv(EnvListen, "")
	os.Unsetenv(EnvListen)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvListen+"=127.0.0.1:9999\n"), 0o600))

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "127.0.0.1:9999", cfg.Listen)
}

func TestEncodeOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LineEnding = ics.LineEndingLF
	cfg.OmitNewlineMarker = true

	opts := cfg.EncodeOptions()
	assert.Equal(t, ics.DefaultProductID, opts.ProductID)
	assert.Equal(t, ics.LineEndingLF, opts.LineEnding)
	assert.True(t, opts.OmitNewlineMarker)
	assert.Nil(t, opts.NewUID)
}
