package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"icsgen/internal/archive"
	"icsgen/internal/config"
	"icsgen/internal/download"
	"icsgen/internal/invite"
	appLog "icsgen/internal/log"
)

const version = "0.1.0"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "icsgen",
	Short:         "Generates single-event iCalendar invites",
	Long:          `Turns a meeting title, location, link, time zone and start/end time into a downloadable .ics file with a VTIMEZONE block.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, error)")
}

// loadConfig reads the config file, applies environment overrides and the
// --log-level flag, and sets the global log level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, config.ErrDefaultNotSaved) && cfg != nil:
		appLog.Error("could not write default config, continuing with defaults", err, "config_path", path)
	case err != nil:
		appLog.Error("failed to load config", err, "config_path", path)
		return nil, err
	}
	cfg.ApplyEnv()

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	level, ok := appLog.ParseLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	appLog.SetLevel(level)

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newService builds the invite service with the archive and CalDAV sinks
// the config enables.
func newService(cfg *config.Config) (*invite.Service, error) {
	var sinks []download.Saver

	if cfg.Archive.Enabled() {
		sinks = append(sinks, archive.NewSaver(cfg.Archive.Dir))
	}
	if cfg.CalDAV.Enabled() {
		dav, err := download.NewCalDAVSaver(cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password, cfg.CalDAV.Collection)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dav)
	}

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"log_level", cfg.LogLevel,
		"default_timezone", cfg.DefaultTimeZone,
		"line_ending", cfg.LineEnding,
		"archive", cfg.Archive.Enabled(),
		"caldav", cfg.CalDAV.Enabled(),
	)

	return invite.NewService(
		cfg.EncodeOptions(),
		invite.WithDefaults(cfg.DefaultLocation, cfg.DefaultTimeZone),
		invite.WithSinks(sinks...),
	), nil
}
