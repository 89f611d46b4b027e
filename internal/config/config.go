// Package config provides configuration and CLI argument parsing for the
// audio bridge daemon, following the teacher's Config/DefaultConfig/
// ParseFlags/validate shape with github.com/spf13/pflag in place of the
// teacher's stdlib flag.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Config holds all configuration for the audio bridge.
// Populated from CLI flags, or defaults.
type Config struct {
	CaptureDeviceID string // capture endpoint id; "" uses the saved setting (no system-default lookup)
	RenderDeviceID  string // render endpoint id; "" uses the saved setting (no system-default lookup)
	Exclusive       bool   // use WASAPI-style exclusive mode negotiation
	AutoStart       bool   // start routing immediately on launch
	SettingsPath    string // path to the persisted settings YAML file
	StatusInterval  int    // seconds between status log lines, 0 disables
	Verbose         bool   // enable debug-level logging
	ListDevices     bool   // list capture/render devices and exit
}

// DefaultConfig returns a Config populated with the daemon's defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		CaptureDeviceID: "",
		RenderDeviceID:  "",
		Exclusive:       true,
		AutoStart:       true,
		SettingsPath:    home + "/.config/audiobridge/settings.yaml",
		StatusInterval:  30,
		Verbose:         false,
		ListDevices:     false,
	}
}

// ParseFlags parses os.Args into a Config, starting from DefaultConfig
// and validating the result.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	pflag.StringVar(&cfg.CaptureDeviceID, "capture-device", cfg.CaptureDeviceID, "Capture device id (empty uses the saved setting)")
	pflag.StringVar(&cfg.RenderDeviceID, "render-device", cfg.RenderDeviceID, "Render device id (empty uses the saved setting)")
	pflag.BoolVar(&cfg.Exclusive, "exclusive", cfg.Exclusive, "Negotiate exclusive-mode device access")
	pflag.BoolVar(&cfg.AutoStart, "auto-start", cfg.AutoStart, "Start routing immediately on launch")
	pflag.StringVar(&cfg.SettingsPath, "settings", cfg.SettingsPath, "Path to the persisted settings file")
	pflag.IntVar(&cfg.StatusInterval, "status-interval", cfg.StatusInterval, "Seconds between status log lines (0 disables)")
	pflag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable verbose logging")
	pflag.BoolVar(&cfg.ListDevices, "list-devices", cfg.ListDevices, "List capture and render devices and exit")

	pflag.Parse()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks invariants ParseFlags can't enforce at the flag level.
func (c *Config) validate() error {
	if c.StatusInterval < 0 {
		return fmt.Errorf("config: status-interval must be >= 0, got %d", c.StatusInterval)
	}
	if c.SettingsPath == "" {
		return fmt.Errorf("config: settings path must not be empty")
	}
	return nil
}
