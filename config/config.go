// Package config loads the client configuration from a TOML file and
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bitrise-io/go-deta/base"
	"github.com/bitrise-io/go-deta/drive"
	"github.com/bitrise-io/go-deta/projectkey"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/pelletier/go-toml/v2"
)

const (
	// EnvProjectKey overrides the project key.
	EnvProjectKey = "DETA_PROJECT_KEY"

	// EnvBaseEndpoint overrides the Base API host.
	EnvBaseEndpoint = "DETA_BASE_ENDPOINT"

	// EnvDriveEndpoint overrides the Drive API host.
	EnvDriveEndpoint = "DETA_DRIVE_ENDPOINT"

	// EnvDebug enables debug logging when set to a true value.
	EnvDebug = "DETA_DEBUG"

	// DefaultName is used for the drive and the base when no name is configured.
	DefaultName = "default"
)

// Config ...
type Config struct {
	ProjectKey    string `toml:"project_key"`
	BaseEndpoint  string `toml:"base_endpoint"`
	DriveEndpoint string `toml:"drive_endpoint"`
	Debug         bool   `toml:"debug"`

	// Drive and Base name the default drive and base of the CLI.
	Drive string `toml:"drive"`
	Base  string `toml:"base"`
}

// DefaultPath returns ~/.deta/config.toml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".deta", "config.toml")
}

// Load reads the TOML file at path. An empty path reads DefaultPath, which
// may be missing.
func Load(path string) (*Config, error) {
	optional := path == ""
	if optional {
		path = DefaultPath()
	}
	if path == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}

// Merge applies the non-zero values of overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.ProjectKey != "" {
		c.ProjectKey = overlay.ProjectKey
	}
	if overlay.BaseEndpoint != "" {
		c.BaseEndpoint = overlay.BaseEndpoint
	}
	if overlay.DriveEndpoint != "" {
		c.DriveEndpoint = overlay.DriveEndpoint
	}
	if overlay.Debug {
		c.Debug = true
	}
	if overlay.Drive != "" {
		c.Drive = overlay.Drive
	}
	if overlay.Base != "" {
		c.Base = overlay.Base
	}
}

// Finalize applies defaults and environment overrides, then validates the
// configuration.
func (c *Config) Finalize(envRepo env.Repository) error {
	c.loadDefaults()
	if err := c.loadEnv(envRepo); err != nil {
		return err
	}
	return c.validate()
}

// Logger returns a logger with debug output toggled by Debug.
func (c *Config) Logger() log.Logger {
	logger := log.NewLogger()
	logger.EnableDebugLog(c.Debug)
	return logger
}

// BaseOptions returns the client options of the named base. An empty name
// selects the configured default.
func (c *Config) BaseOptions(name string, logger log.Logger) base.Options {
	if name == "" {
		name = c.Base
	}
	return base.Options{
		Name:       name,
		ProjectKey: c.ProjectKey,
		Endpoint:   c.BaseEndpoint,
		Logger:     logger,
	}
}

// DriveOptions returns the client options of the named drive. An empty
// name selects the configured default.
func (c *Config) DriveOptions(name string, logger log.Logger) drive.Options {
	if name == "" {
		name = c.Drive
	}
	return drive.Options{
		Name:       name,
		ProjectKey: c.ProjectKey,
		Endpoint:   c.DriveEndpoint,
		Logger:     logger,
	}
}

func (c *Config) loadDefaults() {
	if c.Drive == "" {
		c.Drive = DefaultName
	}
	if c.Base == "" {
		c.Base = DefaultName
	}
}

func (c *Config) loadEnv(envRepo env.Repository) error {
	if v := envRepo.Get(EnvProjectKey); v != "" {
		c.ProjectKey = v
	}
	if v := envRepo.Get(EnvBaseEndpoint); v != "" {
		c.BaseEndpoint = v
	}
	if v := envRepo.Get(EnvDriveEndpoint); v != "" {
		c.DriveEndpoint = v
	}
	if v := envRepo.Get(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		c.Debug = debug
	}
	return nil
}

func (c *Config) validate() error {
	if c.ProjectKey == "" {
		return fmt.Errorf("project key is not set, use %s or project_key in the config file", EnvProjectKey)
	}
	if err := projectkey.Validate(c.ProjectKey); err != nil {
		return fmt.Errorf("project key: %w", err)
	}
	return nil
}
