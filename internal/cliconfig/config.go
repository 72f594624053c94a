package cliconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fnordcredit/fnordcredit/internal/server"
	"github.com/fnordcredit/fnordcredit/pkg/jsondb"
	"github.com/fnordcredit/fnordcredit/pkg/timeunit"
)

// DefaultPort is the HTTP port when neither flags, env nor file set one.
const DefaultPort = 8000

// Config holds CLI configuration for fnordcredit.
type Config struct {
	StoragePrefix string
	BackupPrefix  string

	MaintenanceInterval time.Duration
	BackupInterval      time.Duration
	DirtyPolicy         string
	FlushOnShutdown     bool
	Watch               bool

	ListenAddr string
	StaticDir  string
	RateLimit  float64
	RateBurst  int

	LogLevel  string
	LogFormat string
	LogFile   string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		StoragePrefix:       "db/database",
		BackupPrefix:        "db/backup.",
		MaintenanceInterval: timeunit.FromMinutes(1),
		BackupInterval:      timeunit.FromHours(3),
		DirtyPolicy:         jsondb.PerTarget.String(),
		Watch:               true,
		ListenAddr:          ":" + strconv.Itoa(DefaultPort),
		LogLevel:            "info",
		LogFormat:           "console",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.StoragePrefix == "" {
		return fmt.Errorf("storage-prefix is required")
	}
	if c.MaintenanceInterval < 0 {
		return fmt.Errorf("maintenance interval must not be negative")
	}
	if c.BackupInterval < 0 {
		return fmt.Errorf("backup interval must not be negative")
	}
	if _, err := jsondb.ParseDirtyPolicy(c.DirtyPolicy); err != nil {
		return err
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// StoreConfig converts to the store's configuration. Call after Validate.
func (c Config) StoreConfig() jsondb.Config {
	policy, _ := jsondb.ParseDirtyPolicy(c.DirtyPolicy)
	return jsondb.Config{
		StorageFilePrefix:   c.StoragePrefix,
		BackupFilesPrefix:   c.BackupPrefix,
		MaintenanceInterval: c.MaintenanceInterval,
		BackupInterval:      c.BackupInterval,
		DirtyPolicy:         policy,
		FlushOnShutdown:     c.FlushOnShutdown,
	}
}

// ServerConfig converts to the HTTP server's configuration.
func (c Config) ServerConfig() server.Config {
	return server.Config{
		ListenAddr: c.ListenAddr,
		StaticDir:  c.StaticDir,
		RateLimit:  c.RateLimit,
		RateBurst:  c.RateBurst,
	}
}

// configSetter applies values only where the flag was not set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration accepts "0" to disable a schedule.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString treats "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
