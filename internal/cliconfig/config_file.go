package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with string durations for TOML.
type FileConfig struct {
	StoragePrefix       string  `toml:"storage_prefix"`
	BackupPrefix        string  `toml:"backup_prefix"`
	MaintenanceInterval string  `toml:"maintenance_interval"`
	BackupInterval      string  `toml:"backup_interval"`
	DirtyPolicy         string  `toml:"dirty_policy"`
	FlushOnShutdown     *bool   `toml:"flush_on_shutdown"`
	Watch               *bool   `toml:"watch"`
	ListenAddr          string  `toml:"listen_addr"`
	StaticDir           string  `toml:"static_dir"`
	RateLimit           float64 `toml:"rate_limit"`
	RateBurst           int     `toml:"rate_burst"`
	LogLevel            string  `toml:"log_level"`
	LogFormat           string  `toml:"log_format"`
	LogFile             string  `toml:"log_file"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.fnordcredit/config.toml, or "" without a
// home directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".fnordcredit", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies fc to cfg, skipping flags in changed.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("storage-prefix", fc.StoragePrefix, &cfg.StoragePrefix)
	s.setString("backup-prefix", fc.BackupPrefix, &cfg.BackupPrefix)
	s.setString("dirty-policy", fc.DirtyPolicy, &cfg.DirtyPolicy)
	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("static-dir", fc.StaticDir, &cfg.StaticDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)

	if err := s.setDuration("maintenance-interval", fc.MaintenanceInterval, &cfg.MaintenanceInterval); err != nil {
		return err
	}
	if err := s.setDuration("backup-interval", fc.BackupInterval, &cfg.BackupInterval); err != nil {
		return err
	}

	s.setFloat("rate-limit", fc.RateLimit, &cfg.RateLimit)
	s.setInt("rate-burst", fc.RateBurst, &cfg.RateBurst)

	s.setBool("flush-on-shutdown", fc.FlushOnShutdown, &cfg.FlushOnShutdown)
	s.setBool("watch", fc.Watch, &cfg.Watch)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
