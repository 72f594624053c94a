package cliconfig

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from a .env file without overriding variables
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnvConfig applies FNORDCREDIT_* variables, skipping flags in changed.
// PORT is honored when no listen address is given.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("storage-prefix", os.Getenv("FNORDCREDIT_STORAGE_PREFIX"), &cfg.StoragePrefix)
	s.setString("backup-prefix", os.Getenv("FNORDCREDIT_BACKUP_PREFIX"), &cfg.BackupPrefix)
	s.setString("dirty-policy", os.Getenv("FNORDCREDIT_DIRTY_POLICY"), &cfg.DirtyPolicy)
	s.setString("static-dir", os.Getenv("FNORDCREDIT_STATIC_DIR"), &cfg.StaticDir)
	s.setString("log-level", os.Getenv("FNORDCREDIT_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("FNORDCREDIT_LOG_FORMAT"), &cfg.LogFormat)
	s.setString("log-file", os.Getenv("FNORDCREDIT_LOG_FILE"), &cfg.LogFile)

	if addr := os.Getenv("FNORDCREDIT_LISTEN_ADDR"); addr != "" {
		s.setString("listen", addr, &cfg.ListenAddr)
	} else if port := os.Getenv("PORT"); port != "" {
		s.setString("listen", ":"+port, &cfg.ListenAddr)
	}

	if err := s.setDuration("maintenance-interval", os.Getenv("FNORDCREDIT_MAINTENANCE_INTERVAL"), &cfg.MaintenanceInterval); err != nil {
		return err
	}
	if err := s.setDuration("backup-interval", os.Getenv("FNORDCREDIT_BACKUP_INTERVAL"), &cfg.BackupInterval); err != nil {
		return err
	}

	if err := s.setFloatFromString("rate-limit", os.Getenv("FNORDCREDIT_RATE_LIMIT"), &cfg.RateLimit); err != nil {
		return err
	}
	if err := s.setIntFromString("rate-burst", os.Getenv("FNORDCREDIT_RATE_BURST"), &cfg.RateBurst); err != nil {
		return err
	}

	s.setBoolFromString("flush-on-shutdown", os.Getenv("FNORDCREDIT_FLUSH_ON_SHUTDOWN"), &cfg.FlushOnShutdown)
	s.setBoolFromString("watch", os.Getenv("FNORDCREDIT_WATCH"), &cfg.Watch)

	return nil
}
