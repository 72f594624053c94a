package jsondb

import (
	"fmt"
	"time"
)

// FileSuffix is appended to the storage prefix and to every backup name.
const FileSuffix = ".json"

// DirtyPolicy decides how flush targets share staleness.
type DirtyPolicy int

const (
	// PerTarget tracks staleness separately for the canonical file, the
	// backup series and any explicitly saved path. A backup never hides a
	// pending canonical write.
	PerTarget DirtyPolicy = iota

	// SharedFlag behaves like one dirty flag: any successful flush marks
	// every target clean.
	SharedFlag
)

func (p DirtyPolicy) String() string {
	switch p {
	case PerTarget:
		return "per-target"
	case SharedFlag:
		return "shared"
	default:
		return "unknown"
	}
}

// ParseDirtyPolicy accepts the names produced by DirtyPolicy.String.
func ParseDirtyPolicy(s string) (DirtyPolicy, error) {
	switch s {
	case "", "per-target":
		return PerTarget, nil
	case "shared":
		return SharedFlag, nil
	default:
		return 0, fmt.Errorf("%w: unknown dirty policy %q", ErrInvalidConfig, s)
	}
}

// Config controls file naming and scheduling.
type Config struct {
	// StorageFilePrefix names the canonical file: prefix + ".json".
	// Required by Start.
	StorageFilePrefix string

	// BackupFilesPrefix prefixes timestamped backup names.
	// Default: StorageFilePrefix + "@"
	BackupFilesPrefix string

	// MaintenanceInterval is the period of the load/save cycle.
	// Zero runs the cycle once at Start and never again.
	MaintenanceInterval time.Duration

	// BackupInterval is the period between backups.
	// Zero takes a single backup after the first load.
	BackupInterval time.Duration

	DirtyPolicy DirtyPolicy

	// FlushOnShutdown writes the canonical file one last time during
	// Shutdown if it is stale. Off by default: unsaved changes are dropped.
	FlushOnShutdown bool
}

// SetDefaults fills derived fields.
func (c *Config) SetDefaults() {
	if c.BackupFilesPrefix == "" && c.StorageFilePrefix != "" {
		c.BackupFilesPrefix = c.StorageFilePrefix + "@"
	}
}

// Validate rejects configurations the schedulers cannot run.
func (c Config) Validate() error {
	if c.MaintenanceInterval < 0 {
		return fmt.Errorf("%w: maintenance interval must not be negative", ErrInvalidConfig)
	}
	if c.BackupInterval < 0 {
		return fmt.Errorf("%w: backup interval must not be negative", ErrInvalidConfig)
	}
	if c.DirtyPolicy != PerTarget && c.DirtyPolicy != SharedFlag {
		return fmt.Errorf("%w: unknown dirty policy %d", ErrInvalidConfig, c.DirtyPolicy)
	}
	return nil
}
