package jsondb

import (
	"context"

	"github.com/fnordcredit/fnordcredit/pkg/log"
)

// Plugin extends a running store with background behavior.
type Plugin interface {
	Name() string

	// Initialize is called by Start. ctx is cancelled by Shutdown.
	Initialize(ctx context.Context, cfg PluginConfig) error

	Shutdown(ctx context.Context) error
}

// PluginConfig is handed to plugins on initialization.
type PluginConfig struct {
	CanonicalPath string
	Store         *Store
	Logger        log.Logger
}
