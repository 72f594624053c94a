package jsondb

import (
	"github.com/fnordcredit/fnordcredit/pkg/clock"
	"github.com/fnordcredit/fnordcredit/pkg/events"
	"github.com/fnordcredit/fnordcredit/pkg/log"
)

// Option configures optional collaborators of a Store.
type Option func(*options)

type options struct {
	clock    clock.Clock
	fs       FileSystem
	logger   log.Logger
	handlers []events.Handler
	plugins  []Plugin
}

func defaultOptions() options {
	return options{
		clock:  clock.Real{},
		fs:     OSFileSystem{},
		logger: log.NewNoopLogger(),
	}
}

// WithClock replaces the wall clock, e.g. with a manual clock in tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithFileSystem replaces the local disk.
func WithFileSystem(fs FileSystem) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithLogger sets the logger used for lifecycle diagnostics. Store activity
// is reported through events, not this logger.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler subscribes h before the store does anything, so no event
// is missed.
func WithEventHandler(h events.Handler) Option {
	return func(o *options) {
		o.handlers = append(o.handlers, h)
	}
}

// WithPlugin registers a plugin. Plugins are initialized in registration
// order by Start and shut down in reverse order by Shutdown.
func WithPlugin(p Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, p)
	}
}
