package loadwatch

import "github.com/fnordcredit/fnordcredit/pkg/jsondb"

// WithLoadWatch returns a jsondb Option that loads the canonical file as soon
// as it appears, instead of waiting for the next maintenance run.
//
// Usage:
//
//	store, err := jsondb.New(cfg,
//	    loadwatch.WithLoadWatch(loadwatch.Config{
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithLoadWatch(cfg Config) jsondb.Option {
	return jsondb.WithPlugin(New(cfg))
}

// WithDefaultLoadWatch enables load watching with a 100ms debounce.
func WithDefaultLoadWatch() jsondb.Option {
	return WithLoadWatch(DefaultConfig())
}
