package jsondb

import "errors"

// Failure kinds. Errors returned by the store match one of these with
// errors.Is; the underlying cause is matchable too.
var (
	ErrRead          = errors.New("failed to read file")
	ErrWrite         = errors.New("failed to write file")
	ErrParse         = errors.New("failed to parse JSON")
	ErrSerialize     = errors.New("failed to jsonify")
	ErrAlreadyLoaded = errors.New("ignored: previous data is still loaded")
)

// Usage errors.
var (
	// ErrNotLoaded is returned by data access while no document is loaded.
	ErrNotLoaded = errors.New("jsondb: data not loaded")

	// ErrNoStoragePrefix is returned by Start when no storage file prefix is
	// configured; without it there is no canonical file to maintain.
	ErrNoStoragePrefix = errors.New("jsondb: storage file prefix not configured")

	ErrAlreadyRunning = errors.New("jsondb: already running")
	ErrNotRunning     = errors.New("jsondb: not running")
	ErrInvalidConfig  = errors.New("jsondb: invalid configuration")
)

// OpError describes a failed load or save.
type OpError struct {
	// Op is "load" or "save".
	Op   string
	Path string

	// Kind is one of ErrRead, ErrWrite, ErrParse, ErrSerialize or
	// ErrAlreadyLoaded.
	Kind error

	// Err is the cause, nil for guard violations.
	Err error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
