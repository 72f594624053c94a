package jsondb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fnordcredit/fnordcredit/pkg/clock"
	"github.com/fnordcredit/fnordcredit/pkg/events"
	"github.com/fnordcredit/fnordcredit/pkg/lifecycle"
	"github.com/fnordcredit/fnordcredit/pkg/log"
)

// Flush target keys.
const (
	targetCanonical = "canonical"
	targetBackup    = "backup"
	targetShared    = "*"
)

// backupTimeLayout is ISO-8601 in UTC with milliseconds.
const backupTimeLayout = "2006-01-02T15:04:05.000Z"

// Outcome reports what a conditional save did.
type Outcome int

const (
	OutcomeFlushed Outcome = iota
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFlushed:
		return "success"
	case OutcomeSkipped:
		return "skip: not modified"
	default:
		return "unknown"
	}
}

// Store owns one JSON document, loaded from and periodically written back to
// a canonical file, with timestamped backups on a separate schedule.
//
// Construction has no side effects. Start arms the timers; Shutdown cancels
// them. All methods are safe for concurrent use.
type Store struct {
	cfg     Config
	clock   clock.Clock
	fs      FileSystem
	bus     *events.Bus
	logger  log.Logger
	plugins []Plugin
	lc      *lifecycle.Manager

	mu     sync.Mutex
	data   any
	loaded bool
	// gen counts MarkDirty calls since load; flushed holds the generation
	// last written per target. A target is stale while gen > flushed[target].
	gen     uint64
	flushed map[string]uint64

	paths pathLocks

	// maintMu serializes maintenance firings.
	maintMu sync.Mutex

	timerMu sync.Mutex
	timers  map[string]clock.Timer
	cancel  context.CancelFunc
	runCtx  context.Context
}

// New returns an unloaded, stopped store.
func New(cfg Config, opts ...Option) (*Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	bus := events.NewBus()
	bus.SetClock(o.clock.Now)
	for _, h := range o.handlers {
		bus.Subscribe(h)
	}

	return &Store{
		cfg:     cfg,
		clock:   o.clock,
		fs:      o.fs,
		bus:     bus,
		logger:  o.logger,
		plugins: o.plugins,
		lc:      lifecycle.NewManager(o.logger, nil),
		flushed: map[string]uint64{},
		timers:  map[string]clock.Timer{},
		runCtx:  context.Background(),
	}, nil
}

// Subscribe registers h on the store's event channel.
func (s *Store) Subscribe(h events.Handler) (unsubscribe func()) {
	return s.bus.Subscribe(h)
}

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// CanonicalPath is StorageFilePrefix + ".json".
func (s *Store) CanonicalPath() string {
	return s.cfg.StorageFilePrefix + FileSuffix
}

// BackupPath names the backup taken at t. Colons are replaced so the name
// is valid on every common file system.
func (s *Store) BackupPath(t time.Time) string {
	stamp := strings.ReplaceAll(t.UTC().Format(backupTimeLayout), ":", "-")
	return s.cfg.BackupFilesPrefix + stamp + FileSuffix
}

// Loaded reports whether a document has been installed.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Dirty reports whether the canonical file is behind the in-memory document.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleLocked(targetCanonical)
}

// Status returns the scheduler's lifecycle state.
func (s *Store) Status() lifecycle.State {
	return s.lc.State()
}

// MarkDirty records that the document changed. Call it whenever the document
// is mutated outside Update.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
}

// LoadFromFile reads path and installs its content as the document. It fails
// with ErrAlreadyLoaded, without touching the file, if a document is present.
func (s *Store) LoadFromFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Loaded() {
		return &OpError{Op: "load", Path: path, Kind: ErrAlreadyLoaded}
	}

	content, err := s.fs.ReadFile(path)
	if err != nil {
		return &OpError{Op: "load", Path: path, Kind: ErrRead, Err: err}
	}
	if err := s.install(content); err != nil {
		var opErr *OpError
		if errors.As(err, &opErr) {
			opErr.Path = path
		}
		return err
	}
	return nil
}

// LoadFromString installs content as the document.
func (s *Store) LoadFromString(content string) error {
	return s.install([]byte(content))
}

func (s *Store) install(content []byte) error {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return &OpError{Op: "load", Kind: ErrAlreadyLoaded}
	}

	doc, err := decode(content)
	if err != nil {
		return &OpError{Op: "load", Kind: ErrParse, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another load may have won while decoding.
	if s.loaded {
		return &OpError{Op: "load", Kind: ErrAlreadyLoaded}
	}
	s.data = doc
	s.loaded = true
	s.gen = 0
	s.flushed = map[string]uint64{}
	return nil
}

var errNullDocument = errors.New("document is null")

// decode parses exactly one JSON value, keeping numbers as json.Number so an
// untouched document is written back with the same digits.
func decode(content []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	if doc == nil {
		return nil, errNullDocument
	}
	return doc, nil
}

// encode serializes doc without HTML escaping and without a trailing
// newline, so text such as "Tom & Jerry" is written as it was read.
func encode(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return rawLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// rawLineSeparators undoes the encoder's unconditional escaping of U+2028
// and U+2029. Escape sequences are walked pairwise so an escaped backslash
// followed by "u2028" is left alone.
func rawLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 == len(b) {
			out = append(out, b[i])
			continue
		}
		switch {
		case bytes.HasPrefix(b[i:], []byte(`\u2028`)):
			out = append(out, "\u2028"...)
			i += 5
		case bytes.HasPrefix(b[i:], []byte(`\u2029`)):
			out = append(out, "\u2029"...)
			i += 5
		default:
			out = append(out, b[i], b[i+1])
			i++
		}
	}
	return out
}

// SaveToFile writes the document to path unconditionally. It does not change
// what is considered dirty.
func (s *Store) SaveToFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.paths.lock(path)
	defer unlock()

	_, err := s.write(path)
	return err
}

// SaveIfModified writes the document to path only if that path is behind the
// in-memory document, and on success records it as current. A clean path is
// reported as OutcomeSkipped without any I/O.
func (s *Store) SaveIfModified(ctx context.Context, path string) (Outcome, error) {
	target := path
	if path == s.CanonicalPath() {
		target = targetCanonical
	}
	return s.flushIfStale(ctx, target, path)
}

func (s *Store) flushIfStale(ctx context.Context, target, path string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeSkipped, err
	}
	unlock := s.paths.lock(path)
	defer unlock()

	s.mu.Lock()
	stale := s.loaded && s.staleLocked(target)
	s.mu.Unlock()
	if !stale {
		return OutcomeSkipped, nil
	}

	gen, err := s.write(path)
	if err != nil {
		return OutcomeSkipped, err
	}

	s.mu.Lock()
	key := s.targetKey(target)
	if gen > s.flushed[key] {
		s.flushed[key] = gen
	}
	s.mu.Unlock()
	return OutcomeFlushed, nil
}

// write serializes under the lock and writes outside it. It returns the
// generation the written bytes correspond to.
func (s *Store) write(path string) (uint64, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return 0, ErrNotLoaded
	}
	gen := s.gen
	content, err := encode(s.data)
	s.mu.Unlock()
	if err != nil {
		return 0, &OpError{Op: "save", Path: path, Kind: ErrSerialize, Err: err}
	}

	if err := s.fs.WriteFile(path, content); err != nil {
		return 0, &OpError{Op: "save", Path: path, Kind: ErrWrite, Err: err}
	}
	return gen, nil
}

func (s *Store) targetKey(target string) string {
	if s.cfg.DirtyPolicy == SharedFlag {
		return targetShared
	}
	return target
}

func (s *Store) staleLocked(target string) bool {
	return s.gen > s.flushed[s.targetKey(target)]
}

// Update runs fn with the document under the store lock and marks the store
// dirty when fn succeeds. fn mutates the document in place and must leave it
// untouched when returning an error.
func (s *Store) Update(fn func(doc any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNotLoaded
	}
	if err := fn(s.data); err != nil {
		return err
	}
	s.gen++
	return nil
}

// View runs fn with the document under the store lock. fn must not mutate or
// retain the document.
func (s *Store) View(fn func(doc any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNotLoaded
	}
	return fn(s.data)
}

// pathLocks serializes writes per file path.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func (p *pathLocks) lock(path string) (unlock func()) {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = map[string]*pathLock{}
	}
	l, ok := p.locks[path]
	if !ok {
		l = &pathLock{}
		p.locks[path] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, path)
		}
		p.mu.Unlock()
	}
}
