package jsondb

import (
	"errors"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/fnordcredit/fnordcredit/internal/testutil"
	"github.com/fnordcredit/fnordcredit/pkg/events"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// memFS is an in-memory FileSystem that counts calls.
type memFS struct {
	mu       sync.Mutex
	files    map[string][]byte
	reads    int
	writes   []string
	readErr  error
	writeErr error
	onWrite  func(name string)
}

func newMemFS() *memFS {
	return &memFS{files: map[string][]byte{}}
}

func (m *memFS) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	b, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), b...), nil
}

func (m *memFS) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	hook := m.onWrite
	m.mu.Unlock()
	if hook != nil {
		hook(name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, name)
	m.files[name] = append([]byte(nil), data...)
	return nil
}

func (m *memFS) put(name, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = []byte(content)
}

func (m *memFS) get(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[name]
	return string(b), ok
}

func (m *memFS) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *memFS) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func (m *memFS) written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

func (m *memFS) failWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// eventLog records store events.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) HandleEvent(e events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Event(nil), l.events...)
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func (l *eventLog) strings(kind events.Kind) []string {
	var out []string
	for _, e := range l.all() {
		if e.Kind == kind {
			out = append(out, e.String())
		}
	}
	return out
}

func (l *eventLog) has(kind events.Kind, text string) bool {
	for _, s := range l.strings(kind) {
		if s == text {
			return true
		}
	}
	return false
}

type harness struct {
	store *Store
	fs    *memFS
	clock *testutil.ManualClock
	log   *eventLog
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		fs:    newMemFS(),
		clock: testutil.NewManualClock(epoch),
		log:   &eventLog{},
	}
	opts = append([]Option{
		WithFileSystem(h.fs),
		WithClock(h.clock),
		WithEventHandler(h.log),
	}, opts...)

	store, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.store = store
	return h
}

func mustLoad(t *testing.T, s *Store, content string) {
	t.Helper()
	if err := s.LoadFromString(content); err != nil {
		t.Fatalf("LoadFromString(%q): %v", content, err)
	}
}

var errDiskFull = errors.New("disk full")
