// Package events is the observer channel the store reports through.
//
// The store never writes to a console. It emits two kinds of events, log
// and error, and whoever embeds it subscribes a Handler to route them:
//
//	bus := events.NewBus()
//	unsubscribe := bus.Subscribe(events.LogSink(logger))
//	defer unsubscribe()
package events

import (
	"sync"
	"time"
)

// Kind distinguishes informational events from failures.
type Kind int

const (
	KindLog Kind = iota
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one report from the store.
type Event struct {
	Kind Kind

	// Op names the activity, e.g. "Load DB" or "Backup DB".
	Op      string
	Message string

	// Path is the file involved, if any.
	Path string

	// Err is set for KindError.
	Err error

	Time time.Time
}

// String renders "<Op>: <Message>".
func (e Event) String() string {
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

// Handler receives events.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event)

func (f HandlerFunc) HandleEvent(e Event) { f(e) }

type subscription struct {
	id uint64
	h  Handler
}

// Bus fans events out to subscribers. The zero value is ready to use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	now    func() time.Time
}

// NewBus returns an empty bus stamping events with time.Now.
func NewBus() *Bus {
	return &Bus{now: time.Now}
}

// SetClock replaces the time source used to stamp events.
func (b *Bus) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Subscribe registers h and returns a function that removes it again.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers e to every subscriber in subscription order. Handlers run
// on the caller's goroutine, outside the bus lock.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	subs := b.subs
	now := b.now
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}
	if e.Time.IsZero() {
		if now == nil {
			now = time.Now
		}
		e.Time = now()
	}
	for _, s := range subs {
		s.h.HandleEvent(e)
	}
}

// Log emits an informational event.
func (b *Bus) Log(op, msg string) {
	b.Emit(Event{Kind: KindLog, Op: op, Message: msg})
}

// LogPath emits an informational event about path.
func (b *Bus) LogPath(op, path, msg string) {
	b.Emit(Event{Kind: KindLog, Op: op, Path: path, Message: msg})
}

// Error emits a failure event.
func (b *Bus) Error(op, path string, err error) {
	b.Emit(Event{Kind: KindError, Op: op, Path: path, Message: err.Error(), Err: err})
}
