// Package loadwatch triggers an early load when the canonical file of an
// unloaded store is created or written.
package loadwatch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fnordcredit/fnordcredit/pkg/jsondb"
	"github.com/fnordcredit/fnordcredit/pkg/log"
)

// Trigger is the part of the store the watcher drives.
type Trigger interface {
	Loaded() bool
	TriggerMaintenance() error
}

// Plugin watches the directory of the canonical file.
type Plugin struct {
	mu sync.Mutex

	debounceDelay time.Duration

	path     string
	store    Trigger
	logger   log.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds the watcher settings.
type Config struct {
	// DebounceDelay is how long to wait after the last change before loading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

func DefaultConfig() Config {
	return Config{DebounceDelay: 100 * time.Millisecond}
}

func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{debounceDelay: cfg.DebounceDelay}
}

func (p *Plugin) Name() string {
	return "loadwatch"
}

// Initialize starts watching. A missing directory disables the plugin; the
// regular maintenance cycle still loads the file.
func (p *Plugin) Initialize(ctx context.Context, cfg jsondb.PluginConfig) error {
	var store Trigger
	if cfg.Store != nil {
		store = cfg.Store
	}
	return p.start(ctx, cfg.CanonicalPath, store, cfg.Logger)
}

func (p *Plugin) start(ctx context.Context, path string, store Trigger, logger log.Logger) error {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	p.mu.Lock()
	p.path = path
	p.store = store
	p.logger = logger
	p.mu.Unlock()

	if path == "" || store == nil {
		logger.Warn("Load watcher disabled: no canonical file")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("Load watcher: failed to create watcher", log.Err(err))
		return nil
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("Load watcher disabled: cannot watch directory",
			log.String("dir", dir),
			log.Err(err))
		watcher.Close()
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	logger.Info("Load watcher plugin initialized", log.String("dir", dir))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the watcher and any pending debounced load.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if p.store.Loaded() {
				continue
			}
			p.debounceLoad(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("Load watcher: watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceLoad(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil || p.store.Loaded() {
			return
		}
		if err := p.store.TriggerMaintenance(); err != nil {
			p.logger.Warn("Load watcher: trigger failed", log.Err(err))
			return
		}
		p.logger.Info("Load watcher: canonical file appeared", log.String("path", p.path))
	})
}

var _ jsondb.Plugin = (*Plugin)(nil)
