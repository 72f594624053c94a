package jsondb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fnordcredit/fnordcredit/pkg/lifecycle"
	"github.com/fnordcredit/fnordcredit/pkg/log"
	"github.com/fnordcredit/fnordcredit/pkg/timeunit"
)

// Timer names.
const (
	TimerMaintenance = "maintenance"
	TimerBackup      = "backup"
)

// Event ops.
const (
	OpLoad        = "Load DB"
	OpSave        = "Save DB"
	OpBackup      = "Backup DB"
	OpMaintenance = "DB Maintnc"
	OpShutdown    = "Shutdown DB"
)

// Start begins the maintenance cycle. The first firing happens right away on
// the store's clock: it loads the canonical file, and every later firing
// saves it if dirty. Once a load succeeds the backup schedule starts.
func (s *Store) Start(ctx context.Context) error {
	if s.cfg.StorageFilePrefix == "" {
		return ErrNoStoragePrefix
	}
	if err := s.lc.TransitionTo(lifecycle.StateStarting, "Start() called"); err != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.timerMu.Lock()
	s.runCtx = runCtx
	s.cancel = cancel
	s.timerMu.Unlock()

	pcfg := PluginConfig{
		CanonicalPath: s.CanonicalPath(),
		Store:         s,
		Logger:        s.logger,
	}
	for i, p := range s.plugins {
		if err := p.Initialize(runCtx, pcfg); err != nil {
			s.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			cancel()
			s.shutdownPlugins(context.Background(), s.plugins[:i])
			_ = s.lc.TransitionTo(lifecycle.StateCrashed, "plugin init failed: "+p.Name())
			return fmt.Errorf("initialize plugin %s: %w", p.Name(), err)
		}
		s.logger.Debug("plugin initialized", log.String("plugin", p.Name()))
	}

	s.arm(TimerMaintenance, 0, s.maintenanceFiring)
	if s.Loaded() {
		// Restarted after a previous run; the backup series resumes too.
		s.arm(TimerBackup, 0, s.backupFiring)
	}

	return s.lc.TransitionTo(lifecycle.StateRunning, "timers armed")
}

// TriggerMaintenance runs a maintenance firing now, on the caller's
// goroutine, and restarts the maintenance interval from here.
func (s *Store) TriggerMaintenance() error {
	if !s.runMaintenance() {
		return ErrNotRunning
	}
	return nil
}

func (s *Store) maintenanceFiring() { s.runMaintenance() }

func (s *Store) runMaintenance() bool {
	done, ok := s.lc.Enter()
	if !ok {
		return false
	}
	defer done()

	// Rearm first so a slow or failing action never delays the next run.
	s.rescheduleMaintenance()

	s.maintMu.Lock()
	defer s.maintMu.Unlock()

	ctx := s.context()
	path := s.CanonicalPath()

	if !s.Loaded() {
		s.bus.LogPath(OpLoad, path, "read "+path)
		err := s.LoadFromFile(ctx, path)
		if err == nil {
			// First backup runs from its own timer, not this call stack.
			s.arm(TimerBackup, 0, s.backupFiring)
		}
		s.report(OpLoad, path, OutcomeFlushed, err)
		return true
	}

	s.bus.LogPath(OpSave, path, "if modified, write to "+path)
	outcome, err := s.flushIfStale(ctx, targetCanonical, path)
	s.report(OpSave, path, outcome, err)
	return true
}

func (s *Store) rescheduleMaintenance() {
	interval := s.cfg.MaintenanceInterval
	if interval <= 0 {
		s.stopTimer(TimerMaintenance)
		return
	}
	s.bus.Log(OpMaintenance, fmt.Sprintf("schedule next run in about %.2f minutes",
		timeunit.ToMinutes(interval)))
	s.arm(TimerMaintenance, interval, s.maintenanceFiring)
}

func (s *Store) backupFiring() {
	done, ok := s.lc.Enter()
	if !ok {
		return
	}
	defer done()

	s.stopTimer(TimerBackup)

	path := s.BackupPath(s.clock.Now())
	outcome, err := s.flushIfStale(s.context(), targetBackup, path)
	s.report(OpBackup, path, outcome, err)

	if interval := s.cfg.BackupInterval; interval > 0 {
		s.bus.Log(OpBackup, fmt.Sprintf("schedule next run in about %.2f hours",
			timeunit.ToHours(interval)))
		s.arm(TimerBackup, interval, s.backupFiring)
	}
}

func (s *Store) report(op, path string, outcome Outcome, err error) {
	if err != nil {
		s.bus.Error(op, path, err)
		return
	}
	s.bus.LogPath(op, path, outcome.String())
}

// Shutdown cancels every timer and waits for firings in progress until ctx
// ends. Unsaved changes are not written unless FlushOnShutdown is set.
func (s *Store) Shutdown(ctx context.Context) error {
	if err := s.lc.TransitionTo(lifecycle.StateStopping, "Shutdown() called"); err != nil {
		return ErrNotRunning
	}

	s.timerMu.Lock()
	names := make([]string, 0, len(s.timers))
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	s.bus.Log(OpShutdown, fmt.Sprintf("cancel %d timers", len(names)))
	for _, name := range names {
		s.timers[name].Stop()
		delete(s.timers, name)
		s.bus.Log(OpShutdown, "canceled timer "+name)
	}
	cancel := s.cancel
	s.timerMu.Unlock()

	waitErr := s.lc.Wait(ctx)
	if cancel != nil {
		cancel()
	}

	if s.cfg.FlushOnShutdown && waitErr == nil && s.Loaded() {
		path := s.CanonicalPath()
		outcome, err := s.flushIfStale(ctx, targetCanonical, path)
		s.report(OpShutdown, path, outcome, err)
	}

	s.shutdownPlugins(ctx, s.plugins)

	if waitErr != nil {
		_ = s.lc.TransitionTo(lifecycle.StateCrashed, "shutdown wait interrupted")
		return waitErr
	}
	return s.lc.TransitionTo(lifecycle.StateStopped, "graceful shutdown")
}

func (s *Store) shutdownPlugins(ctx context.Context, plugins []Plugin) {
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			s.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		}
	}
}

// arm replaces the named timer. It does nothing once shutdown has begun.
func (s *Store) arm(name string, d time.Duration, f func()) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if t, ok := s.timers[name]; ok {
		t.Stop()
	}
	if !s.lc.Accepting() {
		delete(s.timers, name)
		return
	}
	s.timers[name] = s.clock.AfterFunc(d, f)
}

func (s *Store) stopTimer(name string) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if t, ok := s.timers[name]; ok {
		t.Stop()
	}
}

func (s *Store) context() context.Context {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.runCtx
}
