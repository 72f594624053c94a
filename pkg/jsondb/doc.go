// Package jsondb keeps one JSON document in memory and persists it to a
// single canonical file, with timestamped backups on an independent
// schedule.
//
// # Usage
//
//	store, err := jsondb.New(jsondb.Config{
//	    StorageFilePrefix:   "db/database",
//	    BackupFilesPrefix:   "db/backup.",
//	    MaintenanceInterval: timeunit.FromMinutes(1),
//	    BackupInterval:      timeunit.FromHours(3),
//	}, jsondb.WithEventHandler(events.LogSink(logger)))
//	if err != nil {
//	    return err
//	}
//	if err := store.Start(ctx); err != nil {
//	    return err
//	}
//	defer store.Shutdown(context.Background())
//
//	err = store.Update(func(doc any) error {
//	    doc.(map[string]any)["~alice"] = map[string]any{"name": "alice", "credit": 0}
//	    return nil
//	})
//
// # Scheduling
//
// Start arms the maintenance timer with zero delay. Each maintenance firing
// first rearms itself, then loads the canonical file if nothing is loaded yet,
// or writes it if it is behind memory. The first successful load starts the
// backup timer; each backup firing writes prefix + timestamp + ".json" if
// the backup series is behind memory. Failures during scheduled work are
// reported as error events and retried on the next firing.
//
// # Dirty tracking
//
// MarkDirty (or a successful Update) bumps a generation counter. Each flush
// target remembers the generation it last wrote. With the default PerTarget
// policy the canonical file and the backups go stale independently; with
// SharedFlag any successful flush marks everything clean.
//
// # Shutdown
//
// Shutdown cancels all timers. It does not write pending changes unless
// Config.FlushOnShutdown is set.
package jsondb
