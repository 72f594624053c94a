// Package lifecycle is the start/stop state machine behind the store's
// schedulers.
//
// A Manager moves between states and tracks in-flight workers so shutdown
// can wait for them:
//
//	m := lifecycle.NewManager(logger, nil)
//	if err := m.TransitionTo(lifecycle.StateStarting, "Start() called"); err != nil {
//	    return err
//	}
//	_ = m.TransitionTo(lifecycle.StateRunning, "timers armed")
//
//	// in each timer callback
//	done, ok := m.Enter()
//	if !ok {
//	    return
//	}
//	defer done()
//
//	_ = m.TransitionTo(lifecycle.StateStopping, "Shutdown() called")
//	err := m.Wait(ctx)
//
// # State Machine
//
// Valid state transitions:
//   - Stopped -> Starting
//   - Starting -> Running, Stopping, Crashed
//   - Running -> Stopping, Crashed
//   - Stopping -> Stopped, Crashed
//   - Crashed -> Starting
package lifecycle
