package stream

import (
	"time"
)

const (
	eventReadTimeout  = time.Second
	watcherScanPause  = time.Second
	watcherJoinWait   = 5 * time.Second
	healthBeatSeconds = 15
)

// Run is the supervisor's main monitoring loop. It services media-relay
// events with a bounded wait, schedules snapshot rounds, polls motion
// and on a 15 second wall-clock boundary invokes the health callback
// and publishes bridge status. Run blocks until Stop is called and all
// teardown has completed.
func (m *Manager) Run(healthCB func()) {
	m.stopFlag.Store(false)

	if m.cfg.Bridge.Discovery {
		m.startSnapshotWatcher()
	}

	var stopControl func()
	if m.notifier != nil {
		stop, err := m.notifier.CamControl(m.Send)
		if err != nil {
			m.logger.Warn("Camera control channel unavailable", "error", err)
		} else {
			stopControl = stop
		}
	}

	m.logger.Info("Stream monitoring started", "total", m.Total(), "enabled", m.Active())

	var lastBeat int64
	for !m.stopFlag.Load() {
		if m.events != nil {
			m.events.Read(eventReadTimeout)
		} else {
			time.Sleep(eventReadTimeout)
		}

		m.TakeSnapshots(nil, false)

		if m.motion != nil && m.cfg.Motion.Enabled {
			m.motion.CheckMotion()
		}

		if now := time.Now().Unix(); now%healthBeatSeconds == 0 && now != lastBeat {
			lastBeat = now
			if healthCB != nil {
				healthCB()
			}
			if m.notifier != nil {
				m.notifier.BridgeStatus("online")
			}
		}
	}

	if stopControl != nil {
		m.logger.Info("Stopping camera control channel")
		stopControl()
	}

	m.teardown()
	m.logger.Info("Stream monitoring stopped")
}

// Stop requests shutdown. It is idempotent and non-blocking; teardown
// completes inside Run, which returns once everything is stopped.
func (m *Manager) Stop() {
	if m.stopFlag.Swap(true) {
		return
	}
	m.logger.Info("Stopping streams", "total", m.Total())
}

// teardown stops every stream, kills in-flight captures and joins the
// snapshot watcher with a bounded wait.
func (m *Manager) teardown() {
	m.stopFlag.Store(true)

	for _, uri := range m.registry.Keys() {
		if s := m.registry.Get(uri); s != nil {
			if err := s.Stop(); err != nil {
				m.logger.Warn("Failed to stop stream", "uri", uri, "error", err)
			}
		}
	}

	m.tracker.StopAll()
	m.joinSnapshotWatcher()

	if m.cleanup != nil {
		m.cleanup()
	}

	if m.events != nil {
		if err := m.events.Close(); err != nil {
			m.logger.Warn("Failed to close event source", "error", err)
		}
	}
}

// startSnapshotWatcher starts the background capture-reaping loop. If a
// previous watcher is still running it is joined first, so at most one
// instance runs at a time.
func (m *Manager) startSnapshotWatcher() {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()

	if m.watcherDone != nil {
		m.logger.Info("Stopping previous snapshot watcher")
		select {
		case <-m.watcherDone:
		case <-time.After(watcherJoinWait):
			m.logger.Warn("Previous snapshot watcher still finishing")
		}
		m.watcherDone = nil
	}

	done := make(chan struct{})
	m.watcherDone = done

	go func() {
		defer close(done)
		m.watchSnapshots()
	}()
}

// joinSnapshotWatcher waits (bounded) for the watcher to exit.
func (m *Manager) joinSnapshotWatcher() {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()

	if m.watcherDone == nil {
		return
	}
	m.logger.Info("Stopping snapshot watcher")
	select {
	case <-m.watcherDone:
	case <-time.After(watcherJoinWait):
		m.logger.Warn("Timed out waiting for snapshot watcher")
	}
	m.watcherDone = nil
}

// watchSnapshots publishes a preview for every registered stream once,
// then reaps completed captures until stop is requested, publishing a
// preview update for each clean exit.
func (m *Manager) watchSnapshots() {
	m.logger.Info("Starting snapshot watcher")

	for _, uri := range m.registry.Keys() {
		if m.stopFlag.Load() {
			return
		}
		m.preview(uri)
	}

	for !m.stopFlag.Load() {
		m.scanCaptures()
		time.Sleep(watcherScanPause)
	}
}

// scanCaptures reaps every exited capture. Failures inside a scan are
// contained so the watcher keeps running.
func (m *Manager) scanCaptures() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Unexpected error in snapshot watcher", "error", r)
		}
	}()

	for uri, c := range m.tracker.Snapshot() {
		if m.stopFlag.Load() {
			return
		}
		code, exited := c.ExitCode()
		if !exited {
			continue
		}
		if code == 0 {
			m.preview(uri)
			if m.recorder != nil {
				m.recorder.RecordSnapshot(uri, true)
			}
		}
		m.tracker.Reap(uri)
	}
}

func (m *Manager) preview(uri string) {
	if m.notifier != nil {
		m.notifier.UpdatePreview(uri)
	}
}
