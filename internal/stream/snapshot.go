package stream

import (
	"time"

	"github.com/terminusxx/docker-wyze-bridge/internal/config"
)

// TakeSnapshots runs one snapshot round over the given URIs, defaulting
// to the currently active streams. Unless forced, the round only runs
// when the snapshot policy says one is due. In "rtsp" mode any prior
// capture for a URI is stopped first so every round gets a fresh
// subprocess instead of reusing a stale or hung one; in "api" mode the
// cloud thumbnail is requested directly. Per-camera failures never
// abort the round for the remaining URIs.
func (m *Manager) TakeSnapshots(uris []string, force bool) {
	mode := m.cfg.Snapshot.Type
	if !force && !m.policy.ShouldTake(mode, m.LastSnapshot()) {
		return
	}
	m.lastSnap.Store(time.Now().UnixNano())

	if uris == nil {
		uris = m.ActiveKeys()
	}
	for _, uri := range uris {
		if m.policy.ShouldSkip(uri) {
			continue
		}
		switch mode {
		case config.SnapshotRTSP:
			m.tracker.StopCapture(uri)
			m.startCapture(uri, true)
		case config.SnapshotAPI:
			if err := m.api.SaveThumbnail(uri, ""); err != nil {
				m.logger.Warn("Thumbnail request failed", "uri", uri, "error", err)
			}
		}
	}
}

// startCapture starts the stream if needed and ensures a capture
// subprocess is running for it. Returns nil when the URI is unknown or
// the subprocess could not be spawned.
func (m *Manager) startCapture(uri string, interval bool) *Capture {
	s := m.registry.Get(uri)
	if s == nil || m.snapCmd == nil {
		return nil
	}
	if err := s.Start(); err != nil {
		m.logger.Warn("Failed to start stream for capture", "uri", uri, "error", err)
		return nil
	}

	c, err := m.tracker.EnsureCapture(uri, m.snapCmd(uri, interval))
	if err != nil {
		m.logger.Error("Failed to spawn capture", "uri", uri, "error", err)
		return nil
	}
	return c
}

// GetRTSPSnap synchronously obtains a fresh snapshot for a URI, bounded
// by the configured snapshot timeout. The capture is always reaped
// before returning, whether it succeeded, failed or timed out.
func (m *Manager) GetRTSPSnap(uri string) bool {
	s := m.registry.Get(uri)
	if s == nil || s.HealthCheck() < 1 {
		return false
	}
	if m.startCapture(uri, false) == nil {
		return false
	}

	ok := m.tracker.WaitAndStop(uri, m.cfg.Snapshot.TimeoutDuration())
	if m.recorder != nil {
		m.recorder.RecordSnapshot(uri, ok)
	}
	return ok
}
