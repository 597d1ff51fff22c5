package stream

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/terminusxx/docker-wyze-bridge/internal/camera"
	"github.com/terminusxx/docker-wyze-bridge/internal/config"
)

// Manager supervises all registered streams: it drives the monitoring
// loop, schedules snapshot rounds, tracks capture subprocesses and
// dispatches commands.
type Manager struct {
	cfg      *config.Config
	api      ThumbnailSaver
	notifier Notifier
	build    StreamBuilder
	registry *Registry
	tracker  *Tracker
	logger   *slog.Logger

	events   EventSource
	motion   MotionChecker
	policy   SnapshotPolicy
	recorder SnapshotRecorder
	snapCmd  func(uri string, interval bool) []string
	cleanup  func()

	stopFlag atomic.Bool
	lastSnap atomic.Int64 // unix nanos of the last snapshot round

	watcherMu   sync.Mutex
	watcherDone chan struct{}
}

// NewManager creates a stream manager. Event source, motion checker,
// snapshot policy and history recorder are optional and attached with
// the setters below before Run is called.
func NewManager(cfg *config.Config, api ThumbnailSaver, notifier Notifier, build StreamBuilder) *Manager {
	return &Manager{
		cfg:      cfg,
		api:      api,
		notifier: notifier,
		build:    build,
		registry: NewRegistry(),
		tracker:  NewTracker(),
		policy:   allowAllPolicy{interval: cfg.Snapshot.IntervalDuration()},
		logger:   slog.Default().With("component", "stream-manager"),
	}
}

// SetEventSource attaches the media-relay event source.
func (m *Manager) SetEventSource(src EventSource) { m.events = src }

// SetMotion attaches the motion polling collaborator.
func (m *Manager) SetMotion(mc MotionChecker) { m.motion = mc }

// SetPolicy replaces the snapshot gating policy.
func (m *Manager) SetPolicy(p SnapshotPolicy) { m.policy = p }

// SetRecorder attaches the snapshot history recorder.
func (m *Manager) SetRecorder(r SnapshotRecorder) { m.recorder = r }

// SetSnapCmd sets the builder for capture subprocess command lines.
func (m *Manager) SetSnapCmd(fn func(uri string, interval bool) []string) { m.snapCmd = fn }

// SetCleanup sets a hook run at the end of shutdown, after all streams
// and captures are stopped.
func (m *Manager) SetCleanup(fn func()) { m.cleanup = fn }

// Registry exposes the stream registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Tracker exposes the capture tracker.
func (m *Manager) Tracker() *Tracker { return m.tracker }

// Register expands and registers a device, returning the primary URI.
func (m *Manager) Register(dev *camera.Device) string {
	return m.registry.Register(dev, m.build)
}

// Get returns the stream for a URI, or nil.
func (m *Manager) Get(uri string) Stream { return m.registry.Get(uri) }

// Total returns the number of registered streams.
func (m *Manager) Total() int { return m.registry.Total() }

// Active returns the number of enabled streams.
func (m *Manager) Active() int { return m.registry.Active() }

// AllInfo returns a status snapshot of every stream.
func (m *Manager) AllInfo() map[string]map[string]any { return m.registry.AllInfo() }

// ActiveKeys runs a health check on all streams and returns the URIs
// that are enabled and currently capturable, in registration order. It
// returns an empty list as soon as a stop has been requested so no new
// work is scheduled during shutdown.
func (m *Manager) ActiveKeys() []string {
	if m.stopFlag.Load() {
		return []string{}
	}

	keys := []string{}
	for _, uri := range m.registry.Keys() {
		if s := m.registry.Get(uri); s != nil && s.Enabled() && s.HealthCheck() > 0 {
			keys = append(keys, uri)
		}
	}
	return keys
}

// LastSnapshot returns the time of the last snapshot round.
func (m *Manager) LastSnapshot() time.Time {
	ns := m.lastSnap.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// allowAllPolicy is the default gate: plain interval, no per-camera
// suppression.
type allowAllPolicy struct {
	interval time.Duration
}

func (p allowAllPolicy) ShouldTake(mode string, last time.Time) bool {
	if mode != config.SnapshotRTSP && mode != config.SnapshotAPI {
		return false
	}
	return time.Since(last) >= p.interval
}

func (p allowAllPolicy) ShouldSkip(string) bool { return false }
