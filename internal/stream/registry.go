package stream

import (
	"log/slog"
	"sync"

	"github.com/terminusxx/docker-wyze-bridge/internal/camera"
)

// Entry is one registered logical stream. Channel, URI and the device
// back-reference are fixed for the entry's lifetime; only the stream's
// own state changes after registration.
type Entry struct {
	URI         string
	DisplayName string
	Channel     int
	Device      *camera.Device
	Stream      Stream
}

// StreamBuilder constructs the stream collaborator for one device variant.
type StreamBuilder func(v camera.Variant) Stream

// Registry holds the set of registered streams keyed by URI. The key set
// is expected to be populated before the supervisor loops start; lookups
// and registration are nevertheless lock-guarded so late registration
// does not corrupt the map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	logger  *slog.Logger
}

// NewRegistry creates an empty stream registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		logger:  slog.Default().With("component", "registry"),
	}
}

// Register expands a device into its logical streams and inserts them.
// Dual-lens devices produce two entries; everything else produces one.
// Returns the URI of the first (primary) entry. Registering an existing
// URI overwrites the previous entry, keeping its position.
func (r *Registry) Register(dev *camera.Device, build StreamBuilder) string {
	variants := camera.Variants(dev)
	if len(variants) > 1 {
		r.logger.Info("Expanding dual-lens device",
			"device", dev.Nickname,
			"streams", []string{variants[0].URI, variants[1].URI})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	first := ""
	for _, v := range variants {
		if first == "" {
			first = v.URI
		}
		if _, exists := r.entries[v.URI]; !exists {
			r.order = append(r.order, v.URI)
		}
		r.entries[v.URI] = &Entry{
			URI:         v.URI,
			DisplayName: v.DisplayName,
			Channel:     v.Channel,
			Device:      v.Device,
			Stream:      build(v),
		}
	}
	return first
}

// Get returns the stream for a URI, or nil when unknown.
func (r *Registry) Get(uri string) Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[uri]; ok {
		return e.Stream
	}
	return nil
}

// Entry returns the full registry entry for a URI, or nil.
func (r *Registry) Entry(uri string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[uri]
}

// Total returns the number of registered streams.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Active returns the number of enabled streams.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.Stream.Enabled() {
			n++
		}
	}
	return n
}

// Keys returns all URIs in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// AllInfo returns a status snapshot per stream. It only formats state
// already held by the streams and never blocks on I/O.
func (r *Registry) AllInfo() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := make(map[string]map[string]any, len(r.entries))
	for uri, e := range r.entries {
		info[uri] = e.Stream.GetInfo()
	}
	return info
}

// StatusAll returns the lightweight status+motion view pushed to
// websocket clients.
func (r *Registry) StatusAll() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]map[string]any, len(r.entries))
	for uri, e := range r.entries {
		out[uri] = map[string]any{
			"status": e.Stream.Status(),
			"motion": e.Stream.Motion(),
		}
	}
	return out
}
