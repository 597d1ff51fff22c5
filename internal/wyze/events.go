package wyze

import (
	"context"
	"log/slog"
	"time"
)

// MotionSink receives motion observations.
type MotionSink interface {
	OnMotion(uri string, at time.Time)
}

// Events polls the cloud event list and marks motion on the supervised
// streams. CheckMotion is driven from the supervisor's main loop, so a
// simple last-poll timestamp is enough to pace the cloud requests.
type Events struct {
	client   *Client
	streams  map[string]*Stream // MAC → stream (primary variant)
	sink     MotionSink
	interval time.Duration
	lastPoll time.Time
	lastSeen time.Time
	seen     map[string]bool
	logger   *slog.Logger
}

// NewEvents creates the motion poller for the given streams.
func NewEvents(client *Client, streams []*Stream, sink MotionSink, interval time.Duration) *Events {
	byMAC := make(map[string]*Stream, len(streams))
	for _, s := range streams {
		// Dual-lens variants share a MAC; motion applies to the first
		// variant registered for the device.
		if _, ok := byMAC[s.Device().MAC]; !ok {
			byMAC[s.Device().MAC] = s
		}
	}
	return &Events{
		client:   client,
		streams:  byMAC,
		sink:     sink,
		interval: interval,
		lastSeen: time.Now(),
		seen:     make(map[string]bool),
		logger:   slog.Default().With("component", "wyze-events"),
	}
}

// CheckMotion polls the cloud for new events when the poll interval has
// elapsed. Failures are logged and retried on the next pass.
func (e *Events) CheckMotion() {
	if time.Since(e.lastPoll) < e.interval {
		return
	}
	e.lastPoll = time.Now()

	macs := make([]string, 0, len(e.streams))
	for mac := range e.streams {
		macs = append(macs, mac)
	}
	if len(macs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, err := e.client.GetEventList(ctx, macs, e.lastSeen)
	if err != nil {
		e.logger.Warn("Motion poll failed", "error", err)
		return
	}

	for _, ev := range events {
		if e.seen[ev.EventID] {
			continue
		}
		e.seen[ev.EventID] = true
		if ev.Timestamp.After(e.lastSeen) {
			e.lastSeen = ev.Timestamp
		}

		s, ok := e.streams[ev.DeviceMAC]
		if !ok {
			continue
		}
		s.SetMotion(ev.Timestamp)
		e.logger.Info("Motion detected", "uri", s.URI(), "kind", ev.Kind)
		if e.sink != nil {
			e.sink.OnMotion(s.URI(), ev.Timestamp)
		}
	}

	// The seen set only needs to cover the overlap window of recent
	// polls; reset it before it grows without bound.
	if len(e.seen) > 1000 {
		e.seen = make(map[string]bool)
	}
}
