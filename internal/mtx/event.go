// Package mtx receives lifecycle events from the media relay. The relay
// is configured to write a line to the bridge's event socket whenever a
// path gains or loses readers, which lets the supervisor open streams on
// demand and close idle ones.
package mtx

import (
	"bufio"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Event is one line from the relay: "<uri>,<action>". Known actions are
// "start" (a reader connected), "stop" (the last reader left) and
// "read" (keepalive while reading).
type Event struct {
	URI    string
	Action string
}

// Source listens on a unix socket for relay events and hands them to
// the supervisor one at a time through Read.
type Source struct {
	ln      net.Listener
	events  chan Event
	handler func(Event)
	closed  atomic.Bool
	logger  *slog.Logger
}

// NewSource starts listening on the given socket path. Each event read
// by Read is passed to handler.
func NewSource(socketPath string, handler func(Event)) (*Source, error) {
	// A stale socket from a previous run blocks the listener.
	_ = os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	s := &Source{
		ln:      ln,
		events:  make(chan Event, 64),
		handler: handler,
		logger:  slog.Default().With("component", "mtx-event"),
	}
	go s.accept()
	return s, nil
}

func (s *Source) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !s.closed.Load() {
				s.logger.Warn("Event socket accept failed", "error", err)
			}
			return
		}
		go s.serve(conn)
	}
}

func (s *Source) serve(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		uri, action, found := strings.Cut(line, ",")
		if !found {
			s.logger.Warn("Malformed relay event", "line", line)
			continue
		}
		ev := Event{URI: strings.TrimSpace(uri), Action: strings.TrimSpace(strings.ToLower(action))}

		select {
		case s.events <- ev:
		default:
			s.logger.Warn("Event queue full, dropping", "uri", ev.URI, "action", ev.Action)
		}
	}
}

// Read services at most one pending event, waiting up to timeout when
// none is queued. It never blocks longer than the timeout.
func (s *Source) Read(timeout time.Duration) {
	select {
	case ev := <-s.events:
		if s.handler != nil {
			s.handler(ev)
		}
	case <-time.After(timeout):
	}
}

// Close shuts the listener down. Safe to call more than once.
func (s *Source) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.ln.Close()
}
