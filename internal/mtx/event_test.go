package mtx

import (
	"net"
	"path/filepath"
	"testing"
	"time"
)

func startSource(t *testing.T, handler func(Event)) (*Source, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mtx.sock")
	s, err := NewSource(path, handler)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestReadDeliversEvent(t *testing.T) {
	got := make(chan Event, 1)
	s, path := startSource(t, func(ev Event) { got <- ev })

	conn := dial(t, path)
	if _, err := conn.Write([]byte("garage,READY\n")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		s.Read(100 * time.Millisecond)
		select {
		case ev := <-got:
			if ev.URI != "garage" || ev.Action != "ready" {
				t.Fatalf("Unexpected event %+v", ev)
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("Event was not delivered")
		}
	}
}

func TestReadTimesOutWithoutEvents(t *testing.T) {
	s, _ := startSource(t, func(Event) { t.Error("Unexpected event") })

	start := time.Now()
	s.Read(50 * time.Millisecond)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Read blocked for %v", elapsed)
	}
}

func TestMalformedLinesIgnored(t *testing.T) {
	got := make(chan Event, 2)
	s, path := startSource(t, func(ev Event) { got <- ev })

	conn := dial(t, path)
	if _, err := conn.Write([]byte("no-comma-here\n\ngarage,start\n")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		s.Read(100 * time.Millisecond)
		select {
		case ev := <-got:
			if ev.URI != "garage" || ev.Action != "start" {
				t.Fatalf("Unexpected event %+v", ev)
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("Valid event after malformed line was not delivered")
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	s, _ := startSource(t, nil)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
}

func TestReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mtx.sock")

	first, err := NewSource(path, nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	first.Close()

	second, err := NewSource(path, nil)
	if err != nil {
		t.Fatalf("NewSource on stale socket failed: %v", err)
	}
	second.Close()
}
