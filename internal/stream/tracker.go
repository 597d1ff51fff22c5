package stream

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// killWait bounds how long a forced stop waits for the process to exit
// after being killed. Capture processes honor signals quickly.
const killWait = 5 * time.Second

// Capture is a handle to one in-flight snapshot subprocess.
type Capture struct {
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int // valid only after done is closed
}

// Running reports whether the process has not yet exited.
func (c *Capture) Running() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the process exit code and whether it has exited.
func (c *Capture) ExitCode() (int, bool) {
	select {
	case <-c.done:
		return c.exitCode, true
	default:
		return 0, false
	}
}

// wait blocks until the process exits or the timeout elapses.
func (c *Capture) wait(timeout time.Duration) (int, bool) {
	select {
	case <-c.done:
		return c.exitCode, true
	case <-time.After(timeout):
		return 0, false
	}
}

// Tracker owns the mapping from stream URI to its in-flight snapshot
// subprocess and enforces at most one live capture per URI. All map
// access goes through a single mutex so the monitoring loop and the
// snapshot watcher never race on spawn and reap.
type Tracker struct {
	mu       sync.Mutex
	captures map[string]*Capture
	logger   *slog.Logger
}

// NewTracker creates an empty capture tracker.
func NewTracker() *Tracker {
	return &Tracker{
		captures: make(map[string]*Capture),
		logger:   slog.Default().With("component", "snapshots"),
	}
}

// EnsureCapture returns the live capture for a URI, starting a new
// subprocess with the given argv when none is running. The check and
// the spawn happen under one lock so concurrent callers get the same
// handle instead of duplicate processes.
func (t *Tracker) EnsureCapture(uri string, argv []string) (*Capture, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty capture command for %s", uri)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.captures[uri]; ok && c.Running() {
		return c, nil
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start capture for %s: %w", uri, err)
	}

	c := &Capture{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		c.exitCode = cmd.ProcessState.ExitCode()
		close(c.done)
	}()

	t.captures[uri] = c
	return c, nil
}

// Get returns the tracked capture for a URI, or nil.
func (t *Tracker) Get(uri string) *Capture {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.captures[uri]
}

// Snapshot returns a copy of the current URI→capture mapping for
// scanning without holding the lock.
func (t *Tracker) Snapshot() map[string]*Capture {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]*Capture, len(t.captures))
	for uri, c := range t.captures {
		out[uri] = c
	}
	return out
}

// Reap removes the tracked handle for a URI. Reaping an absent URI is
// not an error; it is logged and ignored.
func (t *Tracker) Reap(uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.captures[uri]; !ok {
		t.logger.Warn("Capture not found in tracker", "uri", uri)
		return
	}
	delete(t.captures, uri)
}

// StopCapture force-terminates any live capture for a URI and reaps it.
// Safe to call when no capture exists.
func (t *Tracker) StopCapture(uri string) {
	t.mu.Lock()
	c, ok := t.captures[uri]
	if ok {
		delete(t.captures, uri)
	}
	t.mu.Unlock()

	if !ok || !c.Running() {
		return
	}

	if err := c.cmd.Process.Kill(); err != nil {
		t.logger.Warn("Failed to kill capture", "uri", uri, "error", err)
	}
	if _, exited := c.wait(killWait); !exited {
		t.logger.Warn("Capture did not exit after kill", "uri", uri)
	}
}

// WaitAndStop waits up to timeout for a URI's capture to complete
// naturally. It returns true only on a clean zero exit. On timeout the
// capture is force-stopped. The URI is always absent from the tracker
// when this returns.
func (t *Tracker) WaitAndStop(uri string, timeout time.Duration) bool {
	c := t.Get(uri)
	if c == nil {
		return false
	}
	defer t.StopCapture(uri)

	code, exited := c.wait(timeout)
	if !exited {
		t.logger.Info("Snapshot timed out", "uri", uri)
		return false
	}
	return code == 0
}

// StopAll force-terminates every tracked capture.
func (t *Tracker) StopAll() {
	for uri := range t.Snapshot() {
		t.StopCapture(uri)
	}
}
