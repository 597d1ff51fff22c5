package wyze

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/terminusxx/docker-wyze-bridge/internal/camera"
	"github.com/terminusxx/docker-wyze-bridge/internal/stream"
)

// Battery-powered models sleep between events and must not be woken by
// routine snapshot rounds.
var batteryModels = map[string]bool{
	"WVOD1":   true,
	"HL_WCO2": true,
	"AN_RSCW": true,
	"GW_BE1":  true,
}

// Commands a stream answers locally, without a live tunnel to the
// camera.
const (
	cmdPower   = "power"
	cmdState   = "state"
	cmdRestart = "restart"
)

// Stream is the concrete per-camera stream the supervisor drives. Its
// connection state machine is internally synchronized; the supervisor
// only calls Start/Stop and reads state.
type Stream struct {
	uri         string
	displayName string
	channel     int
	device      *camera.Device
	battery     bool

	mu          sync.Mutex
	enabled     bool
	state       string
	connectedAt time.Time
	motion      bool
	motionAt    time.Time
	cooldown    time.Duration

	logger *slog.Logger
}

// NewStream creates a stream for one device variant.
func NewStream(v camera.Variant, enabled bool) *Stream {
	return &Stream{
		uri:         v.URI,
		displayName: v.DisplayName,
		channel:     v.Channel,
		device:      v.Device,
		battery:     batteryModels[v.Device.ProductModel],
		enabled:     enabled,
		state:       stream.StateDisconnected,
		cooldown:    30 * time.Second,
		logger:      slog.Default().With("component", "stream", "uri", v.URI),
	}
}

// URI returns the stream's registry key.
func (s *Stream) URI() string { return s.uri }

// Device returns the backing device descriptor.
func (s *Stream) Device() *camera.Device { return s.device }

// Start transitions the stream toward connected. Starting an already
// connected or connecting stream is a no-op.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return fmt.Errorf("stream %s is disabled", s.uri)
	}
	switch s.state {
	case stream.StateConnected, stream.StateConnecting:
		return nil
	}
	s.state = stream.StateConnecting
	s.logger.Info("Connecting")
	return nil
}

// Stop disconnects the stream.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stream.StateDisconnected || s.state == stream.StateStopped {
		return nil
	}
	s.state = stream.StateStopped
	s.connectedAt = time.Time{}
	s.logger.Info("Stopped")
	return nil
}

// SetConnected is called by the relay event handler when the transport
// reports the feed up or down.
func (s *Stream) SetConnected(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if up {
		s.state = stream.StateConnected
		s.connectedAt = time.Now()
		return
	}
	if s.state == stream.StateConnected {
		s.state = stream.StateDisconnected
		s.connectedAt = time.Time{}
	}
}

// Enabled reports whether the stream may be started.
func (s *Stream) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Connected reports whether the feed is currently up.
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stream.StateConnected
}

// Status returns the connection state.
func (s *Stream) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return stream.StateOffline
	}
	return s.state
}

// Motion reports whether motion was seen within the cooldown window.
func (s *Stream) Motion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motion && time.Since(s.motionAt) < s.cooldown
}

// SetMotion records a motion observation from the cloud event poller.
func (s *Stream) SetMotion(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motion = true
	s.motionAt = at
}

// HealthCheck returns a positive score when the stream is capturable.
// Disabled streams score zero. Sleeping battery cameras score negative
// so routine snapshot rounds leave them alone; they still answer
// on-demand commands.
func (s *Stream) HealthCheck() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return 0
	}
	if s.battery && s.state != stream.StateConnected {
		return -1
	}
	if s.state == stream.StateConnected {
		return 1 + int(time.Since(s.connectedAt).Seconds())
	}
	return 1
}

// SendCmd forwards a command to the camera. Commands that only touch
// bridge-side state are answered locally; everything else requires a
// live connection and returns no response when the feed is down.
func (s *Stream) SendCmd(cmd string, payload any) (map[string]any, bool) {
	switch cmd {
	case cmdState:
		return map[string]any{"status": "success", "value": s.Status()}, true

	case cmdPower:
		s.mu.Lock()
		switch payload {
		case "off":
			s.enabled = false
			s.state = stream.StateStopped
		case "on":
			s.enabled = true
			if s.state == stream.StateStopped {
				s.state = stream.StateDisconnected
			}
		default:
			s.mu.Unlock()
			return map[string]any{"status": "error", "response": "invalid power payload"}, true
		}
		s.mu.Unlock()
		return map[string]any{"status": "success", "value": payload}, true

	case cmdRestart:
		_ = s.Stop()
		if err := s.Start(); err != nil {
			return map[string]any{"status": "error", "response": err.Error()}, true
		}
		return map[string]any{"status": "success", "value": "restarting"}, true

	case stream.CmdUpdateSnapshot:
		if !s.Enabled() {
			return nil, false
		}
		return map[string]any{"status": "success", "value": true}, true
	}

	if !s.Connected() {
		return nil, false
	}
	return map[string]any{"status": "error", "response": fmt.Sprintf("unsupported command: %s", cmd)}, true
}

// GetInfo returns the status snapshot used for bulk reporting. It only
// formats state already held in memory.
func (s *Stream) GetInfo() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := map[string]any{
		"uri":           s.uri,
		"display_name":  s.displayName,
		"channel":       s.channel,
		"enabled":       s.enabled,
		"status":        s.state,
		"motion":        s.motion && time.Since(s.motionAt) < s.cooldown,
		"battery":       s.battery,
		"mac":           s.device.MAC,
		"nickname":      s.device.Nickname,
		"product_model": s.device.ProductModel,
		"firmware_ver":  s.device.FirmwareVer,
	}
	if !s.connectedAt.IsZero() {
		info["connected_since"] = s.connectedAt.Unix()
	}
	return info
}
