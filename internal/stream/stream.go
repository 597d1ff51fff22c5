// Package stream supervises the bridge's logical camera streams: it owns
// the stream registry, the snapshot subprocess tracker, the monitoring
// loop and the command dispatcher.
package stream

import "time"

// Connection states reported by a stream's Status().
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateStopped      = "stopped"
	StateOffline      = "offline"
)

// CmdUpdateSnapshot asks a stream for a fresh on-demand snapshot.
const CmdUpdateSnapshot = "update_snapshot"

// Stream is one addressable logical video source. Implementations keep
// their own connection state machine internally synchronized; the
// supervisor only triggers start/stop and reads state.
type Stream interface {
	Start() error
	Stop() error
	Enabled() bool
	Connected() bool
	Motion() bool
	// HealthCheck returns a positive score when the stream is capturable
	// and zero or negative when it is unreachable or intentionally idle.
	HealthCheck() int
	Status() string
	// SendCmd forwards a command to the camera. The second return value
	// is false when the camera produced no response at all.
	SendCmd(cmd string, payload any) (map[string]any, bool)
	GetInfo() map[string]any
}

// CmdResponse is the envelope returned by the command dispatcher.
type CmdResponse struct {
	Status   string `json:"status"`
	Command  string `json:"command"`
	Payload  any    `json:"payload,omitempty"`
	Value    any    `json:"value,omitempty"`
	Response any    `json:"response,omitempty"`
}

// CmdSender dispatches a command to a named stream.
type CmdSender func(uri, cmd string, payload any) CmdResponse

// Notifier is the telemetry/control channel boundary.
type Notifier interface {
	Publish(topic string, value any)
	UpdatePreview(uri string)
	BridgeStatus(status string)
	// CamControl attaches the inbound command subscription and returns a
	// function that detaches it. A nil stop function means the channel is
	// not available; the supervisor runs without it.
	CamControl(send CmdSender) (stop func(), err error)
}

// ThumbnailSaver is the cloud-camera API boundary used in "api"
// snapshot mode.
type ThumbnailSaver interface {
	SaveThumbnail(uri, hint string) error
}

// EventSource delivers media-relay events. Read services at most one
// pending event and returns after the bounded wait even when idle.
type EventSource interface {
	Read(timeout time.Duration)
	Close() error
}

// MotionChecker polls for motion on the supervised cameras.
type MotionChecker interface {
	CheckMotion()
}

// SnapshotPolicy gates the periodic snapshot rounds.
type SnapshotPolicy interface {
	// ShouldTake reports whether a new round is due for the configured
	// snapshot mode given the time of the previous round.
	ShouldTake(mode string, last time.Time) bool
	// ShouldSkip reports whether a single camera should sit this round
	// out (for example daylight-only cameras after sunset).
	ShouldSkip(uri string) bool
}

// SnapshotRecorder persists snapshot round outcomes.
type SnapshotRecorder interface {
	RecordSnapshot(uri string, ok bool)
}
