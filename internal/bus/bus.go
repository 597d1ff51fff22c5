// Package bus provides the bridge's telemetry and control channel on an
// embedded NATS server. Camera status, previews and command results are
// published as JSON messages, and inbound camera commands arrive on
// per-camera control subjects.
package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/terminusxx/docker-wyze-bridge/internal/config"
	"github.com/terminusxx/docker-wyze-bridge/internal/stream"
)

const controlTimeout = 30 * time.Second

// Bus wraps the embedded NATS server and the bridge's connection to it.
type Bus struct {
	server  *server.Server
	conn    *nats.Conn
	root    string
	imgPath string
	logger  *slog.Logger

	subsMu sync.Mutex
	subs   []*nats.Subscription
}

// Message is the envelope for every published telemetry value.
type Message struct {
	Topic     string    `json:"topic"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// New starts the embedded server and connects to it.
func New(cfg *config.Config) (*Bus, error) {
	logger := slog.Default().With("component", "bus")

	opts := &server.Options{
		Host:   cfg.Bus.Host,
		Port:   cfg.Bus.Port,
		NoSigs: true,
		NoLog:  true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create bus server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(2 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("bus server not ready after 2 seconds (port %d)", cfg.Bus.Port)
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded bus: %w", err)
	}

	logger.Info("Telemetry bus started", "url", ns.ClientURL())

	return &Bus{
		server:  ns,
		conn:    nc,
		root:    cfg.Bus.Topic,
		imgPath: cfg.Bridge.ImgPath,
		logger:  logger,
	}, nil
}

// ClientURL returns the bus client URL for external subscribers.
func (b *Bus) ClientURL() string { return b.server.ClientURL() }

// subject converts a slash-separated topic into a NATS subject rooted
// at the bridge's base topic.
func (b *Bus) subject(topic string) string {
	return b.root + "." + strings.ReplaceAll(topic, "/", ".")
}

// Publish publishes a value on a slash-separated topic.
func (b *Bus) Publish(topic string, value any) {
	payload, err := json.Marshal(Message{Topic: topic, Value: value, Timestamp: time.Now()})
	if err != nil {
		b.logger.Error("Failed to marshal message", "topic", topic, "error", err)
		return
	}
	if err := b.conn.Publish(b.subject(topic), payload); err != nil {
		b.logger.Warn("Failed to publish", "topic", topic, "error", err)
	}
}

// UpdatePreview publishes the last known good snapshot for a stream:
// the on-disk image path and its modification time, or a zero value
// when no snapshot exists yet.
func (b *Bus) UpdatePreview(uri string) {
	img := filepath.Join(b.imgPath, uri+".jpg")
	fi, err := os.Stat(img)
	if err != nil {
		b.Publish(uri+"/image", 0)
		return
	}
	b.Publish(uri+"/image", map[string]any{
		"path":    img,
		"updated": fi.ModTime().Unix(),
	})
}

// BridgeStatus publishes the bridge's own state.
func (b *Bus) BridgeStatus(status string) {
	b.Publish("state", status)
}

// controlRequest is an inbound camera command.
type controlRequest struct {
	Payload any `json:"payload"`
}

// CamControl subscribes to the per-camera command subjects
// (<root>.cmd.<uri>.<command>) and dispatches each request through the
// supervisor, replying with the dispatcher's envelope when the sender
// asked for one. The returned function detaches the subscription.
func (b *Bus) CamControl(send stream.CmdSender) (func(), error) {
	sub, err := b.conn.Subscribe(b.root+".cmd.>", func(msg *nats.Msg) {
		parts := strings.Split(strings.TrimPrefix(msg.Subject, b.root+".cmd."), ".")
		if len(parts) < 2 {
			b.logger.Warn("Malformed control subject", "subject", msg.Subject)
			return
		}
		uri, cmd := parts[0], parts[1]

		var req controlRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				req.Payload = string(msg.Data)
			}
		}

		resp := send(uri, cmd, req.Payload)
		if msg.Reply == "" {
			return
		}
		body, err := json.Marshal(resp)
		if err != nil {
			b.logger.Error("Failed to marshal control reply", "uri", uri, "cmd", cmd, "error", err)
			return
		}
		if err := msg.Respond(body); err != nil {
			b.logger.Warn("Failed to send control reply", "uri", uri, "cmd", cmd, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to control subjects: %w", err)
	}

	b.subsMu.Lock()
	b.subs = append(b.subs, sub)
	b.subsMu.Unlock()

	b.logger.Info("Camera control channel attached", "subject", b.root+".cmd.>")

	return func() {
		_ = sub.Unsubscribe()
	}, nil
}

// Request sends a control request and waits for the dispatcher's reply.
// Used by external callers and tests.
func (b *Bus) Request(uri, cmd string, payload any) (stream.CmdResponse, error) {
	var resp stream.CmdResponse

	body, err := json.Marshal(controlRequest{Payload: payload})
	if err != nil {
		return resp, err
	}
	msg, err := b.conn.Request(b.root+".cmd."+uri+"."+cmd, body, controlTimeout)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return resp, fmt.Errorf("malformed control reply: %w", err)
	}
	return resp, nil
}

// Stop drains the connection and shuts the embedded server down.
func (b *Bus) Stop() {
	b.subsMu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.subsMu.Unlock()

	_ = b.conn.Drain()
	b.server.Shutdown()
	b.logger.Info("Telemetry bus stopped")
}
