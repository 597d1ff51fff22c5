package wyze

import (
	"testing"
	"time"

	"github.com/terminusxx/docker-wyze-bridge/internal/camera"
	"github.com/terminusxx/docker-wyze-bridge/internal/stream"
)

func testVariant(model string) camera.Variant {
	dev := &camera.Device{MAC: "AABBCCDDEEFF", Nickname: "Garage", NameURI: "garage", ProductModel: model}
	return camera.Variant{URI: "garage", DisplayName: "Garage", Channel: 0, Device: dev}
}

func TestStartStop(t *testing.T) {
	s := NewStream(testVariant("WYZE_CAKP2JFUS"), true)

	if s.Status() != stream.StateDisconnected {
		t.Fatalf("Expected disconnected, got %s", s.Status())
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.Status() != stream.StateConnecting {
		t.Errorf("Expected connecting, got %s", s.Status())
	}

	// Starting again is a no-op.
	if err := s.Start(); err != nil {
		t.Fatalf("Second start failed: %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.Status() != stream.StateStopped {
		t.Errorf("Expected stopped, got %s", s.Status())
	}
}

func TestStartDisabled(t *testing.T) {
	s := NewStream(testVariant("WYZE_CAKP2JFUS"), false)

	if err := s.Start(); err == nil {
		t.Error("Expected error starting a disabled stream")
	}
	if s.Status() != stream.StateOffline {
		t.Errorf("Disabled streams report offline, got %s", s.Status())
	}
}

func TestSetConnected(t *testing.T) {
	s := NewStream(testVariant("WYZE_CAKP2JFUS"), true)
	_ = s.Start()

	s.SetConnected(true)
	if !s.Connected() {
		t.Fatal("Expected connected after transport came up")
	}

	s.SetConnected(false)
	if s.Connected() {
		t.Fatal("Expected disconnected after transport went down")
	}

	// A down report must not resurrect a stopped stream.
	_ = s.Start()
	s.SetConnected(true)
	_ = s.Stop()
	s.SetConnected(false)
	if s.Status() != stream.StateStopped {
		t.Errorf("Expected stopped, got %s", s.Status())
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("disabled scores zero", func(t *testing.T) {
		s := NewStream(testVariant("WYZE_CAKP2JFUS"), false)
		if got := s.HealthCheck(); got != 0 {
			t.Errorf("HealthCheck = %d, want 0", got)
		}
	})

	t.Run("idle mains camera is capturable", func(t *testing.T) {
		s := NewStream(testVariant("WYZE_CAKP2JFUS"), true)
		if got := s.HealthCheck(); got != 1 {
			t.Errorf("HealthCheck = %d, want 1", got)
		}
	})

	t.Run("sleeping battery camera scores negative", func(t *testing.T) {
		s := NewStream(testVariant("WVOD1"), true)
		if got := s.HealthCheck(); got >= 0 {
			t.Errorf("HealthCheck = %d, want negative", got)
		}
	})

	t.Run("connected battery camera is capturable", func(t *testing.T) {
		s := NewStream(testVariant("WVOD1"), true)
		s.SetConnected(true)
		if got := s.HealthCheck(); got < 1 {
			t.Errorf("HealthCheck = %d, want >= 1", got)
		}
	})
}

func TestMotionCooldown(t *testing.T) {
	s := NewStream(testVariant("WYZE_CAKP2JFUS"), true)

	if s.Motion() {
		t.Fatal("No motion recorded yet")
	}

	s.SetMotion(time.Now())
	if !s.Motion() {
		t.Error("Expected motion within the cooldown window")
	}

	s.SetMotion(time.Now().Add(-time.Minute))
	if s.Motion() {
		t.Error("Expected motion to expire after the cooldown window")
	}
}

func TestSendCmdPower(t *testing.T) {
	s := NewStream(testVariant("WYZE_CAKP2JFUS"), true)

	resp, ok := s.SendCmd("power", "off")
	if !ok || resp["status"] != "success" {
		t.Fatalf("Unexpected response %v %v", resp, ok)
	}
	if s.Enabled() {
		t.Error("Expected stream disabled after power off")
	}

	resp, ok = s.SendCmd("power", "on")
	if !ok || resp["status"] != "success" {
		t.Fatalf("Unexpected response %v %v", resp, ok)
	}
	if !s.Enabled() {
		t.Error("Expected stream enabled after power on")
	}
	if s.Status() != stream.StateDisconnected {
		t.Errorf("Power on heals a stopped stream to disconnected, got %s", s.Status())
	}

	resp, ok = s.SendCmd("power", "sideways")
	if !ok || resp["status"] != "error" {
		t.Errorf("Expected error for invalid payload, got %v", resp)
	}
}

func TestSendCmdState(t *testing.T) {
	s := NewStream(testVariant("WYZE_CAKP2JFUS"), true)

	resp, ok := s.SendCmd("state", nil)
	if !ok || resp["status"] != "success" || resp["value"] != stream.StateDisconnected {
		t.Errorf("Unexpected state response %v", resp)
	}
}

func TestSendCmdRestart(t *testing.T) {
	s := NewStream(testVariant("WYZE_CAKP2JFUS"), true)
	_ = s.Start()
	s.SetConnected(true)

	resp, ok := s.SendCmd("restart", nil)
	if !ok || resp["status"] != "success" {
		t.Fatalf("Unexpected restart response %v", resp)
	}
	if s.Status() != stream.StateConnecting {
		t.Errorf("Expected connecting after restart, got %s", s.Status())
	}
}

func TestSendCmdUpdateSnapshot(t *testing.T) {
	s := NewStream(testVariant("WYZE_CAKP2JFUS"), true)

	resp, ok := s.SendCmd(stream.CmdUpdateSnapshot, nil)
	if !ok || resp["status"] != "success" {
		t.Errorf("Unexpected response %v %v", resp, ok)
	}

	disabled := NewStream(testVariant("WYZE_CAKP2JFUS"), false)
	if _, ok := disabled.SendCmd(stream.CmdUpdateSnapshot, nil); ok {
		t.Error("Disabled streams must not answer snapshot commands")
	}
}

func TestSendCmdUnsupported(t *testing.T) {
	s := NewStream(testVariant("WYZE_CAKP2JFUS"), true)

	if _, ok := s.SendCmd("pan_left", nil); ok {
		t.Error("Disconnected streams must not answer camera commands")
	}

	_ = s.Start()
	s.SetConnected(true)
	resp, ok := s.SendCmd("pan_left", nil)
	if !ok || resp["status"] != "error" {
		t.Errorf("Expected error envelope for unsupported command, got %v", resp)
	}
}

func TestGetInfo(t *testing.T) {
	s := NewStream(testVariant("WVOD1"), true)
	s.SetConnected(true)

	info := s.GetInfo()
	if info["uri"] != "garage" || info["battery"] != true {
		t.Errorf("Unexpected info %v", info)
	}
	if info["status"] != stream.StateConnected {
		t.Errorf("Expected connected status, got %v", info["status"])
	}
	if _, ok := info["connected_since"]; !ok {
		t.Error("Expected connected_since for a connected stream")
	}
}
