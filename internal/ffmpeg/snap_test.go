package ffmpeg

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestRTSPSnapCmd(t *testing.T) {
	s := SnapCommander{RTSPAddress: "127.0.0.1:8554", ImgPath: "/img"}

	t.Run("interval capture is niced", func(t *testing.T) {
		args := s.RTSPSnapCmd("garage", true)
		if args[0] != "nice" || args[1] != "-n" || args[2] != "10" {
			t.Errorf("Expected nice prefix, got %v", args[:3])
		}
		if !slices.Contains(args, "rtsp://127.0.0.1:8554/garage") {
			t.Errorf("Missing stream source in %v", args)
		}
		if !slices.Contains(args, filepath.Join("/img", "garage.jpg")) {
			t.Errorf("Missing output path in %v", args)
		}
	})

	t.Run("on-demand capture runs at normal priority", func(t *testing.T) {
		args := s.RTSPSnapCmd("garage", false)
		if args[0] != "ffmpeg" {
			t.Errorf("Expected ffmpeg first, got %s", args[0])
		}
		if slices.Contains(args, "nice") {
			t.Error("On-demand capture must not be niced")
		}
	})
}

func TestPurgeOlder(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "old.jpg")
	fresh := filepath.Join(dir, "fresh.jpg")
	other := filepath.Join(dir, "notes.txt")
	for _, f := range []string{old, fresh, other} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, stale, stale); err != nil {
		t.Fatal(err)
	}

	if got := PurgeOlder(dir, 24*time.Hour); got != 1 {
		t.Fatalf("Expected 1 purged file, got %d", got)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("Stale snapshot should have been removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Fresh snapshot should survive")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("Non-jpg files are never purged")
	}
}

func TestPurgeOlderMissingDir(t *testing.T) {
	if got := PurgeOlder(filepath.Join(t.TempDir(), "nope"), time.Hour); got != 0 {
		t.Errorf("Expected 0 for missing dir, got %d", got)
	}
}
