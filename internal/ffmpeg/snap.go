// Package ffmpeg builds the command lines for snapshot capture
// subprocesses and manages the on-disk snapshot directory.
package ffmpeg

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SnapCommander builds ffmpeg argv slices for still-image capture from
// the local media relay.
type SnapCommander struct {
	RTSPAddress string // host:port of the relay
	ImgPath     string // where snapshots land
}

// RTSPSnapCmd returns the argv for a one-shot snapshot of a stream.
// Interval captures run niced down so periodic rounds never starve a
// live transcode; on-demand captures run at normal priority.
func (s SnapCommander) RTSPSnapCmd(uri string, interval bool) []string {
	src := fmt.Sprintf("rtsp://%s/%s", s.RTSPAddress, uri)
	out := filepath.Join(s.ImgPath, uri+".jpg")

	args := []string{}
	if interval {
		args = append(args, "nice", "-n", "10")
	}
	args = append(args,
		"ffmpeg",
		"-loglevel", "fatal",
		"-analyzeduration", "50",
		"-probesize", "50",
		"-rtsp_transport", "tcp",
		"-thread_queue_size", "100",
		"-i", src,
		"-map", "0:v:0",
		"-vframes", "1",
		"-y", out,
	)
	return args
}

// PurgeOlder removes snapshot images older than the given age and
// returns how many were deleted. Missing directories are not an error.
func PurgeOlder(dir string, age time.Duration) int {
	logger := slog.Default().With("component", "ffmpeg")
	cutoff := time.Now().Add(-age)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read snapshot directory", "dir", dir, "error", err)
		}
		return 0
	}

	purged := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jpg") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			logger.Warn("Failed to purge snapshot", "file", entry.Name(), "error", err)
			continue
		}
		purged++
	}

	if purged > 0 {
		logger.Info("Purged old snapshots", "dir", dir, "count", purged)
	}
	return purged
}
