// Package config provides configuration management for the bridge.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Snapshot modes. Anything else disables periodic snapshots.
const (
	SnapshotRTSP = "rtsp"
	SnapshotAPI  = "api"
)

// Config is the main bridge configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	API       APIConfig       `yaml:"api"`
	Bus       BusConfig       `yaml:"bus"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Motion    MotionConfig    `yaml:"motion"`
	MediaMTX  MediaMTXConfig  `yaml:"mediamtx"`
	Wyze      WyzeConfig      `yaml:"wyze"`
	Location  LocationConfig  `yaml:"location"`
	Cameras   []CameraConfig  `yaml:"cameras"`

	mu       sync.RWMutex    `yaml:"-"`
	path     string          `yaml:"-"`
	watchers []func(*Config) `yaml:"-"`
}

// BridgeConfig holds bridge-wide settings.
type BridgeConfig struct {
	Name      string `yaml:"name"`
	DataPath  string `yaml:"data_path"`
	ImgPath   string `yaml:"img_path"`
	LogLevel  string `yaml:"log_level"`
	Discovery bool   `yaml:"discovery"`
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// BusConfig holds embedded bus settings.
type BusConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Topic string `yaml:"topic"` // root subject, default "wyzebridge"
}

// SnapshotConfig holds periodic snapshot settings.
type SnapshotConfig struct {
	Type     string `yaml:"type"`     // rtsp, api or empty
	Interval int    `yaml:"interval"` // seconds between rounds, default 180
	Timeout  int    `yaml:"timeout"`  // seconds per on-demand capture, default 15
	KeepDays int    `yaml:"keep_days"`
}

// IntervalDuration returns the round interval as a duration.
func (s SnapshotConfig) IntervalDuration() time.Duration {
	return time.Duration(s.Interval) * time.Second
}

// TimeoutDuration returns the on-demand capture timeout as a duration.
func (s SnapshotConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// MotionConfig holds cloud motion polling settings.
type MotionConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // seconds between cloud polls, default 10
	Cooldown int  `yaml:"cooldown"` // seconds motion stays asserted, default 30
}

// MediaMTXConfig holds media-relay settings.
type MediaMTXConfig struct {
	RTSPAddress string `yaml:"rtsp_address"`
	APIURL      string `yaml:"api_url"`
	EventSocket string `yaml:"event_socket"`
}

// WyzeConfig holds cloud API credentials.
type WyzeConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	APIKey   string `yaml:"api_key"`
	KeyID    string `yaml:"key_id"`
}

// LocationConfig feeds the sunrise/sunset snapshot suppression.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// CameraConfig holds per-camera overrides keyed by stream URI.
type CameraConfig struct {
	URI          string `yaml:"uri"`
	Enabled      *bool  `yaml:"enabled,omitempty"`
	Substream    bool   `yaml:"substream,omitempty"`
	DaylightOnly bool   `yaml:"daylight_only,omitempty"` // skip snapshots after sunset
}

// Load loads configuration from a YAML file, applies defaults and
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		slog.Warn("Config file not found, using defaults", "path", path)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.path = path
	cfg.setDefaults()
	cfg.applyEnv()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Bridge.Name == "" {
		c.Bridge.Name = "wyze-bridge"
	}
	if c.Bridge.DataPath == "" {
		c.Bridge.DataPath = "/data"
	}
	if c.Bridge.ImgPath == "" {
		c.Bridge.ImgPath = "/img"
	}
	if c.Bridge.LogLevel == "" {
		c.Bridge.LogLevel = "info"
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 5000
	}
	if c.Bus.Host == "" {
		c.Bus.Host = "127.0.0.1"
	}
	if c.Bus.Port == 0 {
		c.Bus.Port = 12101
	}
	if c.Bus.Topic == "" {
		c.Bus.Topic = "wyzebridge"
	}
	if c.Snapshot.Interval == 0 {
		c.Snapshot.Interval = 180
	}
	if c.Snapshot.Timeout == 0 {
		c.Snapshot.Timeout = 15
	}
	if c.Snapshot.KeepDays == 0 {
		c.Snapshot.KeepDays = 7
	}
	if c.Motion.Interval == 0 {
		c.Motion.Interval = 10
	}
	if c.Motion.Cooldown == 0 {
		c.Motion.Cooldown = 30
	}
	if c.MediaMTX.RTSPAddress == "" {
		c.MediaMTX.RTSPAddress = "127.0.0.1:8554"
	}
	if c.MediaMTX.APIURL == "" {
		c.MediaMTX.APIURL = "http://127.0.0.1:9997"
	}
	if c.MediaMTX.EventSocket == "" {
		c.MediaMTX.EventSocket = "/tmp/mtx_event.sock"
	}
}

// applyEnv overrides file settings from the environment so the bridge
// keeps working in container deployments that configure via env only.
func (c *Config) applyEnv() {
	if v := os.Getenv("WB_SNAPSHOT"); v != "" {
		c.Snapshot.Type = strings.ToLower(v)
	}
	if v := os.Getenv("WB_SNAPSHOT_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Snapshot.Interval = secs
		}
	}
	if v := os.Getenv("WB_MOTION"); v != "" {
		c.Motion.Enabled = parseBool(v)
	}
	if v := os.Getenv("WB_DISCOVERY"); v != "" {
		c.Bridge.Discovery = parseBool(v)
	}
	if v := os.Getenv("WB_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.API.Port = port
		}
	}
	if v := os.Getenv("WYZE_EMAIL"); v != "" {
		c.Wyze.Email = v
	}
	if v := os.Getenv("WYZE_PASSWORD"); v != "" {
		c.Wyze.Password = v
	}
	if v := os.Getenv("WYZE_API_KEY"); v != "" {
		c.Wyze.APIKey = v
	}
	if v := os.Getenv("WYZE_KEY_ID"); v != "" {
		c.Wyze.KeyID = v
	}
	if v := os.Getenv("WB_IMG_DIR"); v != "" {
		c.Bridge.ImgPath = v
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Watch starts watching the config file for changes.
func (c *Config) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					time.Sleep(100 * time.Millisecond) // Debounce
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watch error", "error", err)
			}
		}
	}()

	return watcher.Add(c.path)
}

// OnChange registers a callback for config changes.
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// reload reloads the configuration from disk.
func (c *Config) reload() {
	newCfg, err := Load(c.path)
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		return
	}

	c.mu.Lock()
	// Copy fields individually to avoid copying the mutex
	c.Version = newCfg.Version
	c.Bridge = newCfg.Bridge
	c.API = newCfg.API
	c.Bus = newCfg.Bus
	c.Snapshot = newCfg.Snapshot
	c.Motion = newCfg.Motion
	c.MediaMTX = newCfg.MediaMTX
	c.Wyze = newCfg.Wyze
	c.Location = newCfg.Location
	c.Cameras = newCfg.Cameras
	watchers := c.watchers
	c.mu.Unlock()

	slog.Info("Configuration reloaded")

	for _, fn := range watchers {
		fn(c)
	}
}

// GetCamera returns per-camera overrides for a stream URI, or nil.
func (c *Config) GetCamera(uri string) *CameraConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.Cameras {
		if c.Cameras[i].URI == uri {
			return &c.Cameras[i]
		}
	}
	return nil
}

// SetPath sets the backing file path (used by tests).
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}
