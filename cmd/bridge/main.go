// Package main is the bridge entry point: it wires the cloud client,
// the stream supervisor, the telemetry bus and the HTTP control API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terminusxx/docker-wyze-bridge/internal/api"
	"github.com/terminusxx/docker-wyze-bridge/internal/bus"
	"github.com/terminusxx/docker-wyze-bridge/internal/camera"
	"github.com/terminusxx/docker-wyze-bridge/internal/config"
	"github.com/terminusxx/docker-wyze-bridge/internal/database"
	"github.com/terminusxx/docker-wyze-bridge/internal/ffmpeg"
	"github.com/terminusxx/docker-wyze-bridge/internal/history"
	"github.com/terminusxx/docker-wyze-bridge/internal/mtx"
	"github.com/terminusxx/docker-wyze-bridge/internal/stream"
	"github.com/terminusxx/docker-wyze-bridge/internal/sun"
	"github.com/terminusxx/docker-wyze-bridge/internal/wyze"
)

func main() {
	configPath := flag.String("config", "/data/config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Bridge.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := cfg.Watch(); err != nil {
		slog.Warn("Config watching unavailable", "error", err)
	}

	if err := os.MkdirAll(cfg.Bridge.ImgPath, 0755); err != nil {
		slog.Error("Failed to create image directory", "error", err)
		os.Exit(1)
	}

	db, err := database.Open(database.DefaultConfig(cfg.Bridge.DataPath))
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := history.NewStore(db)

	telemetry, err := bus.New(cfg)
	if err != nil {
		slog.Error("Failed to start telemetry bus", "error", err)
		os.Exit(1)
	}
	defer telemetry.Stop()

	client := wyze.NewClient(cfg.Wyze.Email, cfg.Wyze.Password, cfg.Wyze.APIKey, cfg.Wyze.KeyID, cfg.Bridge.ImgPath)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	devices, err := setupCloud(ctx, client)
	cancel()
	if err != nil {
		slog.Error("Cloud setup failed", "error", err)
		os.Exit(1)
	}

	var wyzeStreams []*wyze.Stream
	builder := func(v camera.Variant) stream.Stream {
		enabled := true
		if cam := cfg.GetCamera(v.URI); cam != nil && cam.Enabled != nil {
			enabled = *cam.Enabled
		}
		ws := wyze.NewStream(v, enabled)
		wyzeStreams = append(wyzeStreams, ws)
		return ws
	}

	manager := stream.NewManager(cfg, client, telemetry, builder)
	manager.SetPolicy(sun.NewPolicy(cfg))
	manager.SetRecorder(store)

	snapCmd := ffmpeg.SnapCommander{
		RTSPAddress: cfg.MediaMTX.RTSPAddress,
		ImgPath:     cfg.Bridge.ImgPath,
	}
	manager.SetSnapCmd(snapCmd.RTSPSnapCmd)
	manager.SetCleanup(func() {
		ffmpeg.PurgeOlder(cfg.Bridge.ImgPath, time.Duration(cfg.Snapshot.KeepDays)*24*time.Hour)
	})

	for _, dev := range devices {
		uri := manager.Register(dev)
		slog.Info("Registered camera", "uri", uri, "model", dev.ProductModel)
	}

	if cfg.Motion.Enabled {
		manager.SetMotion(wyze.NewEvents(client, wyzeStreams, store, time.Duration(cfg.Motion.Interval)*time.Second))
	}

	events, err := mtx.NewSource(cfg.MediaMTX.EventSocket, relayEventHandler(manager))
	if err != nil {
		slog.Warn("Relay event socket unavailable", "error", err)
	} else {
		manager.SetEventSource(events)
	}

	hub := api.NewHub()
	statusCtx, stopStatus := context.WithCancel(context.Background())
	go broadcastStatus(statusCtx, manager, hub)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler: api.NewServer(manager, store, hub).Router(cfg.API.CORSOrigins),
	}
	go func() {
		slog.Info("API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server failed", "error", err)
		}
	}()

	runDone := make(chan struct{})
	go func() {
		manager.Run(relayHealth(cfg.MediaMTX.APIURL))
		close(runDone)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutting down", "signal", sig.String())

	manager.Stop()
	select {
	case <-runDone:
	case <-time.After(30 * time.Second):
		slog.Warn("Supervisor did not stop in time")
	}

	stopStatus()
	hub.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("API shutdown failed", "error", err)
	}

	slog.Info("Bridge stopped")
}

// setupCloud logs in and fetches the account's cameras.
func setupCloud(ctx context.Context, client *wyze.Client) ([]*camera.Device, error) {
	if err := client.Login(ctx); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	devices, err := client.GetCameraList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cameras: %w", err)
	}
	if len(devices) == 0 {
		slog.Warn("No cameras found on account")
	}
	return devices, nil
}

// relayEventHandler reacts to media-relay path events: reader demand
// starts a stream, a publisher coming up or down flips its connection
// state.
func relayEventHandler(manager *stream.Manager) func(mtx.Event) {
	return func(ev mtx.Event) {
		s := manager.Get(ev.URI)
		if s == nil {
			slog.Warn("Relay event for unknown stream", "uri", ev.URI, "action", ev.Action)
			return
		}

		switch ev.Action {
		case "start", "read":
			if err := s.Start(); err != nil {
				slog.Warn("Failed to start stream on demand", "uri", ev.URI, "error", err)
			}
		case "ready":
			if ws, ok := s.(*wyze.Stream); ok {
				ws.SetConnected(true)
			}
		case "notready", "stop":
			if ws, ok := s.(*wyze.Stream); ok {
				ws.SetConnected(false)
			}
		}
	}
}

// relayHealth pings the media relay's API. Failures are only logged;
// the relay restarting is not the supervisor's problem.
func relayHealth(apiURL string) func() {
	client := &http.Client{Timeout: 5 * time.Second}
	return func() {
		resp, err := client.Get(apiURL + "/v3/paths/list")
		if err != nil {
			slog.Warn("Relay health check failed", "error", err)
			return
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			slog.Warn("Relay health check returned", "status", resp.StatusCode)
		}
	}
}

// broadcastStatus pushes the status snapshot to websocket clients once
// a second.
func broadcastStatus(ctx context.Context, manager *stream.Manager, hub *api.Hub) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hub.Broadcast(manager.Registry().StatusAll())
		}
	}
}
