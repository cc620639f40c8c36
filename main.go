// Package main provides a driver drowsiness guard that samples a cabin camera,
// asks a detection service for signs of fatigue and escalates alarms.
//
// Usage:
//
//	drowsiguard [-config path/to/config.json] [-env path/to/.env] [-log-level info]
//
// If -config is not specified, drowsiguard looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/camera"
	"github.com/oszuidwest/drowsiguard/internal/clips"
	"github.com/oszuidwest/drowsiguard/internal/config"
	"github.com/oszuidwest/drowsiguard/internal/eventlog"
	"github.com/oszuidwest/drowsiguard/internal/monitor"
	"github.com/oszuidwest/drowsiguard/internal/notify"
	"github.com/oszuidwest/drowsiguard/internal/server"
	"github.com/oszuidwest/drowsiguard/internal/sound"
	"github.com/oszuidwest/drowsiguard/internal/trips"
	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	envPath := flag.String("env", ".env", "Path to an optional env file")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn or error")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	setupLogging(*logLevel)

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	if err := config.LoadEnvFile(*envPath); err != nil {
		slog.Error("failed to load env file", "path", *envPath, "error", err)
		os.Exit(1)
	}

	cfg := config.New(*configPath)
	slog.Info("using config file", "path", cfg.FilePath())
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	// FFmpeg is only needed for device capture; pushed frames work without it.
	ffmpegPath := util.ResolveBinary(cfg.GetFFmpegPath(), "ffmpeg")
	if ffmpegPath == "" {
		slog.Warn("FFmpeg not found - device capture unavailable",
			"configured_path", cfg.GetFFmpegPath())
	} else {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	cam := camera.New(server.CameraConfig(&snap), ffmpegPath)
	hub := server.NewHub()
	events := eventlog.NewLogger(eventlog.DefaultCapacity)
	tripStore := trips.NewStore(trips.DefaultCapacity)

	clipManager := clips.NewManager(cfg, events)
	clipManager.Start()

	mqtt := notify.NewMQTTPublisher()
	notifier := notify.NewEscalationNotifier(cfg, mqtt)

	mon := monitor.New(monitor.Deps{
		Config:    cfg,
		Camera:    cam,
		Player:    buildPlayer(&snap, hub),
		Notifier:  notifier,
		Clips:     clipManager,
		Trips:     tripStore,
		Events:    events,
		Telemetry: mqtt,
		OnTick: func(types.MonitorStatus) {
			hub.RequestStatus()
		},
		OnEscalate: hub.BroadcastEscalation,
	})

	commands := server.NewCommandHandler(server.Deps{
		Config:   cfg,
		Monitor:  mon,
		Camera:   cam,
		Trips:    tripStore,
		Events:   events,
		MQTT:     mqtt,
		Notifier: notifier,
	})

	srv := NewServer(cfg, mon, cam, hub, commands, ffmpegPath)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, util.WrapError("shut down HTTP server", err))
	}
	if mon.Running() {
		if err := mon.Stop(); err != nil {
			errs = append(errs, util.WrapError("stop monitoring", err))
		}
	}
	if err := cam.Stop(); err != nil {
		errs = append(errs, util.WrapError("stop camera", err))
	}
	clipManager.Stop()
	mqtt.Close()

	if err := errors.Join(errs...); err != nil {
		slog.Error("shutdown completed with errors", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// setupLogging installs the default text logger at the given level.
func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// buildPlayer returns the alarm output: cues for connected clients, plus
// local playback when enabled and a player binary is available.
func buildPlayer(snap *config.Snapshot, hub *server.Hub) sound.Player {
	players := sound.Multi{sound.NewCuePlayer(hub)}
	if !snap.LocalPlayback {
		return players
	}
	local := sound.NewProcessPlayer(sound.ProcessConfig{
		Binary:      snap.PlayerCommand,
		AlarmPath:   snap.AlarmSound,
		WarningPath: snap.WarningSound,
		Volume:      snap.Volume,
	})
	if local != nil {
		players = append(players, local)
	}
	return players
}
