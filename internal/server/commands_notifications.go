package server

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/oszuidwest/drowsiguard/internal/notify"
	"github.com/oszuidwest/drowsiguard/internal/types"
)

// ErrUnknownChannel is returned for a test of a channel that does not exist.
var ErrUnknownChannel = errors.New("unknown notification channel")

// RunNotificationTest sends a test message over one channel using the saved settings.
func (h *CommandHandler) RunNotificationTest(channel string) error {
	cfg := h.deps.Config.Snapshot()

	switch channel {
	case "webhook":
		if !cfg.HasWebhook() {
			return errors.New("no webhook URL configured")
		}
		return notify.SendTestWebhook(cfg.WebhookURL)
	case "log":
		if !cfg.HasLogPath() {
			return errors.New("no log path configured")
		}
		return notify.WriteTestLog(cfg.LogPath)
	case "email":
		if !cfg.HasGraph() {
			return errors.New("email not fully configured")
		}
		return notify.SendTestEmail(notify.BuildGraphConfig(cfg))
	case "zabbix":
		if !cfg.HasZabbix() {
			return errors.New("zabbix not fully configured")
		}
		return notify.SendTestZabbix(cfg.Zabbix)
	case "mqtt":
		if !cfg.HasMQTT() {
			return errors.New("no MQTT broker configured")
		}
		if h.deps.MQTT == nil {
			return errors.New("MQTT publisher not available")
		}
		return h.deps.MQTT.SendTestMQTT(cfg.MQTT)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
}

// handleTest executes a notification test and sends the result to the client.
func (h *CommandHandler) handleTest(send chan<- any, channel string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in test handler", "channel", channel, "panic", r)
			}
		}()

		result := types.WSTestResult{
			Type:     "test_result",
			TestType: channel,
			Success:  true,
		}

		if err := h.RunNotificationTest(channel); err != nil {
			slog.Error("notification test failed", "channel", channel, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("notification test succeeded", "channel", channel)
		}

		trySend(send, "test_"+channel, result)
	}()
}

// LogView is the escalation log as returned to clients.
type LogView struct {
	Path    string            `json:"path"`
	Entries []notify.LogEntry `json:"entries"`
}

// ViewLog returns the most recent escalation log entries.
func (h *CommandHandler) ViewLog() (LogView, error) {
	cfg := h.deps.Config.Snapshot()
	if !cfg.HasLogPath() {
		return LogView{}, errors.New("log file path not configured")
	}
	entries, err := notify.ReadLog(cfg.LogPath, MaxLogEntries)
	if err != nil {
		return LogView{}, err
	}
	return LogView{Path: cfg.LogPath, Entries: entries}, nil
}

// handleViewLog reads the escalation log and sends it to the client.
func (h *CommandHandler) handleViewLog(send chan<- any) {
	HandleActionAsync(WSCommand{Type: "notifications/log/view"}, send, func() (any, error) {
		return h.ViewLog()
	})
}
