package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/oszuidwest/drowsiguard/internal/camera"
	"github.com/oszuidwest/drowsiguard/internal/config"
	"github.com/oszuidwest/drowsiguard/internal/eventlog"
	"github.com/oszuidwest/drowsiguard/internal/notify"
	"github.com/oszuidwest/drowsiguard/internal/trips"
	"github.com/oszuidwest/drowsiguard/internal/types"
)

// Limits for review queries.
const (
	DefaultEventLimit = 50  // Events returned when no limit is given
	MaxLogEntries     = 100 // Maximum escalation log entries to return
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MonitorControl starts, stops and acknowledges monitoring sessions.
type MonitorControl interface {
	Start(ctx context.Context) error
	Stop() error
	Acknowledge() error
	Status() types.MonitorStatus
}

// CameraControl restarts and reconfigures the frame source.
type CameraControl interface {
	Retry() error
	Reconfigure(cfg camera.Config) error
	Status() types.CameraStatus
}

// GraphCache drops a cached Graph client after the email settings change.
type GraphCache interface {
	InvalidateGraphClient()
}

// Deps are the collaborators of a CommandHandler. Config and Monitor are
// required; the rest may be nil.
type Deps struct {
	Config   *config.Config
	Monitor  MonitorControl
	Camera   CameraControl
	Trips    *trips.Store
	Events   *eventlog.Logger
	MQTT     *notify.MQTTPublisher
	Notifier GraphCache
}

// CommandHandler processes WebSocket commands. The REST handlers share its
// operations so both surfaces behave the same.
type CommandHandler struct {
	deps Deps
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(deps Deps) *CommandHandler {
	return &CommandHandler{deps: deps}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "monitoring/start", "settings/update")
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	// Parse command into namespace and action
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "monitoring":
		h.handleMonitoring(action, cmd, send, triggerStatusUpdate)
	case "settings":
		h.handleSettings(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "trips":
		h.handleTrips(action, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "camera":
		h.handleCamera(action, cmd, send, triggerStatusUpdate)
	case "clips":
		h.handleClips(action, cmd, send)
	case "status":
		h.handleStatus(action)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
		SendError(send, cmd.Type, errUnknownCommand(cmd.Type))
		return
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleMonitoring routes monitoring/* commands
func (h *CommandHandler) handleMonitoring(action string, cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	switch action {
	case "start":
		HandleActionAsync(cmd, send, func() (any, error) {
			defer triggerStatusUpdate()
			if err := h.StartMonitoring(context.Background()); err != nil {
				return nil, err
			}
			return h.deps.Monitor.Status(), nil
		})
	case "stop":
		HandleActionAsync(cmd, send, func() (any, error) {
			defer triggerStatusUpdate()
			if err := h.deps.Monitor.Stop(); err != nil {
				return nil, err
			}
			return h.deps.Monitor.Status(), nil
		})
	case "ack":
		if err := h.deps.Monitor.Acknowledge(); err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, nil)
	case "status":
		SendSuccess(send, cmd.Type, h.deps.Monitor.Status())
	default:
		slog.Warn("unknown monitoring action", "action", action)
		SendError(send, cmd.Type, errUnknownCommand(cmd.Type))
	}
}

// handleSettings routes settings/* commands
func (h *CommandHandler) handleSettings(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "get":
		SendSuccess(send, cmd.Type, h.ConfigView())
	case "update":
		HandleCommand(cmd, send, func(req *SettingsUpdateRequest) (any, error) {
			if err := h.ApplySettings(req); err != nil {
				return nil, err
			}
			return h.ConfigView(), nil
		})
	case "rotate-key":
		key, err := h.RotateAPIKey()
		if err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, map[string]string{"api_key": key})
	default:
		slog.Warn("unknown settings action", "action", action)
		SendError(send, cmd.Type, errUnknownCommand(cmd.Type))
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch subaction {
	case "test":
		h.handleTest(send, action)
	case "view":
		if action != "log" {
			slog.Warn("unknown notifications action", "action", action, "subaction", subaction)
			SendError(send, cmd.Type, errUnknownCommand(cmd.Type))
			return
		}
		h.handleViewLog(send)
	default:
		slog.Warn("unknown notifications action", "action", action, "subaction", subaction)
		SendError(send, cmd.Type, errUnknownCommand(cmd.Type))
	}
}

// handleTrips routes trips/* commands
func (h *CommandHandler) handleTrips(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "list":
		SendSuccess(send, cmd.Type, h.ListTrips())
	case "get":
		HandleCommand(cmd, send, func(req *TripGetRequest) (any, error) {
			return h.GetTrip(req.ID)
		})
	default:
		slog.Warn("unknown trips action", "action", action)
		SendError(send, cmd.Type, errUnknownCommand(cmd.Type))
	}
}

// handleEvents routes events/* commands
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "list":
		HandleCommand(cmd, send, func(req *EventsListRequest) (any, error) {
			return h.ListEvents(req), nil
		})
	default:
		slog.Warn("unknown events action", "action", action)
		SendError(send, cmd.Type, errUnknownCommand(cmd.Type))
	}
}

// handleCamera routes camera/* commands
func (h *CommandHandler) handleCamera(action string, cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	switch action {
	case "retry":
		HandleActionAsync(cmd, send, func() (any, error) {
			defer triggerStatusUpdate()
			if err := h.RetryCamera(); err != nil {
				return nil, err
			}
			return h.deps.Camera.Status(), nil
		})
	default:
		slog.Warn("unknown camera action", "action", action)
		SendError(send, cmd.Type, errUnknownCommand(cmd.Type))
	}
}

// handleClips routes clips/* commands
func (h *CommandHandler) handleClips(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "test-s3":
		var req S3TestRequest
		if !DecodeAndValidate(cmd, send, &req) {
			return
		}
		HandleActionAsync(cmd, send, func() (any, error) {
			return nil, h.TestS3(&req)
		})
	default:
		slog.Warn("unknown clips action", "action", action)
		SendError(send, cmd.Type, errUnknownCommand(cmd.Type))
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
