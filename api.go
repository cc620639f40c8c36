package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/drowsiguard/internal/camera"
	"github.com/oszuidwest/drowsiguard/internal/config"
	"github.com/oszuidwest/drowsiguard/internal/monitor"
	"github.com/oszuidwest/drowsiguard/internal/server"
	"github.com/oszuidwest/drowsiguard/internal/trips"
	"github.com/oszuidwest/drowsiguard/internal/types"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, types.APIError{Error: message})
}

// writeErr maps err to a status code. Validation errors list every field.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  verr.Error(),
			"fields": verr.Errors,
		})
		return
	}
	s.writeError(w, errorStatus(err), err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, monitor.ErrAlreadyRunning), errors.Is(err, monitor.ErrNotRunning),
		errors.Is(err, config.ErrAPIKeyFromEnv):
		return http.StatusConflict
	case errors.Is(err, monitor.ErrBackendNotReady), errors.Is(err, server.ErrNoCamera):
		return http.StatusServiceUnavailable
	case errors.Is(err, trips.ErrNotFound), errors.Is(err, server.ErrUnknownChannel):
		return http.StatusNotFound
	case errors.Is(err, camera.ErrInvalidFrame), errors.Is(err, server.ErrS3NotConfigured):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseJSON reads, parses and validates JSON from the request body. An empty
// body yields the zero value. Returns false if an error response was sent.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	if err := server.Validate(&v); err != nil {
		s.writeErr(w, err)
		return v, false
	}
	return v, true
}

// handleHealth reports liveness.
// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": normalizeVersion(Version),
		"monitor": s.monitor.Status().State,
	})
}

// handleAPIConfig returns the configuration for the frontend.
// GET /api/config
func (s *Server) handleAPIConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.commands.ConfigView())
}

// handleAPISettings updates settings atomically.
// POST /api/settings
func (s *Server) handleAPISettings(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.SettingsUpdateRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.commands.ApplySettings(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.broadcastConfigChanged()
	s.writeJSON(w, http.StatusOK, s.commands.ConfigView())
}

// handleRotateAPIKey replaces the API key and returns the new one.
// POST /api/settings/api-key
func (s *Server) handleRotateAPIKey(w http.ResponseWriter, _ *http.Request) {
	key, err := s.commands.RotateAPIKey()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.broadcastConfigChanged()
	s.writeJSON(w, http.StatusOK, map[string]string{"api_key": key})
}

// broadcastConfigChanged pushes a fresh status to every client.
func (s *Server) broadcastConfigChanged() {
	s.hub.RequestStatus()
}

// --- Monitoring ---

// handleMonitoringStart probes the backend and starts a session.
// POST /api/monitoring/start
func (s *Server) handleMonitoringStart(w http.ResponseWriter, r *http.Request) {
	if err := s.commands.StartMonitoring(r.Context()); err != nil {
		s.writeErr(w, err)
		return
	}
	s.hub.RequestStatus()
	s.writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleMonitoringStop ends the session.
// POST /api/monitoring/stop
func (s *Server) handleMonitoringStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.monitor.Stop(); err != nil {
		if errors.Is(err, monitor.ErrNotRunning) {
			s.writeErr(w, err)
			return
		}
		// Teardown completed with errors; the session is gone either way.
		slog.Error("monitoring stopped with errors", "error", err)
	}
	s.hub.RequestStatus()
	s.writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleMonitoringAck silences the alarm and cancels pending notifications.
// POST /api/monitoring/ack
func (s *Server) handleMonitoringAck(w http.ResponseWriter, _ *http.Request) {
	if err := s.monitor.Acknowledge(); err != nil {
		s.writeErr(w, err)
		return
	}
	s.hub.RequestStatus()
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleMonitoringStatus returns monitor and camera status.
// GET /api/monitoring/status
func (s *Server) handleMonitoringStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// --- Camera ---

// handleCameraRetry restarts capture.
// POST /api/camera/retry
func (s *Server) handleCameraRetry(w http.ResponseWriter, _ *http.Request) {
	if err := s.commands.RetryCamera(); err != nil {
		s.writeErr(w, err)
		return
	}
	s.hub.RequestStatus()
	s.writeJSON(w, http.StatusOK, s.camera.Status())
}

// handleAPIDevices returns available camera devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": camera.Devices(s.ffmpegPath),
	})
}

// handlePushFrame stores one JPEG frame from the presentation layer.
// POST /api/frames
func (s *Server) handlePushFrame(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, camera.MaxFrameBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) > camera.MaxFrameBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "frame too large")
		return
	}
	if err := s.camera.Push(data); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Review ---

// handleListTrips returns trip summaries, newest first.
// GET /api/trips
func (s *Server) handleListTrips(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.commands.ListTrips())
}

// handleGetTrip returns one trip with its alerts.
// GET /api/trips/{id}
func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	req := server.TripGetRequest{ID: r.PathValue("id")}
	if err := server.Validate(&req); err != nil {
		s.writeErr(w, err)
		return
	}
	trip, err := s.commands.GetTrip(req.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trip)
}

// handleListEvents returns a page of the event log.
// GET /api/events?limit=&offset=&type=
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := server.EventsListRequest{Type: q.Get("type")}
	var err error
	if v := q.Get("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil {
			s.writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if req.Offset, err = strconv.Atoi(v); err != nil {
			s.writeError(w, http.StatusBadRequest, "offset must be a number")
			return
		}
	}
	if err := server.Validate(&req); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.commands.ListEvents(&req))
}

// --- Notifications and storage ---

// handleAPITestNotification sends a test message over one channel.
// POST /api/notifications/test/{channel}
func (s *Server) handleAPITestNotification(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	err := s.commands.RunNotificationTest(channel)
	if errors.Is(err, server.ErrUnknownChannel) {
		s.writeErr(w, err)
		return
	}
	s.writeTestResult(w, err)
}

// handleAPIViewLog returns the escalation log entries.
// GET /api/notifications/log
func (s *Server) handleAPIViewLog(w http.ResponseWriter, _ *http.Request) {
	view, err := s.commands.ViewLog()
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"entries": view.Entries,
		"path":    view.Path,
	})
}

// handleTestS3 checks clip storage connectivity.
// POST /api/clips/test-s3
func (s *Server) handleTestS3(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.S3TestRequest](s, w, r)
	if !ok {
		return
	}
	s.writeTestResult(w, s.commands.TestS3(&req))
}

// writeTestResult reports a connectivity test outcome. A failed test is
// still a successful request.
func (s *Server) writeTestResult(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
