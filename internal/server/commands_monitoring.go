package server

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oszuidwest/drowsiguard/internal/clips"
	"github.com/oszuidwest/drowsiguard/internal/eventlog"
	"github.com/oszuidwest/drowsiguard/internal/trips"
)

var (
	// ErrNoCamera is returned by camera operations when no camera is wired.
	ErrNoCamera = errors.New("camera not available")
	// ErrS3NotConfigured is returned by the S3 test without bucket and credentials.
	ErrS3NotConfigured = errors.New("S3 not fully configured")
)

func errUnknownCommand(cmdType string) error {
	return fmt.Errorf("unknown command: %s", cmdType)
}

// StartMonitoring probes the detection backend and starts a session.
func (h *CommandHandler) StartMonitoring(ctx context.Context) error {
	if err := h.deps.Monitor.Start(ctx); err != nil {
		slog.Warn("monitoring start failed", "error", err)
		return err
	}
	return nil
}

// ListTrips returns the recorded trips, newest first.
func (h *CommandHandler) ListTrips() []trips.Summary {
	if h.deps.Trips == nil {
		return []trips.Summary{}
	}
	return h.deps.Trips.List()
}

// GetTrip returns one trip with its alerts.
func (h *CommandHandler) GetTrip(id string) (trips.Trip, error) {
	if h.deps.Trips == nil {
		return trips.Trip{}, trips.ErrNotFound
	}
	return h.deps.Trips.Get(id)
}

// EventsPage is one page of the event log.
type EventsPage struct {
	Events  []eventlog.Event `json:"events"`
	HasMore bool             `json:"has_more"`
}

// ListEvents returns a page of recent events, newest first.
func (h *CommandHandler) ListEvents(req *EventsListRequest) EventsPage {
	if h.deps.Events == nil {
		return EventsPage{Events: []eventlog.Event{}}
	}
	limit := cmp.Or(req.Limit, DefaultEventLimit)
	events, more := h.deps.Events.ReadLast(limit, req.Offset, eventlog.TypeFilter(req.Type))
	return EventsPage{Events: events, HasMore: more}
}

// RetryCamera restarts capture with a fresh retry budget.
func (h *CommandHandler) RetryCamera() error {
	if h.deps.Camera == nil {
		return ErrNoCamera
	}
	if err := h.deps.Camera.Retry(); err != nil {
		slog.Error("camera retry failed", "error", err)
		return err
	}
	slog.Info("camera retry requested")
	return nil
}

// TestS3 checks bucket access with the request values, falling back to the
// saved clip storage settings.
func (h *CommandHandler) TestS3(req *S3TestRequest) error {
	saved := h.deps.Config.S3Config()
	cfg := saved
	cfg.Endpoint = cmp.Or(req.Endpoint, saved.Endpoint)
	cfg.Bucket = cmp.Or(req.Bucket, saved.Bucket)
	cfg.Region = cmp.Or(req.Region, saved.Region)
	cfg.AccessKeyID = cmp.Or(req.AccessKey, saved.AccessKeyID)
	cfg.SecretAccessKey = cmp.Or(req.SecretKey, saved.SecretAccessKey)

	if !cfg.IsConfigured() {
		return ErrS3NotConfigured
	}
	if err := clips.TestS3Connection(&cfg); err != nil {
		slog.Error("clips/test-s3: connection test failed", "error", err)
		return err
	}
	slog.Info("clips/test-s3: connection test succeeded", "bucket", cfg.Bucket)
	return nil
}
