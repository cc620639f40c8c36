// Package eventlog keeps an in-memory log of recent guard events: session
// lifecycle, alarms and escalations, inference health, camera errors and
// event clips.
package eventlog

import (
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Session event types.
const (
	SessionStarted  EventType = "session_started"
	SessionStopped  EventType = "session_stopped"
	BackendNotReady EventType = "backend_not_ready"
)

// Alert event types.
const (
	AlarmStarted  EventType = "alarm_started"
	AlarmStopped  EventType = "alarm_stopped"
	WarningPlayed EventType = "warning_played"
	Escalated     EventType = "escalated"
	Acknowledged  EventType = "acknowledged"
)

// Inference event types.
const (
	InferenceFailing   EventType = "inference_failing"
	InferenceRecovered EventType = "inference_recovered"
)

// Camera event types.
const (
	CameraError EventType = "camera_error"
)

// Clip event types.
const (
	ClipSaved        EventType = "clip_saved"
	ClipUploaded     EventType = "clip_uploaded"
	ClipFailed       EventType = "clip_failed"
	CleanupCompleted EventType = "cleanup_completed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// SessionDetails contains session lifecycle details.
type SessionDetails struct {
	TripID   string `json:"trip_id,omitempty"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// AlertDetails contains alarm, warning and escalation details.
type AlertDetails struct {
	Cause             string  `json:"cause,omitempty"`
	Reason            string  `json:"reason,omitempty"`
	RiskLevel         string  `json:"risk_level,omitempty"`
	Confidence        int     `json:"confidence,omitempty"`
	EyeClosedDuration float64 `json:"eye_closed_duration,omitempty"`
}

// InferenceDetails contains inference health details.
type InferenceDetails struct {
	Failures int    `json:"failures,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ClipDetails contains event clip details.
type ClipDetails struct {
	ClipID       string `json:"clip_id,omitempty"`
	Frames       int    `json:"frames,omitempty"`
	Path         string `json:"path,omitempty"`
	S3Prefix     string `json:"s3_prefix,omitempty"`
	Error        string `json:"error,omitempty"`
	FilesDeleted int    `json:"files_deleted,omitempty"`
	StorageType  string `json:"storage_type,omitempty"` // "local" or "s3" for cleanup
}

// DefaultCapacity is the number of events kept when none is given.
const DefaultCapacity = 1000

// Logger keeps the most recent events in a ring buffer.
type Logger struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// NewLogger creates a logger holding up to capacity events.
func NewLogger(capacity int) *Logger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Logger{events: make([]Event, capacity)}
}

// Log records an event, overwriting the oldest when full.
func (l *Logger) Log(event *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := *event
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.events[l.next] = e
	l.next = (l.next + 1) % len(l.events)
	if l.next == 0 {
		l.full = true
	}
}

// LogSession logs a session lifecycle event.
func (l *Logger) LogSession(eventType EventType, sessionID, tripID, message, errMsg string, duration time.Duration) {
	d := &SessionDetails{TripID: tripID, Error: errMsg}
	if duration > 0 {
		d.Duration = duration.Truncate(time.Second).String()
	}
	l.Log(&Event{Type: eventType, SessionID: sessionID, Message: message, Details: d})
}

// LogAlert logs an alarm, warning or escalation event.
func (l *Logger) LogAlert(eventType EventType, sessionID string, details *AlertDetails) {
	l.Log(&Event{Type: eventType, SessionID: sessionID, Details: details})
}

// LogInference logs an inference health change.
func (l *Logger) LogInference(eventType EventType, sessionID string, failures int, errMsg string) {
	l.Log(&Event{
		Type:      eventType,
		SessionID: sessionID,
		Details:   &InferenceDetails{Failures: failures, Error: errMsg},
	})
}

// LogClip logs an event clip or cleanup event.
func (l *Logger) LogClip(eventType EventType, details *ClipDetails) {
	l.Log(&Event{Type: eventType, Details: details})
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll       TypeFilter = ""
	FilterSession   TypeFilter = "session"
	FilterAlert     TypeFilter = "alert"
	FilterInference TypeFilter = "inference"
	FilterCamera    TypeFilter = "camera"
	FilterClip      TypeFilter = "clip"
)

// ValidFilter reports whether f names a known filter.
func ValidFilter(f TypeFilter) bool {
	switch f {
	case FilterAll, FilterSession, FilterAlert, FilterInference, FilterCamera, FilterClip:
		return true
	}
	return false
}

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast returns up to n events starting from offset, newest first, and
// whether more matching events exist beyond the page.
func (l *Logger) ReadLast(n, offset int, filter TypeFilter) ([]Event, bool) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false
	}
	offset = max(offset, 0)

	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.full {
		size = len(l.events)
	}

	events := make([]Event, 0, n)
	matched := 0
	for i := range size {
		idx := (l.next - 1 - i + len(l.events)) % len(l.events)
		event := l.events[idx]
		if !Matches(filter, event.Type) {
			continue
		}
		matched++
		if matched <= offset {
			continue
		}
		if len(events) == n {
			return events, true
		}
		events = append(events, event)
	}
	return events, false
}

// Matches reports whether t belongs to the filter category.
func Matches(filter TypeFilter, t EventType) bool {
	switch filter {
	case FilterAll:
		return true
	case FilterSession:
		return t == SessionStarted || t == SessionStopped || t == BackendNotReady
	case FilterAlert:
		return t == AlarmStarted || t == AlarmStopped || t == WarningPlayed ||
			t == Escalated || t == Acknowledged
	case FilterInference:
		return t == InferenceFailing || t == InferenceRecovered
	case FilterCamera:
		return t == CameraError
	case FilterClip:
		return t == ClipSaved || t == ClipUploaded || t == ClipFailed || t == CleanupCompleted
	default:
		return false
	}
}
