// Package types provides shared type definitions used across the drowsiness guard.
package types

import (
	"time"
)

// RiskLevel is the discrete drowsiness risk derived from debounced signals.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskMild     RiskLevel = "mild"
	RiskModerate RiskLevel = "moderate"
	RiskSevere   RiskLevel = "severe"
)

// Rank orders risk levels so callers can compare them.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskMild:
		return 1
	case RiskModerate:
		return 2
	case RiskSevere:
		return 3
	default:
		return 0
	}
}

// Detection is a single per-class detection from the inference service.
type Detection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// DetectionFrame is the canonical per-tick reading produced from one inference result.
type DetectionFrame struct {
	EyesClosed bool `json:"eyes_closed"`
	Yawn       bool `json:"yawn"`
	HeadNod    bool `json:"head_nod"`

	// Secondary hints, only consulted by the classifier.
	Tired bool `json:"tired,omitempty"`
	Awake bool `json:"awake,omitempty"`

	Detections []Detection `json:"detections,omitempty"`
}

// RiskAssessment is recomputed on every successful tick and never persisted.
type RiskAssessment struct {
	BlinkRate         int       `json:"blinkRate"`         // Blinks in the trailing minute
	EyeClosedDuration float64   `json:"eyeClosedDuration"` // Seconds
	YawnDetected      bool      `json:"yawnDetected"`
	HeadNodDetected   bool      `json:"headNodDetected"`
	Confidence        int       `json:"confidence"` // 0-100
	RiskLevel         RiskLevel `json:"riskLevel"`
}

// MonitorState represents the lifecycle state of the monitor.
type MonitorState string

const (
	// StateIdle indicates no monitoring session exists.
	StateIdle MonitorState = "idle"
	// StateStarting indicates the backend is being probed.
	StateStarting MonitorState = "starting"
	// StateRunning indicates a session is ticking.
	StateRunning MonitorState = "running"
	// StateStopping indicates teardown is in progress.
	StateStopping MonitorState = "stopping"
)

// ControllerState is the escalation state of a single session.
type ControllerState string

const (
	ControllerMonitoring ControllerState = "monitoring"
	ControllerAlarming   ControllerState = "alarming"
	ControllerEscalated  ControllerState = "escalated"
)

// AlertSeverity grades recorded alerts.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertType classifies recorded alerts.
type AlertType string

const (
	AlertDrowsiness  AlertType = "drowsiness"
	AlertDistraction AlertType = "distraction"
	AlertEyesClosed  AlertType = "eyes_closed"
	AlertYawn        AlertType = "yawn"
)

// Alert is a single alert raised during a trip.
type Alert struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Severity   AlertSeverity `json:"severity"`
	Confidence int           `json:"confidence"`
	Type       AlertType     `json:"type"`
}

// EscalationCause names which watch fired an escalation.
type EscalationCause string

const (
	CauseHeadNod EscalationCause = "head_nod"
	CauseSevere  EscalationCause = "severe_risk"
)

// Escalation describes an "escalate to alert" event.
type Escalation struct {
	SessionID  string          `json:"session_id"`
	Cause      EscalationCause `json:"cause"`
	Timestamp  time.Time       `json:"timestamp"`
	Assessment RiskAssessment  `json:"assessment"`
}

// SessionStats are counters for one monitoring session.
type SessionStats struct {
	Ticks             int64 `json:"ticks"`
	SkippedNoFrame    int64 `json:"skipped_no_frame"`
	SkippedBusy       int64 `json:"skipped_busy"`
	InferenceFailures int64 `json:"inference_failures"`
	Escalations       int64 `json:"escalations"`
	Alarms            int64 `json:"alarms"`
	Warnings          int64 `json:"warnings"`
}

const (
	// InitialRetryDelay is the starting delay between camera restarts.
	InitialRetryDelay = 2000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between camera restarts.
	MaxRetryDelay = 30000 * time.Millisecond
	// MaxRetries is the maximum number of consecutive failed camera starts.
	MaxRetries = 10
	// SuccessThreshold is the run time after which the retry count resets.
	SuccessThreshold = 30000 * time.Millisecond
)

const (
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
	// PollInterval is the interval for polling process state.
	PollInterval = 50 * time.Millisecond
)

// StorageMode determines where event clips are saved.
type StorageMode string

// Supported storage modes.
const (
	StorageLocal StorageMode = "local" // Save only to local filesystem
	StorageS3    StorageMode = "s3"    // Upload only to S3
	StorageBoth  StorageMode = "both"  // Save locally AND upload to S3
)

// DefaultClipRetentionDays is the default number of days to keep event clips.
const DefaultClipRetentionDays = 7

// CameraStatus is the runtime state of the frame source.
type CameraStatus struct {
	Active     bool   `json:"active"`                // Capture process or push source is live
	Ready      bool   `json:"ready"`                 // A decoded frame is available
	Source     string `json:"source"`                // "ffmpeg" or "push"
	Device     string `json:"device,omitempty"`      // Configured capture device
	RetryCount int    `json:"retry_count,omitempty"` // Consecutive failed starts
	LastError  string `json:"last_error,omitempty"`  // Most recent capture error
	FrameAgeMs int64  `json:"frame_age_ms,omitzero"` // Age of the latest frame
}

// MonitorStatus summarizes the monitor for status pushes.
type MonitorStatus struct {
	State      MonitorState    `json:"state"`
	SessionID  string          `json:"session_id,omitempty"`
	TripID     string          `json:"trip_id,omitempty"`
	Controller ControllerState `json:"controller,omitempty"`
	Uptime     string          `json:"uptime,omitzero"`
	LastError  string          `json:"last_error,omitzero"`
	Assessment *RiskAssessment `json:"assessment,omitempty"`
	Stats      SessionStats    `json:"stats"`
}

// Device represents an available camera input device.
type Device struct {
	ID   string `json:"id"`   // Device identifier
	Name string `json:"name"` // Device display name
}

// WSStatusResponse is sent to clients with full monitor and camera status.
type WSStatusResponse struct {
	Type            string        `json:"type"`             // Message type identifier
	FFmpegAvailable bool          `json:"ffmpeg_available"` // FFmpeg binary is available
	Monitor         MonitorStatus `json:"monitor"`          // Monitor status
	Camera          CameraStatus  `json:"camera"`           // Camera status
	Version         VersionInfo   `json:"version"`          // Version information
}

// WSEscalateEvent is pushed to clients when the alert experience must be shown.
type WSEscalateEvent struct {
	Type       string     `json:"type"` // "escalate"
	Escalation Escalation `json:"escalation"`
}

// WSSoundCue is pushed to clients that render audio themselves.
type WSSoundCue struct {
	Type string `json:"type"` // "sound"
	Cue  string `json:"cue"`  // "alarm", "alarm_stop" or "warning"
}

// GraphConfig contains Microsoft Graph API settings for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// ZabbixConfig contains settings for sending trapper items to a Zabbix server.
type ZabbixConfig struct {
	Server string `json:"server,omitempty"`
	Port   int    `json:"port,omitempty"`
	Host   string `json:"host,omitempty"`
	Key    string `json:"key,omitempty"`
}

// MQTTConfig contains broker settings for telemetry publishing.
type MQTTConfig struct {
	Broker   string `json:"broker,omitempty"` // e.g. tcp://localhost:1883
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Topic    string `json:"topic,omitempty"` // Topic prefix
	QoS      byte   `json:"qos,omitempty"`
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}

// S3Config holds S3-compatible storage configuration for event clips.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty"` // Custom S3 endpoint (empty for AWS)
	Bucket          string `json:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty"` // Key prefix, e.g. "clips/"
	Region          string `json:"region,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
}

// IsConfigured reports whether the bucket and credentials are set.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// EmergencyContact is the person notified at the last escalation level.
type EmergencyContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
