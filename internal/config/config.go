// Package config provides application configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/drowsiness"
	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort          = 8080
	DefaultBackendURL       = "http://localhost:8000"
	DefaultBackendTimeoutMs = 5000
	DefaultHealthTimeoutMs  = 3000
	DefaultConfidence       = 0.35
	DefaultImageSize        = 320
	DefaultCameraFPS        = 5
	DefaultCameraWidth      = 640
	DefaultCameraHeight     = 480
	DefaultTickIntervalMs   = 900
	DefaultVolume           = 80
	DefaultLevel1DelayS     = 3
	DefaultLevel2DelayS     = 6
	DefaultLevel3DelayS     = 10
	DefaultZabbixPort       = 10051
	DefaultMQTTTopic        = "drowsiguard"
	DefaultClipsPath        = "clips"
	DefaultClipSeconds      = 10
	DefaultPlayerCommand    = "ffplay"

	// MinTickIntervalMs keeps the tick rate within what one in-flight request can sustain.
	MinTickIntervalMs = 200
)

// Environment variables that override the file.
const (
	EnvBackendURL = "DROWSIGUARD_BACKEND_URL"
	EnvPort       = "DROWSIGUARD_PORT"
	EnvAPIKey     = "DROWSIGUARD_API_KEY"
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path"` // Path to FFmpeg binary (empty = use PATH)
	Port       int    `json:"port"`        // HTTP server port
	APIKey     string `json:"api_key"`     // Required X-API-Key when set
}

// BackendConfig holds inference service settings.
type BackendConfig struct {
	URL             string  `json:"url"`
	TimeoutMs       int64   `json:"timeout_ms"`
	HealthTimeoutMs int64   `json:"health_timeout_ms"`
	Confidence      float64 `json:"conf"`
	ImageSize       int     `json:"imgsz"`
}

// CameraConfig holds video capture settings.
type CameraConfig struct {
	Source string `json:"source"` // "ffmpeg" or "push"
	Device string `json:"device"` // Capture device identifier (empty = platform default)
	FPS    int    `json:"fps"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DetectionConfig holds the tick cadence and signal thresholds.
// Zero thresholds fall back to the built-in values.
type DetectionConfig struct {
	TickIntervalMs     int64 `json:"tick_interval_ms"`
	AsleepAlarmMs      int64 `json:"asleep_alarm_ms,omitempty"`
	SevereEscalateMs   int64 `json:"severe_escalate_ms,omitempty"`
	YawnWindowMs       int64 `json:"yawn_window_ms,omitempty"`
	YawnWarnCount      int   `json:"yawn_warn_count,omitempty"`
	WarningCooldownMs  int64 `json:"warning_cooldown_ms,omitempty"`
	EyeClosedWarnMs    int64 `json:"eye_closed_warn_ms,omitempty"`
	BlinkMaxClosedMs   int64 `json:"blink_max_closed_ms,omitempty"`
	BlinkWindowMs      int64 `json:"blink_window_ms,omitempty"`
	FailureStreakLimit int   `json:"failure_streak_limit,omitempty"`
}

// EscalationConfig holds the alert escalation level delays.
type EscalationConfig struct {
	Level1DelayS int `json:"level1_delay_s"` // Webhook, MQTT, Zabbix
	Level2DelayS int `json:"level2_delay_s"` // Notification log
	Level3DelayS int `json:"level3_delay_s"` // Emergency contact email
}

// AlertsConfig holds sound and escalation settings.
type AlertsConfig struct {
	Volume           int                    `json:"volume"` // 0-100
	AlarmSound       string                 `json:"alarm_sound"`
	WarningSound     string                 `json:"warning_sound"`
	PlayerCommand    string                 `json:"player_command"` // Local player binary (empty = cues only)
	LocalPlayback    bool                   `json:"local_playback"`
	Escalation       EscalationConfig       `json:"escalation"`
	EmergencyContact types.EmergencyContact `json:"emergency_contact"`
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for escalations
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path"` // JSON lines file for escalations
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id"`     // Azure AD tenant ID
	ClientID     string `json:"client_id"`     // App registration client ID
	ClientSecret string `json:"client_secret"` // App registration client secret
	FromAddress  string `json:"from_address"`  // Shared mailbox sender address
	Recipients   string `json:"recipients"`    // Comma-separated extra recipients
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig      `json:"webhook"`
	Log     LogConfig          `json:"log"`
	Email   EmailConfig        `json:"email"`
	Zabbix  types.ZabbixConfig `json:"zabbix"`
	MQTT    types.MQTTConfig   `json:"mqtt"`
}

// ClipsConfig holds event clip settings.
type ClipsConfig struct {
	Enabled       bool              `json:"enabled"` // saveEventClips
	StorageMode   types.StorageMode `json:"storage_mode"`
	LocalPath     string            `json:"local_path"`
	Seconds       int               `json:"seconds"` // Buffered history per clip
	RetentionDays int               `json:"retention_days"`
	S3            types.S3Config    `json:"s3"`
}

// envOverrides are values taken from the environment. They win over the
// file and are never written back to it.
type envOverrides struct {
	BackendURL string
	Port       int
	APIKey     string
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Backend       BackendConfig       `json:"backend"`
	Camera        CameraConfig        `json:"camera"`
	Detection     DetectionConfig     `json:"detection"`
	Alerts        AlertsConfig        `json:"alerts"`
	Notifications NotificationsConfig `json:"notifications"`
	Clips         ClipsConfig         `json:"clips"`

	mu       sync.RWMutex
	filePath string
	env      envOverrides
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	c := &Config{filePath: filePath}
	c.applyDefaults()
	return c
}

// Load reads config from file, creating a default if none exists.
// Environment overrides are read afterwards.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	switch {
	case os.IsNotExist(err):
		if err := c.saveLocked(); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("failed to read config: %w", err)
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return util.WrapError("parse config", err)
		}
		c.applyDefaults()
	}

	if err := c.loadEnvLocked(); err != nil {
		return err
	}
	return c.validate()
}

// loadEnvLocked reads the environment overrides. Caller must hold c.mu.
func (c *Config) loadEnvLocked() error {
	c.env = envOverrides{
		BackendURL: os.Getenv(EnvBackendURL),
		APIKey:     os.Getenv(EnvAPIKey),
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s %q: must be a port number", EnvPort, v)
		}
		c.env.Port = port
	}
	return nil
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	if u := cmp.Or(c.env.BackendURL, c.Backend.URL); u != "" {
		if err := validateURL(u); err != nil {
			return fmt.Errorf("invalid backend url %q: %w", u, err)
		}
	}
	if c.Backend.Confidence <= 0 || c.Backend.Confidence > 1 {
		return fmt.Errorf("invalid backend conf %v: must be in (0, 1]", c.Backend.Confidence)
	}
	if c.Camera.Source != "ffmpeg" && c.Camera.Source != "push" {
		return fmt.Errorf("invalid camera source %q: must be ffmpeg or push", c.Camera.Source)
	}
	if c.Detection.TickIntervalMs < MinTickIntervalMs {
		return fmt.Errorf("invalid tick_interval_ms %d: must be at least %d", c.Detection.TickIntervalMs, MinTickIntervalMs)
	}
	if c.Alerts.Volume < 0 || c.Alerts.Volume > 100 {
		return fmt.Errorf("invalid volume %d: must be 0-100", c.Alerts.Volume)
	}
	if err := validateEscalation(c.Alerts.Escalation); err != nil {
		return err
	}
	switch c.Clips.StorageMode {
	case types.StorageLocal, types.StorageS3, types.StorageBoth:
	default:
		return fmt.Errorf("invalid clips storage_mode %q", c.Clips.StorageMode)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func validateEscalation(e EscalationConfig) error {
	if e.Level1DelayS < 0 || e.Level2DelayS < e.Level1DelayS || e.Level3DelayS < e.Level2DelayS {
		return fmt.Errorf("invalid escalation delays %d/%d/%d: must be non-negative and ascending",
			e.Level1DelayS, e.Level2DelayS, e.Level3DelayS)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	// System defaults
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	// Backend defaults
	if c.Backend.URL == "" {
		c.Backend.URL = DefaultBackendURL
	}
	if c.Backend.TimeoutMs == 0 {
		c.Backend.TimeoutMs = DefaultBackendTimeoutMs
	}
	if c.Backend.HealthTimeoutMs == 0 {
		c.Backend.HealthTimeoutMs = DefaultHealthTimeoutMs
	}
	if c.Backend.Confidence == 0 {
		c.Backend.Confidence = DefaultConfidence
	}
	if c.Backend.ImageSize == 0 {
		c.Backend.ImageSize = DefaultImageSize
	}
	// Camera defaults
	if c.Camera.Source == "" {
		c.Camera.Source = "ffmpeg"
	}
	if c.Camera.FPS == 0 {
		c.Camera.FPS = DefaultCameraFPS
	}
	if c.Camera.Width == 0 || c.Camera.Height == 0 {
		c.Camera.Width = DefaultCameraWidth
		c.Camera.Height = DefaultCameraHeight
	}
	// Detection defaults
	if c.Detection.TickIntervalMs == 0 {
		c.Detection.TickIntervalMs = DefaultTickIntervalMs
	}
	// Alert defaults
	if c.Alerts.Volume == 0 {
		c.Alerts.Volume = DefaultVolume
	}
	if c.Alerts.Escalation == (EscalationConfig{}) {
		c.Alerts.Escalation = EscalationConfig{
			Level1DelayS: DefaultLevel1DelayS,
			Level2DelayS: DefaultLevel2DelayS,
			Level3DelayS: DefaultLevel3DelayS,
		}
	}
	// Notification defaults
	if c.Notifications.Zabbix.Port == 0 {
		c.Notifications.Zabbix.Port = DefaultZabbixPort
	}
	if c.Notifications.MQTT.Topic == "" {
		c.Notifications.MQTT.Topic = DefaultMQTTTopic
	}
	// Clip defaults
	if c.Clips.StorageMode == "" {
		c.Clips.StorageMode = types.StorageLocal
	}
	if c.Clips.LocalPath == "" {
		c.Clips.LocalPath = DefaultClipsPath
	}
	if c.Clips.Seconds == 0 {
		c.Clips.Seconds = DefaultClipSeconds
	}
	if c.Clips.RetentionDays == 0 {
		c.Clips.RetentionDays = types.DefaultClipRetentionDays
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// update applies fn under the write lock, validates the result and saves it.
// On validation failure the previous values are restored.
func (c *Config) update(fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.sections()
	fn()
	if err := c.validate(); err != nil {
		c.restore(prev)
		return err
	}
	return c.saveLocked()
}

type sections struct {
	system        SystemConfig
	backend       BackendConfig
	camera        CameraConfig
	detection     DetectionConfig
	alerts        AlertsConfig
	notifications NotificationsConfig
	clips         ClipsConfig
}

func (c *Config) sections() sections {
	return sections{c.System, c.Backend, c.Camera, c.Detection, c.Alerts, c.Notifications, c.Clips}
}

//nolint:gocritic // hugeParam: only used on the settings path
func (c *Config) restore(s sections) {
	c.System = s.system
	c.Backend = s.backend
	c.Camera = s.camera
	c.Detection = s.detection
	c.Alerts = s.alerts
	c.Notifications = s.notifications
	c.Clips = s.clips
}

// Settings are the sections editable at runtime.
type Settings struct {
	Backend       BackendConfig
	Camera        CameraConfig
	Detection     DetectionConfig
	Alerts        AlertsConfig
	Notifications NotificationsConfig
	Clips         ClipsConfig
}

// Settings returns a copy of the editable sections.
func (c *Config) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Settings{c.Backend, c.Camera, c.Detection, c.Alerts, c.Notifications, c.Clips}
}

// ApplySettings replaces all editable sections at once and saves the
// configuration. Nothing changes if the result does not validate.
//
//nolint:gocritic // hugeParam: only used on the settings path
func (c *Config) ApplySettings(s Settings) error {
	return c.update(func() {
		c.Backend = s.Backend
		c.Camera = s.Camera
		c.Detection = s.Detection
		c.Alerts = s.Alerts
		c.Notifications = s.Notifications
		c.Clips = s.Clips
	})
}

// --- Getters for individual settings ---

// FilePath returns the path of the configuration file.
func (c *Config) FilePath() string {
	return c.filePath
}

// GetFFmpegPath returns the configured FFmpeg binary path.
func (c *Config) GetFFmpegPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.FFmpegPath
}

// APIKey returns the REST/WS API key. The environment wins over the file.
func (c *Config) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.env.APIKey, c.System.APIKey)
}

// S3Config returns a copy of the clip storage S3 configuration.
func (c *Config) S3Config() types.S3Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Clips.S3
}

// --- API key ---

// ErrAPIKeyFromEnv is returned when the API key comes from the environment
// and cannot be replaced at runtime.
var ErrAPIKeyFromEnv = errors.New("api key is set by " + EnvAPIKey)

// RotateAPIKey replaces the API key with a freshly generated one, saves it
// and returns it. The new key applies to the next request.
func (c *Config) RotateAPIKey() (string, error) {
	c.mu.RLock()
	fromEnv := c.env.APIKey != ""
	c.mu.RUnlock()
	if fromEnv {
		return "", ErrAPIKeyFromEnv
	}

	key, err := GenerateAPIKey()
	if err != nil {
		return "", util.WrapError("generate api key", err)
	}
	if err := c.update(func() { c.System.APIKey = key }); err != nil {
		return "", err
	}
	return key, nil
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	FFmpegPath string
	WebPort    int
	APIKey     string

	// Backend
	BackendURL     string
	BackendTimeout time.Duration
	HealthTimeout  time.Duration
	Confidence     float64
	ImageSize      int

	// Camera
	CameraSource string
	CameraDevice string
	CameraFPS    int
	CameraWidth  int
	CameraHeight int

	// Detection
	TickInterval       time.Duration
	Thresholds         drowsiness.Thresholds
	FailureStreakLimit int

	// Alerts
	Volume           int
	AlarmSound       string
	WarningSound     string
	PlayerCommand    string
	LocalPlayback    bool
	Level1Delay      time.Duration
	Level2Delay      time.Duration
	Level3Delay      time.Duration
	EmergencyContact types.EmergencyContact

	// Notifications
	WebhookURL        string
	LogPath           string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string
	Zabbix            types.ZabbixConfig
	MQTT              types.MQTTConfig

	// Clips
	ClipsEnabled      bool
	ClipStorageMode   types.StorageMode
	ClipsPath         string
	ClipSeconds       int
	ClipRetentionDays int
	ClipS3            types.S3Config
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System (environment wins)
		FFmpegPath: c.System.FFmpegPath,
		WebPort:    cmp.Or(c.env.Port, c.System.Port, DefaultWebPort),
		APIKey:     cmp.Or(c.env.APIKey, c.System.APIKey),

		// Backend
		BackendURL:     cmp.Or(c.env.BackendURL, c.Backend.URL, DefaultBackendURL),
		BackendTimeout: msOr(c.Backend.TimeoutMs, DefaultBackendTimeoutMs),
		HealthTimeout:  msOr(c.Backend.HealthTimeoutMs, DefaultHealthTimeoutMs),
		Confidence:     cmp.Or(c.Backend.Confidence, DefaultConfidence),
		ImageSize:      cmp.Or(c.Backend.ImageSize, DefaultImageSize),

		// Camera
		CameraSource: c.Camera.Source,
		CameraDevice: c.Camera.Device,
		CameraFPS:    cmp.Or(c.Camera.FPS, DefaultCameraFPS),
		CameraWidth:  cmp.Or(c.Camera.Width, DefaultCameraWidth),
		CameraHeight: cmp.Or(c.Camera.Height, DefaultCameraHeight),

		// Detection
		TickInterval:       msOr(c.Detection.TickIntervalMs, DefaultTickIntervalMs),
		Thresholds:         c.thresholdsLocked(),
		FailureStreakLimit: cmp.Or(c.Detection.FailureStreakLimit, 3),

		// Alerts
		Volume:           c.Alerts.Volume,
		AlarmSound:       c.Alerts.AlarmSound,
		WarningSound:     c.Alerts.WarningSound,
		PlayerCommand:    cmp.Or(c.Alerts.PlayerCommand, DefaultPlayerCommand),
		LocalPlayback:    c.Alerts.LocalPlayback,
		Level1Delay:      time.Duration(c.Alerts.Escalation.Level1DelayS) * time.Second,
		Level2Delay:      time.Duration(c.Alerts.Escalation.Level2DelayS) * time.Second,
		Level3Delay:      time.Duration(c.Alerts.Escalation.Level3DelayS) * time.Second,
		EmergencyContact: c.Alerts.EmergencyContact,

		// Notifications
		WebhookURL:        c.Notifications.Webhook.URL,
		LogPath:           c.Notifications.Log.Path,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,
		Zabbix:            c.Notifications.Zabbix,
		MQTT:              c.Notifications.MQTT,

		// Clips
		ClipsEnabled:      c.Clips.Enabled,
		ClipStorageMode:   cmp.Or(c.Clips.StorageMode, types.StorageLocal),
		ClipsPath:         cmp.Or(c.Clips.LocalPath, DefaultClipsPath),
		ClipSeconds:       cmp.Or(c.Clips.Seconds, DefaultClipSeconds),
		ClipRetentionDays: cmp.Or(c.Clips.RetentionDays, types.DefaultClipRetentionDays),
		ClipS3:            c.Clips.S3,
	}
}

// thresholdsLocked builds detection thresholds from the file, falling back
// to the built-in values. Caller must hold c.mu.
func (c *Config) thresholdsLocked() drowsiness.Thresholds {
	d := drowsiness.DefaultThresholds()
	det := c.Detection
	return drowsiness.Thresholds{
		AsleepAlarmAfter:    msOr(det.AsleepAlarmMs, d.AsleepAlarmAfter.Milliseconds()),
		SevereEscalateAfter: msOr(det.SevereEscalateMs, d.SevereEscalateAfter.Milliseconds()),
		YawnWindow:          msOr(det.YawnWindowMs, d.YawnWindow.Milliseconds()),
		YawnWarnCount:       cmp.Or(det.YawnWarnCount, d.YawnWarnCount),
		WarningCooldown:     msOr(det.WarningCooldownMs, d.WarningCooldown.Milliseconds()),
		EyeClosedWarnAfter:  msOr(det.EyeClosedWarnMs, d.EyeClosedWarnAfter.Milliseconds()),
		BlinkMaxClosed:      msOr(det.BlinkMaxClosedMs, d.BlinkMaxClosed.Milliseconds()),
		BlinkWindow:         msOr(det.BlinkWindowMs, d.BlinkWindow.Milliseconds()),
	}
}

func msOr(ms, fallback int64) time.Duration {
	return time.Duration(cmp.Or(ms, fallback)) * time.Millisecond
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured
// and there is someone to mail.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && (s.GraphRecipients != "" || s.EmergencyContact.Email != "")
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasZabbix reports whether the Zabbix trapper is configured.
func (s *Snapshot) HasZabbix() bool {
	return s.Zabbix.Server != "" && s.Zabbix.Host != "" && s.Zabbix.Key != ""
}

// HasMQTT reports whether an MQTT broker is configured.
func (s *Snapshot) HasMQTT() bool {
	return s.MQTT.Broker != ""
}

// ClipsToS3 reports whether clips are uploaded to S3.
func (s *Snapshot) ClipsToS3() bool {
	return s.ClipStorageMode == types.StorageS3 || s.ClipStorageMode == types.StorageBoth
}

// ClipsToLocal reports whether clips are kept on the local filesystem.
func (s *Snapshot) ClipsToLocal() bool {
	return s.ClipStorageMode == types.StorageLocal || s.ClipStorageMode == types.StorageBoth
}

// --- Utility functions ---

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}

// RecipientsWithContact returns the configured recipients plus the emergency contact.
func (s *Snapshot) RecipientsWithContact() string {
	contact := strings.TrimSpace(s.EmergencyContact.Email)
	if contact == "" {
		return s.GraphRecipients
	}
	for r := range strings.SplitSeq(s.GraphRecipients, ",") {
		if strings.EqualFold(strings.TrimSpace(r), contact) {
			return s.GraphRecipients
		}
	}
	if strings.TrimSpace(s.GraphRecipients) == "" {
		return contact
	}
	return s.GraphRecipients + "," + contact
}
