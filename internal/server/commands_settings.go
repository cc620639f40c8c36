package server

import (
	"log/slog"

	"github.com/oszuidwest/drowsiguard/internal/camera"
	"github.com/oszuidwest/drowsiguard/internal/config"
	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

// ConfigView is the configuration as shown to clients. Secrets are reported
// as present or absent, never echoed.
type ConfigView struct {
	// Backend
	BackendURL        string  `json:"backend_url"`
	BackendTimeoutMs  int64   `json:"backend_timeout_ms"`
	HealthTimeoutMs   int64   `json:"health_timeout_ms"`
	BackendConfidence float64 `json:"conf"`
	BackendImageSize  int     `json:"imgsz"`

	// Camera
	CameraSource string `json:"camera_source"`
	CameraDevice string `json:"camera_device"`
	CameraFPS    int    `json:"camera_fps"`
	CameraWidth  int    `json:"camera_width"`
	CameraHeight int    `json:"camera_height"`

	// Detection
	TickIntervalMs     int64 `json:"tick_interval_ms"`
	FailureStreakLimit int   `json:"failure_streak_limit"`

	// Alerts
	Volume           int                    `json:"volume"`
	AlarmSound       string                 `json:"alarm_sound"`
	WarningSound     string                 `json:"warning_sound"`
	LocalPlayback    bool                   `json:"local_playback"`
	Level1DelayS     int                    `json:"level1_delay_s"`
	Level2DelayS     int                    `json:"level2_delay_s"`
	Level3DelayS     int                    `json:"level3_delay_s"`
	EmergencyContact types.EmergencyContact `json:"emergency_contact"`

	// Notifications
	WebhookURL       string `json:"webhook_url"`
	LogPath          string `json:"log_path"`
	GraphTenantID    string `json:"graph_tenant_id"`
	GraphClientID    string `json:"graph_client_id"`
	GraphFromAddress string `json:"graph_from_address"`
	GraphRecipients  string `json:"graph_recipients"`
	GraphHasSecret   bool   `json:"graph_has_secret"`
	ZabbixServer     string `json:"zabbix_server"`
	ZabbixPort       int    `json:"zabbix_port"`
	ZabbixHost       string `json:"zabbix_host"`
	ZabbixKey        string `json:"zabbix_key"`
	MQTTBroker       string `json:"mqtt_broker"`
	MQTTClientID     string `json:"mqtt_client_id"`
	MQTTUsername     string `json:"mqtt_username"`
	MQTTTopic        string `json:"mqtt_topic"`
	MQTTQoS          byte   `json:"mqtt_qos"`
	MQTTHasPassword  bool   `json:"mqtt_has_password"`

	// Clips
	ClipsEnabled      bool              `json:"clips_enabled"`
	ClipStorageMode   types.StorageMode `json:"clips_storage_mode"`
	ClipsPath         string            `json:"clips_local_path"`
	ClipSeconds       int               `json:"clips_seconds"`
	ClipRetentionDays int               `json:"clips_retention_days"`
	S3Endpoint        string            `json:"s3_endpoint"`
	S3Bucket          string            `json:"s3_bucket"`
	S3Prefix          string            `json:"s3_prefix"`
	S3Region          string            `json:"s3_region"`
	S3AccessKeyID     string            `json:"s3_access_key_id"`
	S3HasSecret       bool              `json:"s3_has_secret"`

	// System
	APIKeyRequired bool `json:"api_key_required"`
}

// ConfigView returns the current configuration for clients.
func (h *CommandHandler) ConfigView() ConfigView {
	s := h.deps.Config.Settings()
	snap := h.deps.Config.Snapshot()
	n := &s.Notifications

	return ConfigView{
		BackendURL:        snap.BackendURL,
		BackendTimeoutMs:  snap.BackendTimeout.Milliseconds(),
		HealthTimeoutMs:   snap.HealthTimeout.Milliseconds(),
		BackendConfidence: snap.Confidence,
		BackendImageSize:  snap.ImageSize,

		CameraSource: s.Camera.Source,
		CameraDevice: s.Camera.Device,
		CameraFPS:    snap.CameraFPS,
		CameraWidth:  snap.CameraWidth,
		CameraHeight: snap.CameraHeight,

		TickIntervalMs:     snap.TickInterval.Milliseconds(),
		FailureStreakLimit: snap.FailureStreakLimit,

		Volume:           s.Alerts.Volume,
		AlarmSound:       s.Alerts.AlarmSound,
		WarningSound:     s.Alerts.WarningSound,
		LocalPlayback:    s.Alerts.LocalPlayback,
		Level1DelayS:     s.Alerts.Escalation.Level1DelayS,
		Level2DelayS:     s.Alerts.Escalation.Level2DelayS,
		Level3DelayS:     s.Alerts.Escalation.Level3DelayS,
		EmergencyContact: s.Alerts.EmergencyContact,

		WebhookURL:       n.Webhook.URL,
		LogPath:          n.Log.Path,
		GraphTenantID:    n.Email.TenantID,
		GraphClientID:    n.Email.ClientID,
		GraphFromAddress: n.Email.FromAddress,
		GraphRecipients:  n.Email.Recipients,
		GraphHasSecret:   n.Email.ClientSecret != "",
		ZabbixServer:     n.Zabbix.Server,
		ZabbixPort:       n.Zabbix.Port,
		ZabbixHost:       n.Zabbix.Host,
		ZabbixKey:        n.Zabbix.Key,
		MQTTBroker:       n.MQTT.Broker,
		MQTTClientID:     n.MQTT.ClientID,
		MQTTUsername:     n.MQTT.Username,
		MQTTTopic:        n.MQTT.Topic,
		MQTTQoS:          n.MQTT.QoS,
		MQTTHasPassword:  n.MQTT.Password != "",

		ClipsEnabled:      s.Clips.Enabled,
		ClipStorageMode:   s.Clips.StorageMode,
		ClipsPath:         s.Clips.LocalPath,
		ClipSeconds:       s.Clips.Seconds,
		ClipRetentionDays: s.Clips.RetentionDays,
		S3Endpoint:        s.Clips.S3.Endpoint,
		S3Bucket:          s.Clips.S3.Bucket,
		S3Prefix:          s.Clips.S3.Prefix,
		S3Region:          s.Clips.S3.Region,
		S3AccessKeyID:     s.Clips.S3.AccessKeyID,
		S3HasSecret:       s.Clips.S3.SecretAccessKey != "",

		APIKeyRequired: snap.APIKey != "",
	}
}

// ApplySettings merges the request into the saved settings in one update and
// applies the changes that take effect immediately. Backend, detection and
// sound settings take effect with the next session.
func (h *CommandHandler) ApplySettings(req *SettingsUpdateRequest) error {
	before := h.deps.Config.Snapshot()

	if req.ClipsPath != nil && *req.ClipsPath != before.ClipsPath {
		if err := validateClipsPath(*req.ClipsPath); err != nil {
			return err
		}
	}

	s := h.deps.Config.Settings()
	mergeSettings(&s, req)
	if err := h.deps.Config.ApplySettings(s); err != nil {
		return err
	}

	after := h.deps.Config.Snapshot()
	slog.Info("settings updated")

	if h.deps.Camera != nil && CameraConfig(&before) != CameraConfig(&after) {
		if err := h.deps.Camera.Reconfigure(CameraConfig(&after)); err != nil {
			slog.Error("camera reconfigure failed", "error", err)
		}
	}
	if h.deps.Notifier != nil && graphChanged(&before, &after) {
		h.deps.Notifier.InvalidateGraphClient()
	}
	return nil
}

// RotateAPIKey replaces the API key. Clients must send the returned key from
// the next request on.
func (h *CommandHandler) RotateAPIKey() (string, error) {
	key, err := h.deps.Config.RotateAPIKey()
	if err != nil {
		return "", err
	}
	slog.Info("API key regenerated")
	return key, nil
}

// CameraConfig returns the capture settings from a snapshot.
func CameraConfig(cfg *config.Snapshot) camera.Config {
	return camera.Config{
		Source: cfg.CameraSource,
		Settings: camera.Settings{
			Device: cfg.CameraDevice,
			FPS:    cfg.CameraFPS,
			Width:  cfg.CameraWidth,
			Height: cfg.CameraHeight,
		},
	}
}

// validateClipsPath rejects traversal and paths the process cannot write to.
func validateClipsPath(path string) error {
	if err := util.ValidatePath("clips_local_path", path); err != nil {
		return err
	}
	return util.CheckPathWritable(path)
}

func graphChanged(a, b *config.Snapshot) bool {
	return a.GraphTenantID != b.GraphTenantID ||
		a.GraphClientID != b.GraphClientID ||
		a.GraphClientSecret != b.GraphClientSecret ||
		a.GraphFromAddress != b.GraphFromAddress
}

// set copies src into dst when src is present.
func set[T any](dst, src *T) {
	if src != nil {
		*dst = *src
	}
}

// setSecret copies a secret only when a new value is given, so clients can
// leave it blank to keep the saved one.
func setSecret(dst, src *string) {
	if src != nil && *src != "" {
		*dst = *src
	}
}

// mergeSettings overlays the request onto the saved settings.
func mergeSettings(s *config.Settings, req *SettingsUpdateRequest) {
	// Backend
	set(&s.Backend.URL, req.BackendURL)
	set(&s.Backend.TimeoutMs, req.BackendTimeoutMs)
	set(&s.Backend.HealthTimeoutMs, req.HealthTimeoutMs)
	set(&s.Backend.Confidence, req.BackendConfidence)
	set(&s.Backend.ImageSize, req.BackendImageSize)

	// Camera
	set(&s.Camera.Source, req.CameraSource)
	set(&s.Camera.Device, req.CameraDevice)
	set(&s.Camera.FPS, req.CameraFPS)
	set(&s.Camera.Width, req.CameraWidth)
	set(&s.Camera.Height, req.CameraHeight)

	// Detection
	set(&s.Detection.TickIntervalMs, req.TickIntervalMs)
	set(&s.Detection.FailureStreakLimit, req.FailureStreakLimit)

	// Alerts
	set(&s.Alerts.Volume, req.Volume)
	set(&s.Alerts.AlarmSound, req.AlarmSound)
	set(&s.Alerts.WarningSound, req.WarningSound)
	set(&s.Alerts.LocalPlayback, req.LocalPlayback)
	set(&s.Alerts.Escalation.Level1DelayS, req.Level1DelayS)
	set(&s.Alerts.Escalation.Level2DelayS, req.Level2DelayS)
	set(&s.Alerts.Escalation.Level3DelayS, req.Level3DelayS)
	set(&s.Alerts.EmergencyContact.Name, req.ContactName)
	set(&s.Alerts.EmergencyContact.Email, req.ContactEmail)
	set(&s.Alerts.EmergencyContact.Phone, req.ContactPhone)

	// Notifications
	n := &s.Notifications
	set(&n.Webhook.URL, req.WebhookURL)
	set(&n.Log.Path, req.LogPath)
	set(&n.Email.TenantID, req.GraphTenantID)
	set(&n.Email.ClientID, req.GraphClientID)
	setSecret(&n.Email.ClientSecret, req.GraphClientSecret)
	set(&n.Email.FromAddress, req.GraphFromAddress)
	set(&n.Email.Recipients, req.GraphRecipients)
	set(&n.Zabbix.Server, req.ZabbixServer)
	set(&n.Zabbix.Port, req.ZabbixPort)
	set(&n.Zabbix.Host, req.ZabbixHost)
	set(&n.Zabbix.Key, req.ZabbixKey)
	set(&n.MQTT.Broker, req.MQTTBroker)
	set(&n.MQTT.ClientID, req.MQTTClientID)
	set(&n.MQTT.Username, req.MQTTUsername)
	setSecret(&n.MQTT.Password, req.MQTTPassword)
	set(&n.MQTT.Topic, req.MQTTTopic)
	set(&n.MQTT.QoS, req.MQTTQoS)

	// Clips
	set(&s.Clips.Enabled, req.ClipsEnabled)
	if req.ClipStorageMode != nil {
		s.Clips.StorageMode = types.StorageMode(*req.ClipStorageMode)
	}
	set(&s.Clips.LocalPath, req.ClipsPath)
	set(&s.Clips.Seconds, req.ClipSeconds)
	set(&s.Clips.RetentionDays, req.ClipRetentionDays)
	set(&s.Clips.S3.Endpoint, req.S3Endpoint)
	set(&s.Clips.S3.Bucket, req.S3Bucket)
	set(&s.Clips.S3.Prefix, req.S3Prefix)
	set(&s.Clips.S3.Region, req.S3Region)
	set(&s.Clips.S3.AccessKeyID, req.S3AccessKeyID)
	setSecret(&s.Clips.S3.SecretAccessKey, req.S3SecretAccessKey)
}
