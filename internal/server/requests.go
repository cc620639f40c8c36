package server

// Request types for WebSocket commands and REST bodies with validation tags.
// Nil pointer fields leave the current value unchanged.

// --- Settings ---

// SettingsUpdateRequest is the request body for settings/update and POST /api/settings.
type SettingsUpdateRequest struct {
	// Backend
	BackendURL        *string  `json:"backend_url" validate:"omitempty,http_url,max=2048"`
	BackendTimeoutMs  *int64   `json:"backend_timeout_ms" validate:"omitempty,gte=500,lte=60000"`
	HealthTimeoutMs   *int64   `json:"health_timeout_ms" validate:"omitempty,gte=500,lte=60000"`
	BackendConfidence *float64 `json:"conf" validate:"omitempty,gt=0,lte=1"`
	BackendImageSize  *int     `json:"imgsz" validate:"omitempty,gte=32,lte=1280"`

	// Camera
	CameraSource *string `json:"camera_source" validate:"omitempty,oneof=ffmpeg push"`
	CameraDevice *string `json:"camera_device" validate:"omitempty,max=256"`
	CameraFPS    *int    `json:"camera_fps" validate:"omitempty,gte=1,lte=30"`
	CameraWidth  *int    `json:"camera_width" validate:"omitempty,gte=160,lte=1920"`
	CameraHeight *int    `json:"camera_height" validate:"omitempty,gte=120,lte=1080"`

	// Detection
	TickIntervalMs     *int64 `json:"tick_interval_ms" validate:"omitempty,gte=200,lte=10000"`
	FailureStreakLimit *int   `json:"failure_streak_limit" validate:"omitempty,gte=1,lte=100"`

	// Alerts
	Volume        *int    `json:"volume" validate:"omitempty,gte=0,lte=100"`
	AlarmSound    *string `json:"alarm_sound" validate:"omitempty,max=4096"`
	WarningSound  *string `json:"warning_sound" validate:"omitempty,max=4096"`
	LocalPlayback *bool   `json:"local_playback"`
	Level1DelayS  *int    `json:"level1_delay_s" validate:"omitempty,gte=0,lte=600"`
	Level2DelayS  *int    `json:"level2_delay_s" validate:"omitempty,gte=0,lte=600"`
	Level3DelayS  *int    `json:"level3_delay_s" validate:"omitempty,gte=0,lte=600"`
	ContactName   *string `json:"contact_name" validate:"omitempty,max=100"`
	ContactEmail  *string `json:"contact_email" validate:"omitempty,email,max=254"`
	ContactPhone  *string `json:"contact_phone" validate:"omitempty,max=32"`

	// Webhook
	WebhookURL *string `json:"webhook_url" validate:"omitempty,http_url,max=2048"`

	// Log
	LogPath *string `json:"log_path" validate:"omitempty,max=4096"`

	// Email (Graph)
	GraphTenantID     *string `json:"graph_tenant_id" validate:"omitempty,max=100"`
	GraphClientID     *string `json:"graph_client_id" validate:"omitempty,max=100"`
	GraphClientSecret *string `json:"graph_client_secret" validate:"omitempty,max=500"`
	GraphFromAddress  *string `json:"graph_from_address" validate:"omitempty,email,max=254"`
	GraphRecipients   *string `json:"graph_recipients" validate:"omitempty,max=1000"`

	// Zabbix
	ZabbixServer *string `json:"zabbix_server" validate:"omitempty,max=253"`
	ZabbixPort   *int    `json:"zabbix_port" validate:"omitempty,gte=1,lte=65535"`
	ZabbixHost   *string `json:"zabbix_host" validate:"omitempty,max=253"`
	ZabbixKey    *string `json:"zabbix_key" validate:"omitempty,max=256"`

	// MQTT
	MQTTBroker   *string `json:"mqtt_broker" validate:"omitempty,max=2048"`
	MQTTClientID *string `json:"mqtt_client_id" validate:"omitempty,max=128"`
	MQTTUsername *string `json:"mqtt_username" validate:"omitempty,max=128"`
	MQTTPassword *string `json:"mqtt_password" validate:"omitempty,max=256"`
	MQTTTopic    *string `json:"mqtt_topic" validate:"omitempty,max=256"`
	MQTTQoS      *byte   `json:"mqtt_qos" validate:"omitempty,lte=2"`

	// Clips
	ClipsEnabled      *bool   `json:"clips_enabled"`
	ClipStorageMode   *string `json:"clips_storage_mode" validate:"omitempty,oneof=local s3 both"`
	ClipsPath         *string `json:"clips_local_path" validate:"omitempty,max=4096"`
	ClipSeconds       *int    `json:"clips_seconds" validate:"omitempty,gte=1,lte=60"`
	ClipRetentionDays *int    `json:"clips_retention_days" validate:"omitempty,gte=1,lte=3650"`
	S3Endpoint        *string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	S3Bucket          *string `json:"s3_bucket" validate:"omitempty,max=63"`
	S3Prefix          *string `json:"s3_prefix" validate:"omitempty,max=256"`
	S3Region          *string `json:"s3_region" validate:"omitempty,max=64"`
	S3AccessKeyID     *string `json:"s3_access_key_id" validate:"omitempty,max=128"`
	S3SecretAccessKey *string `json:"s3_secret_access_key" validate:"omitempty,max=256"`
}

// --- Review ---

// TripGetRequest is the request body for trips/get.
type TripGetRequest struct {
	ID string `json:"id" validate:"required,uuid"`
}

// EventsListRequest is the request body for events/list.
type EventsListRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"omitempty,gte=0"`
	Type   string `json:"type" validate:"omitempty,oneof=session alert inference camera clip"`
}

// --- S3 test ---

// S3TestRequest is the request body for clips/test-s3. Empty fields fall
// back to the saved clip storage settings.
type S3TestRequest struct {
	Endpoint  string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	Bucket    string `json:"s3_bucket" validate:"omitempty,max=63"`
	Region    string `json:"s3_region" validate:"omitempty,max=64"`
	AccessKey string `json:"s3_access_key_id" validate:"omitempty,max=128"`
	SecretKey string `json:"s3_secret_access_key" validate:"omitempty,max=256"`
}
