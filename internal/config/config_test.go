package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

func TestLoad_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	s := c.Snapshot()
	if s.WebPort != DefaultWebPort || s.BackendURL != DefaultBackendURL {
		t.Errorf("snapshot = port %d url %q", s.WebPort, s.BackendURL)
	}
	if s.TickInterval != 900*time.Millisecond {
		t.Errorf("tick interval = %v, want 900ms", s.TickInterval)
	}
	if s.Level1Delay != 3*time.Second || s.Level3Delay != 10*time.Second {
		t.Errorf("escalation delays = %v/%v", s.Level1Delay, s.Level3Delay)
	}
	if s.Thresholds.AsleepAlarmAfter != 1500*time.Millisecond || s.Thresholds.YawnWarnCount != 5 {
		t.Errorf("thresholds = %+v", s.Thresholds)
	}
}

func TestLoad_EnvironmentWinsAndIsNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv(EnvBackendURL, "http://10.0.0.5:9000")
	t.Setenv(EnvPort, "9090")
	t.Setenv(EnvAPIKey, "from-env")

	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	s := c.Snapshot()
	if s.BackendURL != "http://10.0.0.5:9000" || s.WebPort != 9090 || s.APIKey != "from-env" {
		t.Errorf("env overrides not applied: %q %d %q", s.BackendURL, s.WebPort, s.APIKey)
	}
	if c.APIKey() != "from-env" {
		t.Errorf("APIKey() = %q", c.APIKey())
	}

	if _, err := c.RotateAPIKey(); !errors.Is(err, ErrAPIKeyFromEnv) {
		t.Errorf("RotateAPIKey() with env key error = %v, want ErrAPIKeyFromEnv", err)
	}

	settings := c.Settings()
	settings.Detection.TickIntervalMs = 1000
	if err := c.ApplySettings(settings); err != nil {
		t.Fatalf("apply: %v", err)
	}
	reloaded := New(path)
	os.Unsetenv(EnvBackendURL) //nolint:errcheck // restored by t.Setenv cleanup
	os.Unsetenv(EnvAPIKey)     //nolint:errcheck // restored by t.Setenv cleanup
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	rs := reloaded.Snapshot()
	if rs.BackendURL != DefaultBackendURL || rs.APIKey != "" {
		t.Errorf("env values leaked into the file: %q %q", rs.BackendURL, rs.APIKey)
	}
	if rs.TickInterval != time.Second {
		t.Errorf("tick interval = %v, want 1s", rs.TickInterval)
	}
}

func TestLoad_InvalidEnvPort(t *testing.T) {
	t.Setenv(EnvPort, "not-a-port")
	c := New(filepath.Join(t.TempDir(), "config.json"))
	if err := c.Load(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestApplySettings_RejectInvalidAndRestore(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "config.json"))
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	tests := []struct {
		name   string
		modify func(s *Settings)
	}{
		{"tick too fast", func(s *Settings) { s.Detection.TickIntervalMs = 50 }},
		{"descending levels", func(s *Settings) {
			s.Alerts.Escalation = EscalationConfig{Level1DelayS: 5, Level2DelayS: 3, Level3DelayS: 10}
		}},
		{"bad backend url", func(s *Settings) { s.Backend.URL = "ftp://x" }},
		{"bad camera source", func(s *Settings) { s.Camera.Source = "usb" }},
		{"bad storage mode", func(s *Settings) { s.Clips.StorageMode = "tape" }},
		{"volume", func(s *Settings) { s.Alerts.Volume = 150 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := c.Snapshot()
			s := c.Settings()
			tt.modify(&s)
			if err := c.ApplySettings(s); err == nil {
				t.Fatal("expected validation error")
			}
			after := c.Snapshot()
			if before.TickInterval != after.TickInterval || before.BackendURL != after.BackendURL ||
				before.Level1Delay != after.Level1Delay || before.CameraSource != after.CameraSource ||
				before.ClipStorageMode != after.ClipStorageMode || before.Volume != after.Volume {
				t.Error("rejected update must leave the config unchanged")
			}
		})
	}
}

func TestRotateAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	key, err := c.RotateAPIKey()
	if err != nil {
		t.Fatalf("RotateAPIKey() error = %v", err)
	}
	if len(key) != 32 || c.APIKey() != key {
		t.Errorf("key = %q, APIKey() = %q", key, c.APIKey())
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.APIKey() != key {
		t.Error("rotated key was not saved")
	}
}

func TestSnapshot_RecipientsWithContact(t *testing.T) {
	tests := []struct {
		recipients string
		contact    string
		want       string
	}{
		{"", "", ""},
		{"ops@example.com", "", "ops@example.com"},
		{"", "mum@example.com", "mum@example.com"},
		{"ops@example.com", "mum@example.com", "ops@example.com,mum@example.com"},
		{"ops@example.com, MUM@example.com", "mum@example.com", "ops@example.com, MUM@example.com"},
	}
	for _, tt := range tests {
		s := Snapshot{GraphRecipients: tt.recipients, EmergencyContact: types.EmergencyContact{Email: tt.contact}}
		if got := s.RecipientsWithContact(); got != tt.want {
			t.Errorf("RecipientsWithContact(%q, %q) = %q, want %q", tt.recipients, tt.contact, got, tt.want)
		}
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file must not be an error: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DROWSIGUARD_TEST_VALUE=hello\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DROWSIGUARD_TEST_VALUE", "")
	os.Unsetenv("DROWSIGUARD_TEST_VALUE") //nolint:errcheck // restored by t.Setenv cleanup
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("DROWSIGUARD_TEST_VALUE"); got != "hello" {
		t.Errorf("value = %q, want hello", got)
	}
}

func TestApplySettings_AllOrNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	s := c.Settings()
	s.Alerts.Volume = 40
	s.Detection.TickIntervalMs = 50
	if err := c.ApplySettings(s); err == nil {
		t.Fatal("expected validation error")
	}
	if got := c.Snapshot().Volume; got == 40 {
		t.Error("volume changed although the update was rejected")
	}

	s.Detection.TickIntervalMs = 1200
	if err := c.ApplySettings(s); err != nil {
		t.Fatalf("apply: %v", err)
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	snap := reloaded.Snapshot()
	if snap.Volume != 40 || snap.TickInterval != 1200*time.Millisecond {
		t.Errorf("reloaded volume %d tick %v, want 40 and 1.2s", snap.Volume, snap.TickInterval)
	}
}
