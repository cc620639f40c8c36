package util

import (
	"errors"
	"testing"
	"time"
)

func TestWrapError(t *testing.T) {
	if WrapError("x", nil) != nil {
		t.Fatal("WrapError(nil) should be nil")
	}
	base := errors.New("boom")
	err := WrapError("open camera", base)
	if err.Error() != "failed to open camera: boom" {
		t.Errorf("got %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should match base")
	}
}

func TestExtractLastError(t *testing.T) {
	got := ExtractLastError("first\n\nsecond line\n  \n")
	if got != "second line" {
		t.Errorf("got %q, want %q", got, "second line")
	}
}

func TestBackoff_GrowsAndResets(t *testing.T) {
	b := NewBackoff(time.Second, 3*time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("step %d: got %v, want %v", i, got, w)
		}
	}
	if b.Attempts() != 4 {
		t.Errorf("attempts = %d, want 4", b.Attempts())
	}
	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Errorf("after reset got %v", got)
	}
}

func TestExtractDateFromName(t *testing.T) {
	d, ok := ExtractDateFromName("clip-2026-03-14-08-00-01-abc")
	if !ok {
		t.Fatal("expected date")
	}
	if d.Year() != 2026 || d.Month() != time.March || d.Day() != 14 {
		t.Errorf("got %v", d)
	}
	if _, ok := ExtractDateFromName("clip-nodate"); ok {
		t.Error("expected no date")
	}
	if _, ok := ExtractDateFromName("clips/test-connection-1.txt"); ok {
		t.Error("matched a key without a date")
	}
	d, ok = ExtractDateFromName("clip-2025-01-15-14-00-05-ab12cd34/frame-000.jpg")
	if !ok || d.Day() != 15 || d.Location() != time.Local {
		t.Errorf("frame key date = %v, %v", d, ok)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{154 * time.Second, "2m 34s"},
		{83 * time.Minute, "1h 23m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidatePath(t *testing.T) {
	if err := ValidatePath("local_path", ""); err == nil {
		t.Error("empty path should fail")
	}
	if err := ValidatePath("local_path", "/var/clips/../etc"); err == nil {
		t.Error("traversal should fail")
	}
	if err := ValidatePath("local_path", "/var/clips"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheckPathWritable(t *testing.T) {
	if err := CheckPathWritable(t.TempDir()); err != nil {
		t.Errorf("temp dir should be writable: %v", err)
	}
}

func TestIsConfigured(t *testing.T) {
	if !IsConfigured("a", "b") {
		t.Error("expected configured")
	}
	if IsConfigured("a", "") {
		t.Error("expected not configured")
	}
}
