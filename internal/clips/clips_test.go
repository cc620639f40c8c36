package clips

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/camera"
	"github.com/oszuidwest/drowsiguard/internal/config"
	"github.com/oszuidwest/drowsiguard/internal/eventlog"
	"github.com/oszuidwest/drowsiguard/internal/types"
)

func frame(b byte) camera.Frame {
	return camera.Frame{Data: []byte{0xFF, 0xD8, b, 0xFF, 0xD9}}
}

func TestRing_KeepsNewestOldestFirst(t *testing.T) {
	r := NewRing(3)
	if got := r.Frames(); len(got) != 0 {
		t.Fatalf("empty ring Frames() = %d frames", len(got))
	}

	for i := range 5 {
		r.Add(frame(byte(i)))
	}

	got := r.Frames()
	if len(got) != 3 || r.Len() != 3 {
		t.Fatalf("Frames() = %d frames, Len() = %d, want 3", len(got), r.Len())
	}
	for i, want := range []byte{2, 3, 4} {
		if got[i].Data[2] != want {
			t.Errorf("frame %d = %d, want %d", i, got[i].Data[2], want)
		}
	}

	r.Reset(2)
	if r.Len() != 0 {
		t.Errorf("Len() after Reset = %d", r.Len())
	}
}

func TestRingCapacity(t *testing.T) {
	tests := []struct {
		seconds int
		tick    time.Duration
		want    int
	}{
		{10, 900 * time.Millisecond, 12},
		{10, time.Second, 10},
		{1, 2 * time.Second, 1},
		{10, 0, defaultRingFrames},
	}
	for _, tt := range tests {
		if got := RingCapacity(tt.seconds, tt.tick); got != tt.want {
			t.Errorf("RingCapacity(%d, %v) = %d, want %d", tt.seconds, tt.tick, got, tt.want)
		}
	}
}

func TestSave_Local(t *testing.T) {
	root := t.TempDir()
	events := eventlog.NewLogger(10)
	m := NewManager(config.New(filepath.Join(root, "config.json")), events)

	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.Local)
	clip := &Clip{ID: "ab12cd34", At: at, Frames: []camera.Frame{frame(1), frame(2)}}
	cfg := &config.Snapshot{ClipStorageMode: types.StorageLocal, ClipsPath: root}

	if err := m.Save(context.Background(), cfg, clip); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	dir := filepath.Join(root, "clip-2026-02-03-04-05-06-ab12cd34")
	data, err := os.ReadFile(filepath.Join(dir, "frame-001.jpg"))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if data[2] != 2 {
		t.Errorf("frame-001 content = %x", data)
	}

	got, _ := events.ReadLast(10, 0, eventlog.FilterClip)
	if len(got) != 1 || got[0].Type != eventlog.ClipSaved {
		t.Errorf("events = %+v", got)
	}
}

func TestSave_NoFrames(t *testing.T) {
	m := NewManager(config.New(filepath.Join(t.TempDir(), "config.json")), nil)
	err := m.Save(context.Background(), &config.Snapshot{}, &Clip{ID: "x"})
	if !errors.Is(err, ErrNoFrames) {
		t.Errorf("Save() error = %v, want ErrNoFrames", err)
	}
}

func TestCapture(t *testing.T) {
	root := t.TempDir()
	cfg := config.New(filepath.Join(root, "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}
	m := NewManager(cfg, nil)
	m.Add(frame(1))

	if id := m.Capture(time.Now()); id != "" {
		t.Errorf("Capture() with clips disabled = %q, want empty", id)
	}

	clipDir := filepath.Join(root, "clips")
	s := cfg.Settings()
	s.Clips.Enabled = true
	s.Clips.StorageMode = types.StorageLocal
	s.Clips.LocalPath = clipDir
	s.Clips.RetentionDays = 7
	if err := cfg.ApplySettings(s); err != nil {
		t.Fatal(err)
	}
	id := m.Capture(time.Now())
	if id == "" {
		t.Fatal("Capture() returned no clip ID")
	}
	m.Stop()

	entries, err := os.ReadDir(clipDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("clip dir entries = %v, err = %v", entries, err)
	}
}

func TestCleanupLocalClips(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{
		"clip-2026-01-01-10-00-00-old00001",
		"clip-2026-01-09-10-00-00-new00001",
		"notaclip-2026-01-01",
	} {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	cutoff := time.Date(2026, 1, 5, 0, 0, 0, 0, time.Local)
	if got := cleanupLocalClips(root, cutoff); got != 1 {
		t.Errorf("cleanupLocalClips() = %d, want 1", got)
	}

	for name, want := range map[string]bool{
		"clip-2026-01-01-10-00-00-old00001": false,
		"clip-2026-01-09-10-00-00-new00001": true,
		"notaclip-2026-01-01":               true,
	} {
		_, err := os.Stat(filepath.Join(root, name))
		if exists := err == nil; exists != want {
			t.Errorf("%s exists = %v, want %v", name, exists, want)
		}
	}
}

func TestClipName(t *testing.T) {
	c := Clip{ID: "ab12cd34", At: time.Date(2026, 2, 3, 4, 5, 6, 0, time.Local)}
	if got := c.Name(); got != "clip-2026-02-03-04-05-06-ab12cd34" {
		t.Errorf("Name() = %q", got)
	}
}

func TestS3Connection_NotConfigured(t *testing.T) {
	if err := TestS3Connection(&types.S3Config{Bucket: "b"}); err == nil {
		t.Error("TestS3Connection() without credentials should fail")
	}
}
