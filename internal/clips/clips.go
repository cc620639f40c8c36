// Package clips saves the frames leading up to an escalation as an event
// clip, locally and/or in S3, and removes old clips once a day.
package clips

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/drowsiguard/internal/camera"
	"github.com/oszuidwest/drowsiguard/internal/config"
	"github.com/oszuidwest/drowsiguard/internal/eventlog"
	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

const (
	clipPrefix        = "clip-"
	uploadTimeout     = 2 * time.Minute
	defaultRingFrames = 11
)

// ErrNoFrames is returned when a clip is requested before any frame was buffered.
var ErrNoFrames = errors.New("no buffered frames")

// Clip is a set of frames written under one directory or key prefix.
type Clip struct {
	ID     string
	At     time.Time
	Frames []camera.Frame
}

// Name returns the directory name, clip-YYYY-MM-DD-HH-MM-SS-<id>.
func (c *Clip) Name() string {
	return clipPrefix + util.ClipStamp(c.At) + "-" + c.ID
}

// frameName returns the file name of frame i.
func frameName(i int) string {
	return fmt.Sprintf("frame-%03d.jpg", i)
}

// Manager buffers recent frames and persists clips on request.
type Manager struct {
	cfg    *config.Config
	events *eventlog.Logger
	ring   *Ring

	wg            sync.WaitGroup
	cleanupStopCh chan struct{}
	stopOnce      sync.Once
}

// NewManager creates a clip manager. Call Start to run the cleanup scheduler.
func NewManager(cfg *config.Config, events *eventlog.Logger) *Manager {
	return &Manager{
		cfg:           cfg,
		events:        events,
		ring:          NewRing(defaultRingFrames),
		cleanupStopCh: make(chan struct{}),
	}
}

// RingCapacity returns how many ticks of history cover the configured clip length.
func RingCapacity(clipSeconds int, tick time.Duration) int {
	if tick <= 0 {
		return defaultRingFrames
	}
	n := int((time.Duration(clipSeconds)*time.Second + tick - 1) / tick)
	return max(n, 1)
}

// Reset clears the buffer and sizes it for the current settings.
func (m *Manager) Reset() {
	cfg := m.cfg.Snapshot()
	m.ring.Reset(RingCapacity(cfg.ClipSeconds, cfg.TickInterval))
}

// Add buffers one sampled frame.
func (m *Manager) Add(f camera.Frame) {
	m.ring.Add(f)
}

// Buffered returns the number of frames in the buffer.
func (m *Manager) Buffered() int {
	return m.ring.Len()
}

// Capture snapshots the buffer and persists it in the background. It returns
// the clip ID, or "" when clips are disabled or the buffer is empty.
func (m *Manager) Capture(at time.Time) string {
	cfg := m.cfg.Snapshot()
	if !cfg.ClipsEnabled {
		return ""
	}
	frames := m.ring.Frames()
	if len(frames) == 0 {
		return ""
	}

	clip := &Clip{ID: NewClipID(), At: at, Frames: frames}
	m.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		defer cancel()
		if err := m.Save(ctx, &cfg, clip); err != nil {
			slog.Error("failed to save event clip", "clip", clip.ID, "error", err)
		}
	})
	return clip.ID
}

// NewClipID returns a short random clip identifier.
func NewClipID() string {
	return uuid.NewString()[:8]
}

// Save writes clip to the local path and/or S3 depending on the storage mode.
//
//nolint:gocritic // hugeParam: snapshot is passed by pointer
func (m *Manager) Save(ctx context.Context, cfg *config.Snapshot, clip *Clip) error {
	if len(clip.Frames) == 0 {
		return ErrNoFrames
	}

	var errs []error
	if cfg.ClipsToLocal() {
		dir, err := saveLocal(cfg.ClipsPath, clip)
		if err != nil {
			m.logClip(eventlog.ClipFailed, clip, "", "", err)
			errs = append(errs, err)
		} else {
			m.logClip(eventlog.ClipSaved, clip, dir, "", nil)
			slog.Info("event clip saved", "clip", clip.ID, "frames", len(clip.Frames), "path", dir)
		}
	}

	if cfg.ClipsToS3() && cfg.ClipS3.IsConfigured() {
		prefix, err := uploadClip(ctx, &cfg.ClipS3, clip)
		if err != nil {
			m.logClip(eventlog.ClipFailed, clip, "", prefix, err)
			errs = append(errs, err)
		} else {
			m.logClip(eventlog.ClipUploaded, clip, "", prefix, nil)
			slog.Info("event clip uploaded", "clip", clip.ID, "bucket", cfg.ClipS3.Bucket, "prefix", prefix)
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) logClip(t eventlog.EventType, clip *Clip, path, s3Prefix string, err error) {
	if m.events == nil {
		return
	}
	d := &eventlog.ClipDetails{
		ClipID:   clip.ID,
		Frames:   len(clip.Frames),
		Path:     path,
		S3Prefix: s3Prefix,
	}
	if err != nil {
		d.Error = err.Error()
	}
	m.events.LogClip(t, d)
}

// saveLocal writes the frames into a new clip directory under root.
func saveLocal(root string, clip *Clip) (string, error) {
	dir := filepath.Join(root, clip.Name())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create clip directory: %w", err)
	}
	for i, f := range clip.Frames {
		if err := os.WriteFile(filepath.Join(dir, frameName(i)), f.Data, 0o644); err != nil {
			return dir, fmt.Errorf("write frame %d: %w", i, err)
		}
	}
	return dir, nil
}

// uploadClip uploads the frames under <prefix><clip name>/.
func uploadClip(ctx context.Context, s3cfg *types.S3Config, clip *Clip) (string, error) {
	client := createS3Client(s3cfg)
	prefix := s3cfg.Prefix + clip.Name() + "/"
	for i, f := range clip.Frames {
		if err := putObject(ctx, client, s3cfg.Bucket, prefix+frameName(i), "image/jpeg", f.Data); err != nil {
			return prefix, fmt.Errorf("upload frame %d: %w", i, err)
		}
	}
	return prefix, nil
}

// Start runs the daily cleanup scheduler.
func (m *Manager) Start() {
	m.startCleanupScheduler()
}

// Stop ends the cleanup scheduler and waits for clips being written.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.cleanupStopCh) })
	m.wg.Wait()
}
