// Package camera owns the driver-facing video feed: FFmpeg capture, pushed
// frames from the presentation layer, and the downscaled still sampled on
// every tick.
package camera

import (
	"errors"
	"fmt"
	"strconv"
)

// Sentinel errors for camera operations.
var (
	ErrNoCameraDevice = errors.New("no camera device found")
	ErrNoFrame        = errors.New("no camera frame available")
	ErrNoFFmpeg       = errors.New("ffmpeg not found")
	ErrInvalidFrame   = errors.New("frame is not a JPEG image")
)

// CaptureConfig defines platform-specific video capture configuration.
type CaptureConfig struct {
	// InputFormat is the FFmpeg input device format (v4l2, avfoundation, dshow).
	InputFormat string

	// DefaultDevice is used when no device is configured.
	// Empty means auto-detect.
	DefaultDevice string

	// QuitOnStdin is set where FFmpeg must keep stdin open to receive 'q'.
	QuitOnStdin bool

	// InputArgs returns the per-platform options placed before -i.
	InputArgs func(s Settings) []string
}

// Settings are the capture parameters from configuration.
type Settings struct {
	Device string
	FPS    int
	Width  int
	Height int
}

// BuildCaptureArgs returns FFmpeg arguments that capture device as an MJPEG
// stream on stdout.
func BuildCaptureArgs(s Settings, ffmpegPath string) (device string, args []string, err error) {
	cfg := platformConfig()

	device = s.Device
	if device == "" {
		device = cfg.DefaultDevice
	}
	if device == "" {
		devices := Devices(ffmpegPath)
		if len(devices) == 0 {
			return "", nil, ErrNoCameraDevice
		}
		device = devices[0].ID
	}

	args = []string{"-hide_banner", "-loglevel", "warning"}
	if !cfg.QuitOnStdin {
		args = append(args, "-nostdin")
	}
	args = append(args, "-f", cfg.InputFormat)
	args = append(args, cfg.InputArgs(s)...)
	args = append(args,
		"-i", device,
		"-an",
		"-vf", "fps="+strconv.Itoa(max(s.FPS, 1)),
		"-f", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
	return device, args, nil
}

// videoSize formats the capture size option value.
func videoSize(s Settings) string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}
