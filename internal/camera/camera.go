package camera

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/ffmpeg"
	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

// Frame sources.
const (
	SourceFFmpeg = "ffmpeg"
	SourcePush   = "push"
)

// maxFrameAge is how old the latest frame may be before the feed counts as not ready.
const maxFrameAge = 3 * time.Second

// Config configures a Camera.
type Config struct {
	Source string // SourceFFmpeg or SourcePush
	Settings
}

// Camera captures frames from a local device or accepts pushed frames,
// and samples downscaled stills from the most recent one.
type Camera struct {
	cfg        Config
	ffmpegPath string
	frames     FrameStore
	now        func() time.Time

	mu         sync.RWMutex
	running    bool
	proc       *ffmpeg.Process
	stopChan   chan struct{}
	done       chan struct{}
	device     string
	lastError  string
	retryCount int
	backoff    *util.Backoff
}

// New creates a camera. Nothing is captured until Start.
func New(cfg Config, ffmpegPath string) *Camera {
	if cfg.Source == "" {
		cfg.Source = SourceFFmpeg
	}
	return &Camera{
		cfg:        cfg,
		ffmpegPath: ffmpegPath,
		now:        time.Now,
		device:     cfg.Device,
		backoff:    util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay),
	}
}

// Start launches the capture loop. Push-only cameras have nothing to start.
func (c *Camera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Source == SourcePush || c.running {
		return nil
	}
	if c.ffmpegPath == "" {
		c.lastError = ErrNoFFmpeg.Error()
		return ErrNoFFmpeg
	}

	c.running = true
	c.stopChan = make(chan struct{})
	c.done = make(chan struct{})
	c.retryCount = 0
	c.lastError = ""
	c.backoff.Reset()

	go c.runCaptureLoop(c.stopChan, c.done)
	return nil
}

// Stop ends capture and waits for the loop to exit.
func (c *Camera) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stopChan)
	proc := c.proc
	done := c.done
	c.mu.Unlock()

	if proc != nil {
		proc.Cancel()
	}

	select {
	case <-done:
	case <-time.After(2 * types.ShutdownTimeout):
		return fmt.Errorf("camera capture did not stop in time")
	}
	c.frames.Clear()
	return nil
}

// Retry restarts capture with a fresh retry budget.
func (c *Camera) Retry() error {
	if err := c.Stop(); err != nil {
		slog.Warn("camera stop before retry failed", "error", err)
	}
	return c.Start()
}

// Reconfigure replaces the capture settings. A running capture restarts with
// the new settings.
func (c *Camera) Reconfigure(cfg Config) error {
	if cfg.Source == "" {
		cfg.Source = SourceFFmpeg
	}

	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	if running {
		if err := c.Stop(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.cfg = cfg
	c.device = cfg.Device
	c.mu.Unlock()

	if running {
		return c.Start()
	}
	return nil
}

// Push stores a frame delivered by the presentation layer.
func (c *Camera) Push(data []byte) error {
	if !IsJPEG(data) {
		return ErrInvalidFrame
	}
	if len(data) > MaxFrameBytes {
		return fmt.Errorf("frame exceeds %d bytes", MaxFrameBytes)
	}
	c.frames.Put(bytes.Clone(data), c.now())
	return nil
}

// Ready reports whether a fresh frame is available.
func (c *Camera) Ready() bool {
	f, ok := c.frames.Latest()
	return ok && c.now().Sub(f.At) <= maxFrameAge
}

// Sample returns the latest frame downscaled to SampleWidth x SampleHeight.
// It returns ErrNoFrame while the feed is not ready.
func (c *Camera) Sample() ([]byte, error) {
	f, ok := c.frames.Latest()
	if !ok || c.now().Sub(f.At) > maxFrameAge {
		return nil, ErrNoFrame
	}
	return Downscale(f.Data, SampleWidth, SampleHeight)
}

// Status returns the current camera status.
func (c *Camera) Status() types.CameraStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := types.CameraStatus{
		Active:     c.running || c.cfg.Source == SourcePush,
		Source:     c.cfg.Source,
		Device:     c.device,
		RetryCount: c.retryCount,
		LastError:  c.lastError,
	}
	if f, ok := c.frames.Latest(); ok {
		age := c.now().Sub(f.At)
		st.FrameAgeMs = age.Milliseconds()
		st.Ready = age <= maxFrameAge
	}
	return st
}

// runCaptureLoop runs FFmpeg capture and restarts it with backoff.
func (c *Camera) runCaptureLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		startTime := time.Now()
		stderrOutput, err := c.runCapture(stop)
		runDuration := time.Since(startTime)

		select {
		case <-stop:
			return
		default:
		}

		c.mu.Lock()
		if err == nil {
			err = fmt.Errorf("capture ended")
		}
		errMsg := err.Error()
		if stderrOutput != "" {
			errMsg = stderrOutput
		}
		c.lastError = errMsg
		slog.Error("camera capture error", "error", errMsg)

		if runDuration >= types.SuccessThreshold {
			c.retryCount = 0
			c.backoff.Reset()
		} else {
			c.retryCount++
		}

		if c.retryCount >= types.MaxRetries {
			slog.Error("camera capture failed, giving up", "attempts", types.MaxRetries)
			c.running = false
			c.lastError = fmt.Sprintf("Stopped after %d failed attempts: %s", types.MaxRetries, errMsg)
			c.mu.Unlock()
			return
		}

		retryDelay := c.backoff.Next()
		attempt := c.retryCount + 1
		c.mu.Unlock()

		slog.Info("camera capture stopped, waiting before restart",
			"delay", retryDelay, "attempt", attempt, "max_retries", types.MaxRetries)
		select {
		case <-stop:
			return
		case <-time.After(retryDelay):
		}
	}
}

// runCapture executes one FFmpeg capture process and feeds its frames into the store.
func (c *Camera) runCapture(stop <-chan struct{}) (string, error) {
	device, args, err := BuildCaptureArgs(c.cfg.Settings, c.ffmpegPath)
	if err != nil {
		return "", err
	}

	slog.Info("starting camera capture", "input", device, "fps", c.cfg.FPS)

	proc, err := ffmpeg.StartProcess(c.ffmpegPath, args, ffmpeg.Options{Stdout: true})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.proc = proc
	c.device = device
	c.mu.Unlock()

	// Stop may have been requested between the loop check and the process start.
	select {
	case <-stop:
		proc.Cancel()
	default:
	}

	readErr := c.readFrames(proc)
	waitErr := proc.Wait()

	c.mu.Lock()
	c.proc = nil
	c.mu.Unlock()

	if waitErr != nil {
		return proc.LastError(), waitErr
	}
	return proc.LastError(), readErr
}

func (c *Camera) readFrames(proc *ffmpeg.Process) error {
	scanner := bufio.NewScanner(proc.Stdout)
	scanner.Buffer(make([]byte, 0, 256<<10), MaxFrameBytes)
	scanner.Split(SplitJPEG)

	first := true
	for scanner.Scan() {
		if first {
			c.mu.Lock()
			c.lastError = ""
			c.mu.Unlock()
			first = false
		}
		c.frames.Put(bytes.Clone(scanner.Bytes()), c.now())
	}
	return scanner.Err()
}
