package sound

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/ffmpeg"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

// ProcessConfig configures a ProcessPlayer.
type ProcessConfig struct {
	Binary      string   // Player binary, e.g. ffplay
	Args        []string // Arguments placed before the file path
	AlarmPath   string
	WarningPath string
	Volume      int // 0-100, empty keeps the player default
}

// DefaultPlayerArgs are the arguments used with ffplay.
var DefaultPlayerArgs = []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}

// startFunc launches one playback of path. Replaced in tests.
type startFunc func(binary string, args []string) (*ffmpeg.Process, error)

// ProcessPlayer plays audio files through an external player process.
// The alarm loops until StopAlarm. The warning plays once, and a new warning
// cuts off the one still playing.
type ProcessPlayer struct {
	cfg   ProcessConfig
	start startFunc

	mu        sync.Mutex
	alarm     *ffmpeg.Process
	alarmStop chan struct{}
	warning   *ffmpeg.Process
}

// NewProcessPlayer creates a player. It returns nil if the binary cannot be resolved.
func NewProcessPlayer(cfg ProcessConfig) *ProcessPlayer {
	bin := util.ResolveBinary(cfg.Binary, "ffplay")
	if bin == "" {
		slog.Warn("sound player not found, local audio disabled", "binary", cfg.Binary)
		return nil
	}
	cfg.Binary = bin
	if cfg.Args == nil {
		cfg.Args = DefaultPlayerArgs
	}
	return &ProcessPlayer{
		cfg: cfg,
		start: func(binary string, args []string) (*ffmpeg.Process, error) {
			return ffmpeg.StartProcess(binary, args, ffmpeg.Options{})
		},
	}
}

func (p *ProcessPlayer) args(path string) []string {
	args := append([]string(nil), p.cfg.Args...)
	if p.cfg.Volume > 0 {
		args = append(args, "-volume", strconv.Itoa(min(p.cfg.Volume, 100)))
	}
	return append(args, path)
}

// PlayAlarm starts the looping alarm. Calling it while the alarm plays is a no-op.
func (p *ProcessPlayer) PlayAlarm() {
	if p.cfg.AlarmPath == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alarmStop != nil {
		return
	}
	stop := make(chan struct{})
	p.alarmStop = stop
	go p.loopAlarm(stop)
}

func (p *ProcessPlayer) loopAlarm(stop <-chan struct{}) {
	for {
		proc, err := p.start(p.cfg.Binary, p.args(p.cfg.AlarmPath))
		if err != nil {
			slog.Debug("alarm playback failed", "error", err)
			return
		}

		p.mu.Lock()
		select {
		case <-stop:
			p.mu.Unlock()
			proc.Cancel()
			_ = proc.Wait()
			return
		default:
		}
		p.alarm = proc
		p.mu.Unlock()

		started := time.Now()
		err = proc.Wait()

		p.mu.Lock()
		if p.alarm == proc {
			p.alarm = nil
		}
		p.mu.Unlock()

		select {
		case <-stop:
			return
		default:
		}
		// A player that exits immediately would spin; treat it as broken.
		if err != nil && time.Since(started) < time.Second {
			slog.Debug("alarm player exited", "error", err, "stderr", proc.LastError())
			return
		}
	}
}

// StopAlarm stops the looping alarm. Calling it when nothing plays is a no-op.
func (p *ProcessPlayer) StopAlarm() {
	p.mu.Lock()
	stop := p.alarmStop
	proc := p.alarm
	p.alarmStop = nil
	p.alarm = nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	if proc != nil {
		proc.Cancel()
	}
}

// PlayWarning plays the warning tone once, restarting it if it is still playing.
func (p *ProcessPlayer) PlayWarning() {
	if p.cfg.WarningPath == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.warning != nil {
		p.warning.Cancel()
		p.warning = nil
	}

	proc, err := p.start(p.cfg.Binary, p.args(p.cfg.WarningPath))
	if err != nil {
		slog.Debug("warning playback failed", "error", err)
		return
	}
	p.warning = proc

	go func() {
		err := proc.Wait()

		p.mu.Lock()
		current := p.warning == proc
		if current {
			p.warning = nil
		}
		p.mu.Unlock()

		if current && err != nil {
			slog.Debug("warning player exited", "error", err, "stderr", proc.LastError())
		}
	}()
}
