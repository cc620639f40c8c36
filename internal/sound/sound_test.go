package sound

import (
	"os/exec"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/ffmpeg"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	cues []string
}

func (r *recordingBroadcaster) BroadcastCue(cue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cues = append(r.cues, cue)
}

func TestMulti_FansOutToCuePlayers(t *testing.T) {
	a, b := &recordingBroadcaster{}, &recordingBroadcaster{}
	m := Multi{NewCuePlayer(a), Nop{}, NewCuePlayer(b)}

	m.PlayAlarm()
	m.PlayWarning()
	m.StopAlarm()

	want := []string{CueAlarm, CueWarning, CueAlarmStop}
	for i, r := range []*recordingBroadcaster{a, b} {
		if !slices.Equal(r.cues, want) {
			t.Errorf("broadcaster %d cues = %v, want %v", i, r.cues, want)
		}
	}
}

func TestProcessPlayer_ArgsIncludeVolume(t *testing.T) {
	p := &ProcessPlayer{cfg: ProcessConfig{Args: DefaultPlayerArgs, Volume: 150}}
	got := p.args("alarm.mp3")
	want := append(slices.Clone(DefaultPlayerArgs), "-volume", "100", "alarm.mp3")
	if !slices.Equal(got, want) {
		t.Errorf("args = %v, want %v", got, want)
	}

	p.cfg.Volume = 0
	if got := p.args("x.wav"); slices.Contains(got, "-volume") {
		t.Errorf("zero volume must keep the player default: %v", got)
	}
}

func TestProcessPlayer_AlarmIsIdempotent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses the sleep binary")
	}
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available")
	}

	var starts atomic.Int32
	p := &ProcessPlayer{
		cfg: ProcessConfig{Binary: sleep, Args: []string{}, AlarmPath: "30"},
		start: func(binary string, args []string) (*ffmpeg.Process, error) {
			starts.Add(1)
			return ffmpeg.StartProcess(binary, args, ffmpeg.Options{})
		},
	}

	p.PlayAlarm()
	p.PlayAlarm()
	waitFor(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.alarm != nil
	})
	if n := starts.Load(); n != 1 {
		t.Fatalf("starts = %d, want 1", n)
	}

	p.StopAlarm()
	p.StopAlarm()
	time.Sleep(200 * time.Millisecond)
	if n := starts.Load(); n != 1 {
		t.Errorf("alarm restarted after stop, starts = %d", n)
	}
}

func TestProcessPlayer_WarningRestarts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses the sleep binary")
	}
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available")
	}

	var (
		mu    sync.Mutex
		procs []*ffmpeg.Process
	)
	p := &ProcessPlayer{
		cfg: ProcessConfig{Binary: sleep, Args: []string{}, WarningPath: "30"},
		start: func(binary string, args []string) (*ffmpeg.Process, error) {
			proc, err := ffmpeg.StartProcess(binary, args, ffmpeg.Options{})
			if err == nil {
				mu.Lock()
				procs = append(procs, proc)
				mu.Unlock()
			}
			return proc, err
		},
	}
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, proc := range procs {
			_ = proc.Stop()
		}
	})

	p.PlayWarning()
	p.PlayWarning()

	mu.Lock()
	if len(procs) != 2 {
		mu.Unlock()
		t.Fatalf("starts = %d, want 2", len(procs))
	}
	first, second := procs[0], procs[1]
	mu.Unlock()

	exited := make(chan struct{})
	go func() {
		_ = first.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("first warning still playing after restart")
	}

	p.mu.Lock()
	playing := p.warning
	p.mu.Unlock()
	if playing != second {
		t.Errorf("playing warning = %p, want the second start %p", playing, second)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
