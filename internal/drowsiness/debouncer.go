package drowsiness

import (
	"time"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

// WarningReason explains why a warning tone was requested.
type WarningReason string

const (
	WarningNone        WarningReason = ""
	WarningYawnCluster WarningReason = "yawn_cluster"
	WarningEyesClosed  WarningReason = "eyes_closed"
)

// Signals are the debounced values derived on one tick.
type Signals struct {
	BlinkRate           int           // Blinks in the trailing blink window
	EyeClosedDuration   time.Duration // 0 while the eyes are open
	YawnCount           int           // Yawn rising edges in the trailing window
	ConsecutiveHeadNods int
	AsleepDuration      time.Duration // 0 while no head-nod is reported
}

// Update is the outcome of feeding one frame to the debouncer.
type Update struct {
	At          time.Time
	Transitions Transitions
	Signals     Signals

	AlarmStarted    bool          // Sustained head-nod crossed the alarm threshold
	AlarmStopped    bool          // Head-nod ended after the alarm played
	HeadNodEscalate bool          // Emit "escalate to alert" for the head-nod path
	Warning         WarningReason // Non-empty when the warning tone must play
	BlinkCounted    bool
}

// SignalState is a copy of the debouncer's internal state.
type SignalState struct {
	EyeClosedSince      time.Time
	LastEyesClosed      bool
	LastEyesClosedAt    time.Time
	EyeWarningPlayed    bool
	BlinkTimestamps     []time.Time
	LastYawn            bool
	YawnTimestamps      []time.Time
	LastWarningAt       time.Time
	LastHeadNod         bool
	ConsecutiveHeadNods int
	AsleepSince         time.Time
	AlarmPlayed         bool
}

// Debouncer converts raw per-tick booleans into stable signals.
// It belongs to exactly one session and is not safe for concurrent use.
type Debouncer struct {
	cfg Thresholds

	// eyes
	eyeClosedSince   time.Time
	lastEyesClosed   bool
	lastEyesClosedAt time.Time // rising edge of the most recent closure
	eyeWarningPlayed bool
	blinks           *Window

	// yawn
	lastYawn      bool
	yawns         *Window
	lastWarningAt time.Time

	// head-nod
	lastHeadNod         bool
	consecutiveHeadNods int
	asleepSince         time.Time
	alarmPlayed         bool
}

// NewDebouncer returns a debouncer with empty state.
func NewDebouncer(cfg Thresholds) *Debouncer {
	return &Debouncer{
		cfg:    cfg,
		blinks: NewWindow(cfg.BlinkWindow),
		yawns:  NewWindow(cfg.YawnWindow),
	}
}

// Update applies one frame observed at now. The steps run in a fixed order
// because later derivations read state written by earlier ones.
func (d *Debouncer) Update(now time.Time, frame types.DetectionFrame) Update {
	u := Update{
		At: now,
		Transitions: Transitions{
			EyesClosed: DetectEdge(d.lastEyesClosed, frame.EyesClosed),
			Yawn:       DetectEdge(d.lastYawn, frame.Yawn),
			HeadNod:    DetectEdge(d.lastHeadNod, frame.HeadNod),
		},
	}

	d.trackHeadNods(frame.HeadNod, u.Transitions.HeadNod)
	d.trackAsleep(now, frame.HeadNod, &u)
	d.trackYawns(now, u.Transitions.Yawn, &u)
	d.trackEyeClosure(now, frame.EyesClosed, u.Transitions.EyesClosed, &u)
	d.trackBlinks(now, u.Transitions.EyesClosed, &u)

	d.lastHeadNod = frame.HeadNod
	d.lastYawn = frame.Yawn
	d.lastEyesClosed = frame.EyesClosed

	u.Signals.BlinkRate = d.blinks.Len()
	u.Signals.YawnCount = d.yawns.Len()
	u.Signals.ConsecutiveHeadNods = d.consecutiveHeadNods
	return u
}

func (d *Debouncer) trackHeadNods(headNod bool, edge Edge) {
	if !headNod {
		d.consecutiveHeadNods = 0
		return
	}
	if edge == EdgeRising {
		d.consecutiveHeadNods++
	}
}

func (d *Debouncer) trackAsleep(now time.Time, headNod bool, u *Update) {
	if headNod {
		if d.asleepSince.IsZero() {
			d.asleepSince = now
			d.alarmPlayed = false
		}
		elapsed := now.Sub(d.asleepSince)
		u.Signals.AsleepDuration = elapsed
		if elapsed >= d.cfg.AsleepAlarmAfter && !d.alarmPlayed {
			d.alarmPlayed = true
			u.AlarmStarted = true
		}
		return
	}

	if d.alarmPlayed {
		u.AlarmStopped = true
		u.HeadNodEscalate = true
	}
	d.asleepSince = time.Time{}
	d.alarmPlayed = false
}

func (d *Debouncer) trackYawns(now time.Time, edge Edge, u *Update) {
	if edge == EdgeRising {
		d.yawns.Add(now)
	}
	d.yawns.Prune(now)

	if edge != EdgeRising || d.yawns.Len() < d.cfg.YawnWarnCount {
		return
	}
	if !d.lastWarningAt.IsZero() && now.Sub(d.lastWarningAt) < d.cfg.WarningCooldown {
		return
	}
	d.lastWarningAt = now
	u.Warning = WarningYawnCluster
}

func (d *Debouncer) trackEyeClosure(now time.Time, closed bool, edge Edge, u *Update) {
	switch edge {
	case EdgeRising:
		d.eyeClosedSince = now
		d.lastEyesClosedAt = now
		d.eyeWarningPlayed = false
	case EdgeFalling:
		d.eyeClosedSince = time.Time{}
		d.eyeWarningPlayed = false
	}

	if !closed || d.eyeClosedSince.IsZero() {
		return
	}
	u.Signals.EyeClosedDuration = now.Sub(d.eyeClosedSince)
	if u.Signals.EyeClosedDuration >= d.cfg.EyeClosedWarnAfter && !d.eyeWarningPlayed {
		d.eyeWarningPlayed = true
		d.lastWarningAt = now
		// A yawn warning on the same tick already covers the tone.
		if u.Warning == WarningNone {
			u.Warning = WarningEyesClosed
		}
	}
}

func (d *Debouncer) trackBlinks(now time.Time, edge Edge, u *Update) {
	if edge == EdgeFalling && !d.lastEyesClosedAt.IsZero() &&
		now.Sub(d.lastEyesClosedAt) <= d.cfg.BlinkMaxClosed {
		d.blinks.Add(now)
		u.BlinkCounted = true
	}
	d.blinks.Prune(now)
}

// State returns a copy of the current signal state.
func (d *Debouncer) State() SignalState {
	return SignalState{
		EyeClosedSince:      d.eyeClosedSince,
		LastEyesClosed:      d.lastEyesClosed,
		LastEyesClosedAt:    d.lastEyesClosedAt,
		EyeWarningPlayed:    d.eyeWarningPlayed,
		BlinkTimestamps:     d.blinks.Timestamps(),
		LastYawn:            d.lastYawn,
		YawnTimestamps:      d.yawns.Timestamps(),
		LastWarningAt:       d.lastWarningAt,
		LastHeadNod:         d.lastHeadNod,
		ConsecutiveHeadNods: d.consecutiveHeadNods,
		AsleepSince:         d.asleepSince,
		AlarmPlayed:         d.alarmPlayed,
	}
}
