package drowsiness

import (
	"time"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

// Decision is what the controller wants done after one tick.
type Decision struct {
	State     types.ControllerState
	Escalate  bool
	Cause     types.EscalationCause
	PlayAlarm bool
	StopAlarm bool
	Warning   WarningReason
}

// Controller is the per-session escalation state machine. It runs two
// independent watches: the head-nod alarm reported by the debouncer, and a
// persistence timer over severe risk that head-nod did not cause.
type Controller struct {
	cfg Thresholds

	state       types.ControllerState
	severeSince time.Time
	escalated   bool
	alarmActive bool
	stopped     bool
}

// NewController returns a controller in the monitoring state.
func NewController(cfg Thresholds) *Controller {
	return &Controller{cfg: cfg, state: types.ControllerMonitoring}
}

// Step advances the controller with the outcome of one tick.
func (c *Controller) Step(now time.Time, u Update, cls Classification) Decision {
	if c.stopped {
		return Decision{State: c.state}
	}

	var d Decision

	if u.AlarmStarted {
		c.alarmActive = true
		d.PlayAlarm = true
		if c.state == types.ControllerMonitoring {
			c.state = types.ControllerAlarming
		}
	}
	if u.AlarmStopped {
		c.alarmActive = false
		d.StopAlarm = true
		if c.state == types.ControllerAlarming {
			c.state = types.ControllerMonitoring
		}
	}
	if u.HeadNodEscalate {
		c.state = types.ControllerEscalated
		d.Escalate = true
		d.Cause = types.CauseHeadNod
	}

	if cls.Level == types.RiskSevere && !cls.HeadNodCause() {
		if c.severeSince.IsZero() {
			c.severeSince = now
		}
		if !c.escalated && now.Sub(c.severeSince) >= c.cfg.SevereEscalateAfter {
			c.escalated = true
			c.state = types.ControllerEscalated
			if !d.Escalate {
				d.Escalate = true
				d.Cause = types.CauseSevere
			}
		}
	} else {
		c.severeSince = time.Time{}
	}

	d.Warning = u.Warning
	d.State = c.state
	return d
}

// State returns the current controller state.
func (c *Controller) State() types.ControllerState {
	return c.state
}

// SevereSince returns when the current severe run began, or the zero time.
func (c *Controller) SevereSince() time.Time {
	return c.severeSince
}

// AlarmActive reports whether the alarm is currently playing.
func (c *Controller) AlarmActive() bool {
	return c.alarmActive
}

// Teardown discards timers and reports whether the alarm still needs stopping.
// After Teardown every Step is a no-op.
func (c *Controller) Teardown() (stopAlarm bool) {
	stopAlarm = c.alarmActive
	c.stopped = true
	c.alarmActive = false
	c.severeSince = time.Time{}
	return stopAlarm
}
