package monitor

import (
	"time"

	"github.com/oszuidwest/drowsiguard/internal/drowsiness"
	"github.com/oszuidwest/drowsiguard/internal/types"
)

// Session is the state of one monitoring run. It is created when monitoring
// starts and dropped when it stops; nothing carries over to the next run.
// All methods must be called from the session's loop goroutine.
type Session struct {
	ID        string
	TripID    string
	StartedAt time.Time

	debouncer  *drowsiness.Debouncer
	controller *drowsiness.Controller

	stats         types.SessionStats
	assessment    *types.RiskAssessment
	failureStreak int
	lastFrame     []byte
}

// NewSession creates a session with empty signal state.
func NewSession(id string, start time.Time, th drowsiness.Thresholds) *Session {
	return &Session{
		ID:         id,
		StartedAt:  start,
		debouncer:  drowsiness.NewDebouncer(th),
		controller: drowsiness.NewController(th),
	}
}

// Outcome is the result of applying one detection frame.
type Outcome struct {
	Update         drowsiness.Update
	Classification drowsiness.Classification
	Assessment     types.RiskAssessment
	Decision       drowsiness.Decision
	PreviousRisk   types.RiskLevel // "" on the first assessment
}

// RiskRose reports whether the risk level went up on this tick.
func (o *Outcome) RiskRose() bool {
	if o.PreviousRisk == "" {
		return o.Assessment.RiskLevel.Rank() > 0
	}
	return o.Assessment.RiskLevel.Rank() > o.PreviousRisk.Rank()
}

// RiskChanged reports whether the risk level differs from the previous tick.
func (o *Outcome) RiskChanged() bool {
	return o.Assessment.RiskLevel != o.PreviousRisk
}

// Apply runs debounce, classify and escalate for one frame observed at now.
func (s *Session) Apply(now time.Time, frame types.DetectionFrame) Outcome {
	u := s.debouncer.Update(now, frame)
	cls := drowsiness.Classify(u.Signals.EyeClosedDuration, frame, u.Signals.ConsecutiveHeadNods, frame.HeadNod)
	dec := s.controller.Step(now, u, cls)

	out := Outcome{
		Update:         u,
		Classification: cls,
		Assessment:     drowsiness.Assess(u, frame, cls),
		Decision:       dec,
	}
	if s.assessment != nil {
		out.PreviousRisk = s.assessment.RiskLevel
	}
	a := out.Assessment
	s.assessment = &a

	if dec.PlayAlarm {
		s.stats.Alarms++
	}
	if dec.Warning != drowsiness.WarningNone {
		s.stats.Warnings++
	}
	if dec.Escalate {
		s.stats.Escalations++
	}
	return out
}

// Teardown stops the controller and reports whether the alarm was still playing.
func (s *Session) Teardown() bool {
	return s.controller.Teardown()
}

// ControllerState returns the escalation state.
func (s *Session) ControllerState() types.ControllerState {
	return s.controller.State()
}

// Stats returns the session counters.
func (s *Session) Stats() types.SessionStats {
	return s.stats
}
