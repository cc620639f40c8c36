// Package monitor runs a drowsiness monitoring session: it samples a frame on
// every tick, sends it to the detection service and turns the result into
// alarms, warnings and escalations.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/drowsiguard/internal/camera"
	"github.com/oszuidwest/drowsiguard/internal/config"
	"github.com/oszuidwest/drowsiguard/internal/drowsiness"
	"github.com/oszuidwest/drowsiguard/internal/eventlog"
	"github.com/oszuidwest/drowsiguard/internal/inference"
	"github.com/oszuidwest/drowsiguard/internal/notify"
	"github.com/oszuidwest/drowsiguard/internal/sound"
	"github.com/oszuidwest/drowsiguard/internal/trips"
	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

var (
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("monitoring already running")
	// ErrNotRunning is returned by Stop and Acknowledge without an active session.
	ErrNotRunning = errors.New("monitoring not running")
	// ErrBackendNotReady is returned by Start when the health check fails.
	ErrBackendNotReady = errors.New("detection backend not ready")
)

// FrameSource supplies downscaled JPEG stills.
type FrameSource interface {
	Start() error
	Stop() error
	Sample() ([]byte, error)
}

// Inferrer is the detection service.
type Inferrer interface {
	Infer(ctx context.Context, jpeg []byte) inference.Result
	Health(ctx context.Context) error
	Busy() bool
}

// Escalator receives escalations and acknowledgements.
type Escalator interface {
	HandleEscalation(esc *types.Escalation, ev notify.Evidence) bool
	Acknowledge() bool
	Reset()
}

// ClipRecorder buffers sampled frames and saves them on escalation.
type ClipRecorder interface {
	Reset()
	Add(f camera.Frame)
	Capture(at time.Time) string
}

// RiskPublisher receives risk level changes.
type RiskPublisher interface {
	PublishRisk(cfg types.MQTTConfig, sessionID string, a types.RiskAssessment) error
}

// Deps are the collaborators of a Monitor. Config, Camera and Player are
// required; the rest may be nil.
type Deps struct {
	Config    *config.Config
	Camera    FrameSource
	Player    sound.Player
	Notifier  Escalator
	Clips     ClipRecorder
	Trips     *trips.Store
	Events    *eventlog.Logger
	Telemetry RiskPublisher
	Clock     Clock

	// NewInferrer builds the detection client for a session. Defaults to inference.NewClient.
	NewInferrer func(cfg *config.Snapshot) Inferrer

	// OnTick is called with the status after every tick.
	OnTick func(types.MonitorStatus)
	// OnEscalate is called when the alert experience must be shown.
	OnEscalate func(types.Escalation)
}

// Monitor owns at most one Session at a time.
type Monitor struct {
	deps Deps

	mu        sync.RWMutex
	state     types.MonitorState
	session   *Session
	cancel    context.CancelFunc
	done      chan struct{}
	status    types.MonitorStatus
	lastError string
}

// New creates a monitor in the idle state.
func New(deps Deps) *Monitor {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Player == nil {
		deps.Player = sound.Nop{}
	}
	if deps.NewInferrer == nil {
		deps.NewInferrer = func(cfg *config.Snapshot) Inferrer {
			return inference.NewClient(inference.Options{
				BaseURL:       cfg.BackendURL,
				Timeout:       cfg.BackendTimeout,
				HealthTimeout: cfg.HealthTimeout,
				Confidence:    cfg.Confidence,
				ImageSize:     cfg.ImageSize,
			})
		}
	}
	return &Monitor{
		deps:   deps,
		state:  types.StateIdle,
		status: types.MonitorStatus{State: types.StateIdle},
	}
}

// Start confirms the backend is ready and begins a new session.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != types.StateIdle {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.state = types.StateStarting
	m.status = types.MonitorStatus{State: types.StateStarting}
	m.mu.Unlock()

	cfg := m.deps.Config.Snapshot()
	client := m.deps.NewInferrer(&cfg)

	if err := client.Health(ctx); err != nil {
		slog.Warn("detection backend not ready", "url", cfg.BackendURL, "error", err)
		m.logEvent(&eventlog.Event{Type: eventlog.BackendNotReady, Message: err.Error()})
		m.setIdle(err.Error())
		return fmt.Errorf("%w: %w", ErrBackendNotReady, err)
	}

	if err := m.deps.Camera.Start(); err != nil {
		// Not fatal: ticks skip until frames arrive and the camera can be retried.
		slog.Warn("camera did not start", "error", err)
		m.logEvent(&eventlog.Event{Type: eventlog.CameraError, Message: err.Error()})
	}

	now := m.deps.Clock.Now()
	sess := NewSession(uuid.NewString(), now, cfg.Thresholds)
	if m.deps.Trips != nil {
		sess.TripID = m.deps.Trips.Begin(sess.ID, now)
	}
	if m.deps.Clips != nil {
		m.deps.Clips.Reset()
	}
	if m.deps.Notifier != nil {
		m.deps.Notifier.Reset()
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.state = types.StateRunning
	m.session = sess
	m.cancel = cancel
	m.done = done
	m.lastError = ""
	m.status = types.MonitorStatus{
		State:      types.StateRunning,
		SessionID:  sess.ID,
		TripID:     sess.TripID,
		Controller: sess.ControllerState(),
	}
	m.mu.Unlock()

	m.logEvent(&eventlog.Event{
		Type:      eventlog.SessionStarted,
		SessionID: sess.ID,
		Details:   &eventlog.SessionDetails{TripID: sess.TripID},
	})
	slog.Info("monitoring started", "session", sess.ID, "trip", sess.TripID, "tick", cfg.TickInterval)

	ticker := m.deps.Clock.NewTicker(cfg.TickInterval)
	go m.run(loopCtx, &cfg, sess, client, ticker, done)
	return nil
}

// Stop tears the session down. No alert fires after Stop returns.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state != types.StateRunning {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.state = types.StateStopping
	m.status.State = types.StateStopping
	sess := m.session
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done

	var errs []error
	m.deps.Player.StopAlarm()
	if m.deps.Notifier != nil {
		m.deps.Notifier.Reset()
	}
	if err := m.deps.Camera.Stop(); err != nil {
		errs = append(errs, util.WrapError("stop camera", err))
	}

	end := m.deps.Clock.Now()
	if m.deps.Trips != nil {
		if err := m.deps.Trips.End(sess.TripID, end, sess.Stats()); err != nil {
			errs = append(errs, util.WrapError("end trip", err))
		}
	}

	duration := end.Sub(sess.StartedAt)
	if m.deps.Events != nil {
		m.deps.Events.LogSession(eventlog.SessionStopped, sess.ID, sess.TripID, "", "", duration)
	}
	slog.Info("monitoring stopped", "session", sess.ID, "duration", util.FormatDuration(duration))

	m.setIdle("")
	return errors.Join(errs...)
}

// Acknowledge silences the alarm and cancels pending escalation notifications.
// The session stays escalated until it is stopped.
func (m *Monitor) Acknowledge() error {
	m.mu.RLock()
	running := m.state == types.StateRunning
	var sessionID string
	if m.session != nil {
		sessionID = m.session.ID
	}
	m.mu.RUnlock()

	if !running {
		return ErrNotRunning
	}

	m.deps.Player.StopAlarm()
	cancelled := false
	if m.deps.Notifier != nil {
		cancelled = m.deps.Notifier.Acknowledge()
	}
	m.logEvent(&eventlog.Event{Type: eventlog.Acknowledged, SessionID: sessionID})
	slog.Info("alert acknowledged", "session", sessionID, "notifications_cancelled", cancelled)
	return nil
}

// Status returns the current monitor status.
func (m *Monitor) Status() types.MonitorStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := m.status
	if st.Assessment != nil {
		a := *st.Assessment
		st.Assessment = &a
	}
	if m.session != nil && m.state == types.StateRunning {
		st.Uptime = util.FormatDuration(m.deps.Clock.Now().Sub(m.session.StartedAt))
	}
	if st.LastError == "" {
		st.LastError = m.lastError
	}
	return st
}

// Running reports whether a session is active.
func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == types.StateRunning
}

func (m *Monitor) setIdle(lastError string) {
	m.mu.Lock()
	m.state = types.StateIdle
	m.session = nil
	m.cancel = nil
	m.done = nil
	m.lastError = lastError
	m.status = types.MonitorStatus{State: types.StateIdle, LastError: lastError}
	m.mu.Unlock()
}

func (m *Monitor) logEvent(e *eventlog.Event) {
	if m.deps.Events != nil {
		m.deps.Events.Log(e)
	}
}

// inferResult is a detect result handed back to the loop goroutine.
type inferResult struct {
	res inference.Result
}

// run is the session loop. All session state is touched only here.
//
//nolint:gocritic // hugeParam: snapshot is passed by pointer
func (m *Monitor) run(ctx context.Context, cfg *config.Snapshot, sess *Session, client Inferrer, ticker Ticker, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	defer func() {
		if sess.Teardown() {
			m.deps.Player.StopAlarm()
		}
	}()

	// inFlight is owned by this loop. It is set before a request goroutine
	// starts and cleared when its result arrives, so one slot is enough.
	results := make(chan inferResult, 1)
	inFlight := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if m.tick(ctx, cfg, sess, client, inFlight, results) {
				inFlight = true
			}
		case r := <-results:
			inFlight = false
			if ctx.Err() != nil {
				return
			}
			m.handleResult(cfg, sess, r.res)
		}
	}
}

// tick samples a frame and dispatches it to the detection service. It
// reports whether a request was started.
//
//nolint:gocritic // hugeParam: snapshot is passed by pointer
func (m *Monitor) tick(ctx context.Context, cfg *config.Snapshot, sess *Session, client Inferrer, inFlight bool, results chan<- inferResult) bool {
	sess.stats.Ticks++

	jpeg, err := m.deps.Camera.Sample()
	if err != nil {
		sess.stats.SkippedNoFrame++
		if !errors.Is(err, camera.ErrNoFrame) {
			slog.Debug("frame sample failed", "error", err)
		}
		m.publish(sess)
		return false
	}

	now := m.deps.Clock.Now()
	sess.lastFrame = jpeg
	if m.deps.Clips != nil && cfg.ClipsEnabled {
		m.deps.Clips.Add(camera.Frame{Data: jpeg, At: now})
	}

	if inFlight || client.Busy() {
		sess.stats.SkippedBusy++
		m.publish(sess)
		return false
	}

	go func() {
		r := inferResult{res: client.Infer(ctx, jpeg)}
		select {
		case results <- r:
		case <-ctx.Done():
		}
	}()
	return true
}

// handleResult folds one detect result into the session and performs the side effects.
//
//nolint:gocritic // hugeParam: snapshot is passed by pointer
func (m *Monitor) handleResult(cfg *config.Snapshot, sess *Session, res inference.Result) {
	if !res.OK {
		m.handleFailure(cfg, sess, res.Err)
		m.publish(sess)
		return
	}

	if sess.failureStreak >= cfg.FailureStreakLimit {
		slog.Info("detection backend recovered", "session", sess.ID, "failures", sess.failureStreak)
		if m.deps.Events != nil {
			m.deps.Events.LogInference(eventlog.InferenceRecovered, sess.ID, sess.failureStreak, "")
		}
	}
	sess.failureStreak = 0

	now := m.deps.Clock.Now()
	out := sess.Apply(now, res.Frame)
	m.perform(cfg, sess, now, &out)
	m.publish(sess)
}

//nolint:gocritic // hugeParam: snapshot is passed by pointer
func (m *Monitor) handleFailure(cfg *config.Snapshot, sess *Session, err error) {
	if errors.Is(err, inference.ErrBusy) {
		sess.stats.SkippedBusy++
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	sess.stats.InferenceFailures++
	sess.failureStreak++
	slog.Debug("detection request failed", "session", sess.ID, "error", err)

	if sess.failureStreak == cfg.FailureStreakLimit {
		slog.Warn("detection requests failing", "session", sess.ID, "failures", sess.failureStreak, "error", err)
		if m.deps.Events != nil {
			m.deps.Events.LogInference(eventlog.InferenceFailing, sess.ID, sess.failureStreak, err.Error())
		}
	}
}

// perform carries out the side effects of one applied frame.
//
//nolint:gocritic // hugeParam: snapshot is passed by pointer
func (m *Monitor) perform(cfg *config.Snapshot, sess *Session, now time.Time, out *Outcome) {
	d := out.Decision
	a := out.Assessment

	if d.PlayAlarm {
		m.deps.Player.PlayAlarm()
		slog.Warn("sustained head-nod, alarm started", "session", sess.ID, "asleep", out.Update.Signals.AsleepDuration)
		m.alert(sess, eventlog.AlarmStarted, "head_nod", &a)
		m.addTripAlert(sess, now, types.SeverityHigh, types.AlertDrowsiness, a.Confidence)
	}
	if d.StopAlarm {
		m.deps.Player.StopAlarm()
		m.alert(sess, eventlog.AlarmStopped, "head_nod_ended", &a)
	}
	if d.Warning != drowsiness.WarningNone {
		m.deps.Player.PlayWarning()
		slog.Info("warning tone", "session", sess.ID, "reason", d.Warning)
		m.alert(sess, eventlog.WarningPlayed, string(d.Warning), &a)
		alertType := types.AlertYawn
		if d.Warning == drowsiness.WarningEyesClosed {
			alertType = types.AlertEyesClosed
		}
		m.addTripAlert(sess, now, types.SeverityMedium, alertType, a.Confidence)
	}
	if d.Escalate {
		m.escalate(sess, now, d.Cause, a)
	}

	if out.RiskRose() && (a.RiskLevel == types.RiskMild || a.RiskLevel == types.RiskModerate) {
		m.addTripAlert(sess, now, types.SeverityLow, riskAlertType(a), a.Confidence)
	}
	if m.deps.Trips != nil {
		m.deps.Trips.RecordAlertness(sess.TripID, a.Confidence)
	}
	if out.RiskChanged() && m.deps.Telemetry != nil && cfg.HasMQTT() {
		mqttCfg, sessionID := cfg.MQTT, sess.ID
		go util.LogNotifyResult(func() error {
			return m.deps.Telemetry.PublishRisk(mqttCfg, sessionID, a)
		}, "Risk MQTT")
	}
}

func (m *Monitor) escalate(sess *Session, now time.Time, cause types.EscalationCause, a types.RiskAssessment) {
	esc := types.Escalation{
		SessionID:  sess.ID,
		Cause:      cause,
		Timestamp:  now,
		Assessment: a,
	}
	slog.Warn("escalating to alert", "session", sess.ID, "cause", cause, "risk", a.RiskLevel, "confidence", a.Confidence)

	var clipID string
	if m.deps.Clips != nil {
		clipID = m.deps.Clips.Capture(now)
	}
	if m.deps.Notifier != nil {
		m.deps.Notifier.HandleEscalation(&esc, notify.Evidence{Frame: sess.lastFrame, ClipID: clipID})
	}

	m.alert(sess, eventlog.Escalated, string(cause), &a)
	m.addTripAlert(sess, now, types.SeverityCritical, types.AlertDrowsiness, a.Confidence)

	if m.deps.OnEscalate != nil {
		m.deps.OnEscalate(esc)
	}
}

func (m *Monitor) alert(sess *Session, t eventlog.EventType, reason string, a *types.RiskAssessment) {
	if m.deps.Events == nil {
		return
	}
	m.deps.Events.LogAlert(t, sess.ID, &eventlog.AlertDetails{
		Reason:            reason,
		RiskLevel:         string(a.RiskLevel),
		Confidence:        a.Confidence,
		EyeClosedDuration: a.EyeClosedDuration,
	})
}

func (m *Monitor) addTripAlert(sess *Session, at time.Time, severity types.AlertSeverity, alertType types.AlertType, confidence int) {
	if m.deps.Trips == nil {
		return
	}
	if _, err := m.deps.Trips.AddAlert(sess.TripID, at, severity, alertType, confidence); err != nil {
		slog.Debug("failed to record trip alert", "trip", sess.TripID, "error", err)
	}
}

// riskAlertType picks the alert type for a risk rise.
func riskAlertType(a types.RiskAssessment) types.AlertType {
	switch {
	case a.EyeClosedDuration > 0:
		return types.AlertEyesClosed
	case a.YawnDetected:
		return types.AlertYawn
	default:
		return types.AlertDrowsiness
	}
}

// publish copies the session view into the status and notifies listeners.
func (m *Monitor) publish(sess *Session) {
	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		return
	}
	m.status.Controller = sess.ControllerState()
	m.status.Stats = sess.Stats()
	if sess.assessment != nil {
		a := *sess.assessment
		m.status.Assessment = &a
	}
	m.mu.Unlock()

	if m.deps.OnTick != nil {
		m.deps.OnTick(m.Status())
	}
}
