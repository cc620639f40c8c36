package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/camera"
	"github.com/oszuidwest/drowsiguard/internal/config"
	"github.com/oszuidwest/drowsiguard/internal/eventlog"
	"github.com/oszuidwest/drowsiguard/internal/inference"
	"github.com/oszuidwest/drowsiguard/internal/notify"
	"github.com/oszuidwest/drowsiguard/internal/trips"
	"github.com/oszuidwest/drowsiguard/internal/types"
)

const tick = 900 * time.Millisecond

// --- Test doubles ---

type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.stopped.Store(true) }

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves time forward and fires every live ticker once.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*manualTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		if t.stopped.Load() {
			continue
		}
		select {
		case t.ch <- now:
		default:
		}
	}
}

type fakeCamera struct {
	mu      sync.Mutex
	err     error
	started int
	stopped int
}

func (f *fakeCamera) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return nil
}

func (f *fakeCamera) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeCamera) Sample() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

type fakeInferrer struct {
	mu        sync.Mutex
	next      types.DetectionFrame
	err       error
	healthErr error
	busy      atomic.Bool
	calls     atomic.Int32

	// When gate is set, Infer signals entered and then waits for gate.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeInferrer) set(frame types.DetectionFrame, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next, f.err = frame, err
}

func (f *fakeInferrer) Infer(ctx context.Context, _ []byte) inference.Result {
	f.calls.Add(1)
	if f.gate != nil {
		f.entered <- struct{}{}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return inference.Result{Err: ctx.Err()}
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return inference.Result{Err: f.err}
	}
	return inference.Result{OK: true, Frame: f.next}
}

func (f *fakeInferrer) Health(context.Context) error { return f.healthErr }
func (f *fakeInferrer) Busy() bool                   { return f.busy.Load() }

type recordingPlayer struct {
	alarms, stops, warnings atomic.Int32
}

func (p *recordingPlayer) PlayAlarm()   { p.alarms.Add(1) }
func (p *recordingPlayer) StopAlarm()   { p.stops.Add(1) }
func (p *recordingPlayer) PlayWarning() { p.warnings.Add(1) }

type fakeNotifier struct {
	mu          sync.Mutex
	escalations []types.Escalation
	evidence    []notify.Evidence
	acks        int
	resets      int
}

func (n *fakeNotifier) HandleEscalation(esc *types.Escalation, ev notify.Evidence) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escalations = append(n.escalations, *esc)
	n.evidence = append(n.evidence, ev)
	return true
}

func (n *fakeNotifier) Acknowledge() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.acks++
	return true
}

func (n *fakeNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets++
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.escalations)
}

// --- Harness ---

type harness struct {
	t        *testing.T
	mon      *Monitor
	clock    *manualClock
	cam      *fakeCamera
	infer    *fakeInferrer
	player   *recordingPlayer
	notifier *fakeNotifier
	trips    *trips.Store
	events   *eventlog.Logger
	statuses chan types.MonitorStatus
	escalate chan types.Escalation
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	h := &harness{
		t:        t,
		clock:    newManualClock(),
		cam:      &fakeCamera{},
		infer:    &fakeInferrer{},
		player:   &recordingPlayer{},
		notifier: &fakeNotifier{},
		trips:    trips.NewStore(0),
		events:   eventlog.NewLogger(100),
		statuses: make(chan types.MonitorStatus, 64),
		escalate: make(chan types.Escalation, 8),
	}
	h.mon = New(Deps{
		Config:      cfg,
		Camera:      h.cam,
		Player:      h.player,
		Notifier:    h.notifier,
		Trips:       h.trips,
		Events:      h.events,
		Clock:       h.clock,
		NewInferrer: func(*config.Snapshot) Inferrer { return h.infer },
		OnTick:      func(st types.MonitorStatus) { h.statuses <- st },
		OnEscalate:  func(e types.Escalation) { h.escalate <- e },
	})
	t.Cleanup(func() { _ = h.mon.Stop() })
	return h
}

func (h *harness) start() {
	h.t.Helper()
	if err := h.mon.Start(context.Background()); err != nil {
		h.t.Fatalf("Start() error = %v", err)
	}
}

// step runs one tick with the given detection and waits for it to be applied.
func (h *harness) step(frame types.DetectionFrame) types.MonitorStatus {
	h.t.Helper()
	h.infer.set(frame, nil)
	return h.advance()
}

func (h *harness) advance() types.MonitorStatus {
	h.t.Helper()
	h.clock.Advance(tick)
	select {
	case st := <-h.statuses:
		return st
	case <-time.After(2 * time.Second):
		h.t.Fatal("tick was not processed")
		return types.MonitorStatus{}
	}
}

func (h *harness) eventTypes() []eventlog.EventType {
	events, _ := h.events.ReadLast(100, 0, eventlog.FilterAll)
	out := make([]eventlog.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func hasEvent(list []eventlog.EventType, want eventlog.EventType) bool {
	for _, t := range list {
		if t == want {
			return true
		}
	}
	return false
}

var (
	nod    = types.DetectionFrame{HeadNod: true}
	closed = types.DetectionFrame{EyesClosed: true}
	open   = types.DetectionFrame{Awake: true}
)

// --- Tests ---

func TestStart_BackendNotReady(t *testing.T) {
	h := newHarness(t)
	h.infer.healthErr = errors.New("connection refused")

	err := h.mon.Start(context.Background())
	if !errors.Is(err, ErrBackendNotReady) {
		t.Fatalf("Start() error = %v, want ErrBackendNotReady", err)
	}
	st := h.mon.Status()
	if st.State != types.StateIdle || st.LastError == "" {
		t.Errorf("Status() = %+v, want idle with error", st)
	}
	if !hasEvent(h.eventTypes(), eventlog.BackendNotReady) {
		t.Error("backend_not_ready event not logged")
	}
	if h.cam.started != 0 {
		t.Error("camera started although the backend was not ready")
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	h := newHarness(t)
	h.start()

	if err := h.mon.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	st := h.step(open)
	if st.State != types.StateRunning || st.Assessment == nil || st.Assessment.RiskLevel != types.RiskSafe {
		t.Errorf("status after safe tick = %+v", st)
	}

	if err := h.mon.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := h.mon.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop() error = %v, want ErrNotRunning", err)
	}
	if err := h.mon.Acknowledge(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Acknowledge() after Stop error = %v, want ErrNotRunning", err)
	}

	list := h.trips.List()
	if len(list) != 1 || list[0].EndTime == nil || list[0].AverageAlertness != 94 {
		t.Errorf("trips = %+v", list)
	}
	if h.cam.stopped != 1 {
		t.Errorf("camera stopped %d times, want 1", h.cam.stopped)
	}
}

func TestHeadNod_AlarmThenEscalate(t *testing.T) {
	h := newHarness(t)
	h.start()

	h.step(nod)
	h.step(nod)
	if h.player.alarms.Load() != 0 {
		t.Fatal("alarm before 1.5 s of head-nod")
	}
	st := h.step(nod) // 1.8 s into the nod
	if h.player.alarms.Load() != 1 || st.Controller != types.ControllerAlarming {
		t.Fatalf("alarms = %d, controller = %s", h.player.alarms.Load(), st.Controller)
	}
	h.step(nod)
	if h.player.alarms.Load() != 1 {
		t.Error("alarm restarted within one episode")
	}

	st = h.step(open)
	if h.player.stops.Load() != 1 {
		t.Errorf("StopAlarm calls = %d, want 1", h.player.stops.Load())
	}
	if st.Controller != types.ControllerEscalated || st.Stats.Escalations != 1 || st.Stats.Alarms != 1 {
		t.Errorf("status = %+v", st)
	}

	select {
	case esc := <-h.escalate:
		if esc.Cause != types.CauseHeadNod {
			t.Errorf("escalation cause = %s", esc.Cause)
		}
	default:
		t.Fatal("OnEscalate not called")
	}
	if h.notifier.count() != 1 || len(h.notifier.evidence[0].Frame) == 0 {
		t.Errorf("notifier escalations = %d", h.notifier.count())
	}

	trip, err := h.trips.Get(st.TripID)
	if err != nil {
		t.Fatal(err)
	}
	var severities []types.AlertSeverity
	for _, a := range trip.Alerts {
		severities = append(severities, a.Severity)
	}
	if !containsSeverity(severities, types.SeverityHigh) || !containsSeverity(severities, types.SeverityCritical) {
		t.Errorf("trip alert severities = %v", severities)
	}
}

func containsSeverity(list []types.AlertSeverity, want types.AlertSeverity) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestSustainedClosure_EscalatesOnce(t *testing.T) {
	h := newHarness(t)
	h.start()

	var st types.MonitorStatus
	// Severe from 2.7 s of closure; escalation 1.5 s later.
	for range 5 {
		st = h.step(closed)
	}
	if h.notifier.count() != 0 {
		t.Fatalf("escalated after %v of severe risk", st.Assessment.EyeClosedDuration)
	}
	st = h.step(closed)
	if h.notifier.count() != 1 || h.notifier.escalations[0].Cause != types.CauseSevere {
		t.Fatalf("escalations = %+v", h.notifier.escalations)
	}
	if st.Assessment.RiskLevel != types.RiskSevere || st.Assessment.Confidence != 40 {
		t.Errorf("assessment = %+v", st.Assessment)
	}

	for range 5 {
		h.step(closed)
	}
	if h.notifier.count() != 1 {
		t.Errorf("escalations = %d, want exactly 1", h.notifier.count())
	}
}

func TestInferenceFailures_SkipAndRecover(t *testing.T) {
	h := newHarness(t)
	h.start()

	h.infer.set(types.DetectionFrame{}, errors.New("status 500"))
	var st types.MonitorStatus
	for range 3 {
		st = h.advance()
	}
	if st.Stats.InferenceFailures != 3 || st.Assessment != nil {
		t.Errorf("status after failures = %+v", st)
	}
	if !hasEvent(h.eventTypes(), eventlog.InferenceFailing) {
		t.Error("inference_failing not logged")
	}

	st = h.step(open)
	if st.Assessment == nil {
		t.Fatal("no assessment after recovery")
	}
	if !hasEvent(h.eventTypes(), eventlog.InferenceRecovered) {
		t.Error("inference_recovered not logged")
	}
}

func TestTick_SkipsWithoutFrameOrWhileBusy(t *testing.T) {
	h := newHarness(t)
	h.start()

	h.cam.mu.Lock()
	h.cam.err = camera.ErrNoFrame
	h.cam.mu.Unlock()
	st := h.advance()
	if st.Stats.SkippedNoFrame != 1 || st.Assessment != nil {
		t.Errorf("status = %+v", st)
	}

	h.cam.mu.Lock()
	h.cam.err = nil
	h.cam.mu.Unlock()
	h.infer.busy.Store(true)
	st = h.advance()
	if st.Stats.SkippedBusy != 1 || st.Stats.Ticks != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestTick_OneRequestInFlight(t *testing.T) {
	h := newHarness(t)
	h.infer.gate = make(chan struct{})
	h.infer.entered = make(chan struct{}, 4)
	h.start()

	h.clock.Advance(tick)
	select {
	case <-h.infer.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first request not started")
	}

	// The fake never reports Busy, so only the loop knows a request is running.
	for i := int64(1); i <= 2; i++ {
		st := h.advance()
		if st.Stats.SkippedBusy != i {
			t.Errorf("tick %d: SkippedBusy = %d, want %d", i+1, st.Stats.SkippedBusy, i)
		}
	}

	h.infer.gate <- struct{}{}
	select {
	case st := <-h.statuses:
		if st.Stats.Ticks != 3 || st.Assessment == nil {
			t.Errorf("status after result = %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("result was not applied")
	}
	if got := h.infer.calls.Load(); got != 1 {
		t.Errorf("Infer calls = %d, want 1", got)
	}

	// The slot is free again once the result is handled.
	h.clock.Advance(tick)
	select {
	case <-h.infer.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("next request not started")
	}
	if err := h.mon.Stop(); err != nil {
		t.Errorf("Stop() with a request in flight: %v", err)
	}
}

func TestStop_DuringAlarmSilencesEverything(t *testing.T) {
	h := newHarness(t)
	h.start()

	for range 3 {
		h.step(nod)
	}
	if h.player.alarms.Load() != 1 {
		t.Fatal("alarm did not start")
	}

	if err := h.mon.Stop(); err != nil {
		t.Fatal(err)
	}
	if h.player.stops.Load() == 0 {
		t.Error("alarm not stopped on teardown")
	}
	h.clock.Advance(tick)
	time.Sleep(50 * time.Millisecond)
	if h.notifier.count() != 0 {
		t.Error("escalation after teardown")
	}
	if st := h.mon.Status(); st.State != types.StateIdle {
		t.Errorf("state = %s, want idle", st.State)
	}
}

func TestAcknowledge(t *testing.T) {
	h := newHarness(t)
	h.start()

	if err := h.mon.Acknowledge(); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	if h.notifier.acks != 1 || h.player.stops.Load() != 1 {
		t.Errorf("acks = %d, stops = %d", h.notifier.acks, h.player.stops.Load())
	}
	if !hasEvent(h.eventTypes(), eventlog.Acknowledged) {
		t.Error("acknowledged not logged")
	}
}

func TestOutcome_RiskRose(t *testing.T) {
	tests := []struct {
		prev, cur types.RiskLevel
		want      bool
	}{
		{"", types.RiskSafe, false},
		{"", types.RiskMild, true},
		{types.RiskSafe, types.RiskModerate, true},
		{types.RiskModerate, types.RiskMild, false},
		{types.RiskMild, types.RiskMild, false},
	}
	for _, tt := range tests {
		o := Outcome{PreviousRisk: tt.prev, Assessment: types.RiskAssessment{RiskLevel: tt.cur}}
		if got := o.RiskRose(); got != tt.want {
			t.Errorf("RiskRose(%q -> %q) = %v, want %v", tt.prev, tt.cur, got, tt.want)
		}
	}
}
