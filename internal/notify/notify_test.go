package notify

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/config"
	"github.com/oszuidwest/drowsiguard/internal/types"
)

func testEscalation() *types.Escalation {
	return &types.Escalation{
		SessionID: "session-1",
		Cause:     types.CauseSevere,
		Timestamp: time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC),
		Assessment: types.RiskAssessment{
			EyeClosedDuration: 2.1,
			Confidence:        40,
			RiskLevel:         types.RiskSevere,
		},
	}
}

func applySettings(t *testing.T, cfg *config.Config, modify func(s *config.Settings)) {
	t.Helper()
	s := cfg.Settings()
	modify(&s)
	if err := cfg.ApplySettings(s); err != nil {
		t.Fatalf("ApplySettings() error = %v", err)
	}
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

// webhookRecorder collects webhook payloads.
type webhookRecorder struct {
	mu       sync.Mutex
	payloads []WebhookPayload
}

func (r *webhookRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var p WebhookPayload
		if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
			t.Errorf("decode webhook body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		r.mu.Lock()
		r.payloads = append(r.payloads, p)
		r.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (r *webhookRecorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.payloads {
		out = append(out, p.Event)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func readLogEvents(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var events []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue // line still being written
		}
		events = append(events, e.Event)
	}
	return events
}

func TestSendEscalationWebhook(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	contact := types.EmergencyContact{Name: "Sam", Phone: "+31 6 1234"}
	if err := SendEscalationWebhook(srv.URL, testEscalation(), contact); err != nil {
		t.Fatalf("SendEscalationWebhook() error = %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(rec.payloads))
	}
	p := rec.payloads[0]
	if p.Event != "driver_escalation" || p.Cause != "severe_risk" || p.RiskLevel != "severe" {
		t.Errorf("payload = %+v", p)
	}
	if p.ContactName != "Sam" || p.ContactPhone != "+31 6 1234" {
		t.Errorf("contact = %q %q", p.ContactName, p.ContactPhone)
	}
	if p.Timestamp != "2026-03-01T08:30:00Z" {
		t.Errorf("Timestamp = %q", p.Timestamp)
	}
}

func TestSendWebhook_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := SendTestWebhook(srv.URL); err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("SendTestWebhook() error = %v, want status 502", err)
	}
	if err := SendTestWebhook(""); err == nil {
		t.Error("SendTestWebhook(\"\") should fail")
	}
	if err := SendEscalationWebhook("", testEscalation(), types.EmergencyContact{}); err != nil {
		t.Errorf("unconfigured webhook should be skipped, got %v", err)
	}
}

func TestLogEscalation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "escalations.jsonl")

	if err := LogEscalation(path, testEscalation(), "clip-1"); err != nil {
		t.Fatalf("LogEscalation() error = %v", err)
	}
	if err := LogAcknowledged(path, "session-1"); err != nil {
		t.Fatalf("LogAcknowledged() error = %v", err)
	}

	got := readLogEvents(t, path)
	if len(got) != 2 || got[0] != "escalation" || got[1] != "acknowledged" {
		t.Errorf("events = %v", got)
	}
}

// fakeZabbix accepts one trapper request and replies with info.
func fakeZabbix(t *testing.T, info string) (port int, values <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	ch := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header := make([]byte, zabbixHeaderSize)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		body := make([]byte, binary.LittleEndian.Uint64(header[5:]))
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		var req zabbixRequest
		if err := json.Unmarshal(body, &req); err == nil && len(req.Data) == 1 {
			ch <- req.Data[0].Value
		}

		reply, _ := json.Marshal(zabbixResponse{Response: "success", Info: info})
		out := make([]byte, zabbixHeaderSize)
		copy(out, zabbixMagic[:])
		binary.LittleEndian.PutUint64(out[5:], uint64(len(reply)))
		_, _ = conn.Write(append(out, reply...))
	}()

	return ln.Addr().(*net.TCPAddr).Port, ch
}

func TestReadLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escalations.jsonl")

	entries, err := ReadLog(path, 10)
	if err != nil {
		t.Fatalf("ReadLog() on missing file error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("ReadLog() on missing file = %d entries, want 0", len(entries))
	}

	if err := LogEscalation(path, testEscalation(), "clip-1"); err != nil {
		t.Fatalf("LogEscalation() error = %v", err)
	}
	if err := LogAcknowledged(path, "session-1"); err != nil {
		t.Fatalf("LogAcknowledged() error = %v", err)
	}

	entries, err = ReadLog(path, 10)
	if err != nil {
		t.Fatalf("ReadLog() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ReadLog() = %d entries, want 2", len(entries))
	}
	if entries[0].Event != "acknowledged" || entries[1].Event != "escalation" {
		t.Errorf("ReadLog() order = %q, %q, want newest first", entries[0].Event, entries[1].Event)
	}

	entries, err = ReadLog(path, 1)
	if err != nil {
		t.Fatalf("ReadLog(max 1) error = %v", err)
	}
	if len(entries) != 1 || entries[0].Event != "acknowledged" {
		t.Errorf("ReadLog(max 1) = %+v, want only the acknowledged entry", entries)
	}
}

func TestSendEscalationZabbix(t *testing.T) {
	port, values := fakeZabbix(t, "processed: 1; failed: 0; total: 1; seconds spent: 0.000040")
	z := types.ZabbixConfig{Server: "127.0.0.1", Port: port, Host: "truck-7", Key: "driver.alert"}

	if err := SendEscalationZabbix(z, testEscalation()); err != nil {
		t.Fatalf("SendEscalationZabbix() error = %v", err)
	}
	v := <-values
	if !strings.HasPrefix(v, "event=ESCALATION session=session-1 cause=severe_risk") {
		t.Errorf("value = %q", v)
	}
}

func TestSendZabbix_NothingProcessed(t *testing.T) {
	port, _ := fakeZabbix(t, "processed: 0; failed: 0; total: 1; seconds spent: 0.000040")
	z := types.ZabbixConfig{Server: "127.0.0.1", Port: port, Host: "truck-7", Key: "driver.alert"}

	if err := SendTestZabbix(z); err == nil {
		t.Error("SendTestZabbix() should fail when Zabbix processes no items")
	}
}

func TestTopic(t *testing.T) {
	if got := Topic("fleet/truck-7", TopicEscalation); got != "fleet/truck-7/escalation" {
		t.Errorf("Topic() = %q", got)
	}
	if got := Topic("", TopicRisk); got != "drowsiguard/risk" {
		t.Errorf("Topic() with empty prefix = %q", got)
	}
}

func TestMQTT_UnconfiguredIsSkipped(t *testing.T) {
	p := NewMQTTPublisher()
	if err := p.PublishEscalation(types.MQTTConfig{}, testEscalation()); err != nil {
		t.Errorf("PublishEscalation() without broker = %v, want nil", err)
	}
	if err := p.SendTestMQTT(types.MQTTConfig{}); err == nil {
		t.Error("SendTestMQTT() without broker should fail")
	}
}

func TestEscalationNotifier_LevelsAndAcknowledge(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	cfg := newTestConfig(t)
	logPath := filepath.Join(t.TempDir(), "escalations.jsonl")
	applySettings(t, cfg, func(s *config.Settings) {
		s.Notifications.Webhook.URL = srv.URL
		s.Notifications.Log.Path = logPath
		s.Alerts.Escalation = config.EscalationConfig{Level1DelayS: 0, Level2DelayS: 0, Level3DelayS: 60}
	})

	n := NewEscalationNotifier(cfg, NewMQTTPublisher())
	if !n.HandleEscalation(testEscalation(), Evidence{ClipID: "clip-1"}) {
		t.Fatal("first HandleEscalation() = false")
	}
	if n.HandleEscalation(testEscalation(), Evidence{}) {
		t.Error("HandleEscalation() during a running episode = true")
	}

	waitFor(t, "escalation webhook", func() bool { return len(rec.events()) == 1 })
	waitFor(t, "escalation log", func() bool { return len(readLogEvents(t, logPath)) == 1 })

	if !n.Acknowledge() {
		t.Fatal("Acknowledge() = false")
	}
	if n.Active() {
		t.Error("Active() after Acknowledge() = true")
	}
	if n.Acknowledge() {
		t.Error("second Acknowledge() = true")
	}

	waitFor(t, "acknowledged webhook", func() bool { return len(rec.events()) == 2 })
	if got := rec.events(); got[1] != "driver_acknowledged" {
		t.Errorf("events = %v", got)
	}
	waitFor(t, "acknowledged log", func() bool { return len(readLogEvents(t, logPath)) == 2 })

	// A new episode sends again.
	if !n.HandleEscalation(testEscalation(), Evidence{}) {
		t.Fatal("HandleEscalation() after acknowledge = false")
	}
	waitFor(t, "second escalation webhook", func() bool { return len(rec.events()) == 3 })
	n.Reset()
}

func TestEscalationNotifier_AcknowledgeCancelsPendingLevels(t *testing.T) {
	cfg := newTestConfig(t)
	logPath := filepath.Join(t.TempDir(), "escalations.jsonl")
	applySettings(t, cfg, func(s *config.Settings) {
		s.Notifications.Log.Path = logPath
		s.Alerts.Escalation = config.EscalationConfig{Level1DelayS: 0, Level2DelayS: 1, Level3DelayS: 1}
	})

	n := NewEscalationNotifier(cfg, nil)
	n.HandleEscalation(testEscalation(), Evidence{})
	n.Acknowledge()

	time.Sleep(1500 * time.Millisecond)
	if got := readLogEvents(t, logPath); len(got) != 0 {
		t.Errorf("log written after acknowledge: %v", got)
	}
}

func TestEscalationNotifier_EmailToContact(t *testing.T) {
	frame := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}

	type mail struct {
		to         []string
		attachment []byte
	}
	mails := make(chan mail, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/token"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`)
		case strings.HasSuffix(r.URL.Path, "/sendMail"):
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("Authorization = %q", got)
			}
			var req graphSendMail
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode mail: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			m := mail{}
			for _, rcpt := range req.Message.ToRecipients {
				m.to = append(m.to, rcpt.EmailAddress.Address)
			}
			if len(req.Message.Attachments) == 1 {
				m.attachment, _ = base64.StdEncoding.DecodeString(req.Message.Attachments[0].ContentBytes)
			}
			mails <- m
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	oldBase, oldToken := graphBaseURL, tokenURLTemplate
	graphBaseURL, tokenURLTemplate = srv.URL, srv.URL+"/%s/token"
	t.Cleanup(func() { graphBaseURL, tokenURLTemplate = oldBase, oldToken })

	cfg := newTestConfig(t)
	applySettings(t, cfg, func(s *config.Settings) {
		s.Notifications.Email = config.EmailConfig{
			TenantID:     "tenant",
			ClientID:     "client",
			ClientSecret: "secret",
			FromAddress:  "alerts@example.com",
		}
		s.Alerts.EmergencyContact = types.EmergencyContact{Name: "Sam", Email: "sam@example.com"}
		s.Alerts.Escalation = config.EscalationConfig{}
	})

	n := NewEscalationNotifier(cfg, nil)
	n.HandleEscalation(testEscalation(), Evidence{Frame: frame})
	defer n.Reset()

	select {
	case m := <-mails:
		if len(m.to) != 1 || m.to[0] != "sam@example.com" {
			t.Errorf("recipients = %v", m.to)
		}
		if string(m.attachment) != string(frame) {
			t.Errorf("attachment = %x, want %x", m.attachment, frame)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no email sent")
	}
}

func TestParseRecipients(t *testing.T) {
	got := ParseRecipients(" a@example.com, ,b@example.com ")
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Errorf("ParseRecipients() = %v", got)
	}
}
