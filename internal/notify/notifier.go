package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/config"
	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

// Evidence is what the monitor has at hand when an escalation fires.
type Evidence struct {
	Frame  []byte // Last camera frame (JPEG), attached to the email
	ClipID string // Event clip being saved, if any
}

// EscalationNotifier walks an escalation through three levels. Level 1 sends
// the webhook, MQTT and Zabbix events, level 2 writes the notification log and
// level 3 mails the emergency contact. An acknowledgement cancels the levels
// that have not fired yet.
type EscalationNotifier struct {
	cfg  *config.Config
	mqtt *MQTTPublisher

	// mu protects the notification state fields below
	mu sync.Mutex

	active    bool
	episode   uint64
	startedAt time.Time
	current   types.Escalation
	evidence  Evidence
	timers    []*time.Timer

	// Track which notifications have been sent for the current episode
	webhookSent bool
	mqttSent    bool
	zabbixSent  bool
	logSent     bool
	emailSent   bool

	// Cached Graph client for email notifications
	graphClient *GraphClient
}

// NewEscalationNotifier returns an EscalationNotifier configured with the given config.
func NewEscalationNotifier(cfg *config.Config, mqtt *MQTTPublisher) *EscalationNotifier {
	return &EscalationNotifier{cfg: cfg, mqtt: mqtt}
}

// InvalidateGraphClient clears the cached Graph client.
// Call this when Graph configuration changes.
func (n *EscalationNotifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *EscalationNotifier) getOrCreateGraphClient(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// HandleEscalation starts a notification episode. It returns false when an
// episode is already running; the running one keeps its schedule.
func (n *EscalationNotifier) HandleEscalation(esc *types.Escalation, ev Evidence) bool {
	cfg := n.cfg.Snapshot()

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.active {
		return false
	}
	n.active = true
	n.episode++
	n.startedAt = time.Now()
	n.current = *esc
	n.evidence = ev
	n.clearSentLocked()

	ep := n.episode
	n.timers = []*time.Timer{
		time.AfterFunc(cfg.Level1Delay, func() { n.fireLevel(ep, 1) }),
		time.AfterFunc(cfg.Level2Delay, func() { n.fireLevel(ep, 2) }),
		time.AfterFunc(cfg.Level3Delay, func() { n.fireLevel(ep, 3) }),
	}

	slog.Info("escalation notifications scheduled",
		"session", esc.SessionID, "cause", esc.Cause,
		"level1", cfg.Level1Delay, "level2", cfg.Level2Delay, "level3", cfg.Level3Delay)
	return true
}

// fireLevel sends the notifications of one level if episode ep is still pending.
func (n *EscalationNotifier) fireLevel(ep uint64, level int) {
	n.mu.Lock()
	if !n.active || n.episode != ep {
		n.mu.Unlock()
		return
	}
	esc := n.current
	ev := n.evidence
	n.mu.Unlock()

	cfg := n.cfg.Snapshot()
	slog.Warn("escalation level reached", "level", level, "session", esc.SessionID)

	switch level {
	case 1:
		n.trySend(&n.webhookSent, cfg.HasWebhook(), func() { n.sendEscalationWebhook(cfg, &esc) })
		n.trySend(&n.mqttSent, cfg.HasMQTT() && n.mqtt != nil, func() { n.publishEscalation(cfg, &esc) })
		n.trySend(&n.zabbixSent, cfg.HasZabbix(), func() { n.sendEscalationZabbix(cfg, &esc) })
	case 2:
		n.trySend(&n.logSent, cfg.HasLogPath(), func() { n.logEscalation(cfg, &esc, ev.ClipID) })
	case 3:
		n.trySend(&n.emailSent, cfg.HasGraph(), func() { n.sendEscalationEmail(cfg, &esc, ev.Frame) })
	}
}

// trySend sends a notification if the condition is met and not already sent.
func (n *EscalationNotifier) trySend(sent *bool, condition bool, sender func()) {
	n.mu.Lock()
	shouldSend := !*sent && condition
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()
	if shouldSend {
		go sender()
	}
}

// Acknowledge ends the current episode. Pending levels are cancelled and the
// channels that already fired get a follow-up. It returns false when no
// episode was running.
func (n *EscalationNotifier) Acknowledge() bool {
	cfg := n.cfg.Snapshot()

	n.mu.Lock()
	if !n.active {
		n.mu.Unlock()
		return false
	}
	n.stopTimersLocked()
	n.active = false
	sessionID := n.current.SessionID
	after := time.Since(n.startedAt)
	shouldSendWebhook := n.webhookSent
	shouldSendMQTT := n.mqttSent
	shouldSendZabbix := n.zabbixSent
	shouldSendLog := n.logSent
	n.clearSentLocked()
	n.mu.Unlock()

	if shouldSendWebhook {
		go util.LogNotifyResult(func() error { return SendAcknowledgedWebhook(cfg.WebhookURL, sessionID, after) }, "Acknowledged webhook")
	}
	if shouldSendMQTT {
		go util.LogNotifyResult(func() error { return n.mqtt.PublishAcknowledged(cfg.MQTT, sessionID) }, "Acknowledged MQTT")
	}
	if shouldSendZabbix {
		go util.LogNotifyResult(func() error { return SendAcknowledgedZabbix(cfg.Zabbix, sessionID, after) }, "Acknowledged Zabbix")
	}
	if shouldSendLog {
		go util.LogNotifyResult(func() error { return LogAcknowledged(cfg.LogPath, sessionID) }, "Acknowledged log")
	}
	return true
}

// Active reports whether an escalation episode is running.
func (n *EscalationNotifier) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// Reset cancels pending levels and clears the notification state.
func (n *EscalationNotifier) Reset() {
	n.mu.Lock()
	n.stopTimersLocked()
	n.active = false
	n.clearSentLocked()
	n.mu.Unlock()
}

func (n *EscalationNotifier) stopTimersLocked() {
	for _, t := range n.timers {
		t.Stop()
	}
	n.timers = nil
}

func (n *EscalationNotifier) clearSentLocked() {
	n.webhookSent = false
	n.mqttSent = false
	n.zabbixSent = false
	n.logSent = false
	n.emailSent = false
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *EscalationNotifier) sendEscalationWebhook(cfg config.Snapshot, esc *types.Escalation) {
	util.LogNotifyResult(
		func() error { return SendEscalationWebhook(cfg.WebhookURL, esc, cfg.EmergencyContact) },
		"Escalation webhook",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *EscalationNotifier) publishEscalation(cfg config.Snapshot, esc *types.Escalation) {
	util.LogNotifyResult(
		func() error { return n.mqtt.PublishEscalation(cfg.MQTT, esc) },
		"Escalation MQTT",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *EscalationNotifier) sendEscalationZabbix(cfg config.Snapshot, esc *types.Escalation) {
	util.LogNotifyResult(
		func() error { return SendEscalationZabbix(cfg.Zabbix, esc) },
		"Escalation Zabbix",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *EscalationNotifier) logEscalation(cfg config.Snapshot, esc *types.Escalation, clipID string) {
	util.LogNotifyResult(
		func() error { return LogEscalation(cfg.LogPath, esc, clipID) },
		"Escalation log",
	)
}

// BuildGraphConfig creates a GraphConfig from the config snapshot. The
// emergency contact is added to the recipients.
//
//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func BuildGraphConfig(cfg config.Snapshot) *GraphConfig {
	return &GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.RecipientsWithContact(),
	}
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *EscalationNotifier) sendEscalationEmail(cfg config.Snapshot, esc *types.Escalation, frame []byte) {
	graphCfg := BuildGraphConfig(cfg)
	util.LogNotifyResult(
		func() error { return n.mailEscalation(graphCfg, cfg.EmergencyContact, esc, frame) },
		"Escalation email",
	)
}

// mailEscalation sends the escalation mail through the cached Graph client.
func (n *EscalationNotifier) mailEscalation(cfg *GraphConfig, contact types.EmergencyContact, esc *types.Escalation, frame []byte) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	ctx, cancel := context.WithTimeout(context.Background(), emailTimeout)
	defer cancel()
	if err := client.SendEscalationMail(ctx, recipients, esc, contact, frame); err != nil {
		return util.WrapError("send email via Graph", err)
	}
	return nil
}
