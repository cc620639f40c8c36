package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event             string  `json:"event"`
	SessionID         string  `json:"session_id,omitempty"`
	Cause             string  `json:"cause,omitempty"`
	RiskLevel         string  `json:"risk_level,omitempty"`
	Confidence        int     `json:"confidence,omitempty"`
	EyeClosedDuration float64 `json:"eye_closed_duration,omitempty"`
	BlinkRate         int     `json:"blink_rate,omitempty"`
	Message           string  `json:"message,omitempty"`
	Timestamp         string  `json:"timestamp"`

	// Emergency contact, only on escalations
	ContactName  string `json:"contact_name,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
}

// SendEscalationWebhook notifies the configured webhook that the driver needs attention.
func SendEscalationWebhook(webhookURL string, esc *types.Escalation, contact types.EmergencyContact) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:             "driver_escalation",
		SessionID:         esc.SessionID,
		Cause:             string(esc.Cause),
		RiskLevel:         string(esc.Assessment.RiskLevel),
		Confidence:        esc.Assessment.Confidence,
		EyeClosedDuration: esc.Assessment.EyeClosedDuration,
		BlinkRate:         esc.Assessment.BlinkRate,
		Timestamp:         esc.Timestamp.UTC().Format(time.RFC3339),
		ContactName:       contact.Name,
		ContactPhone:      contact.Phone,
	})
}

// SendAcknowledgedWebhook notifies the webhook that the driver acknowledged the alert.
func SendAcknowledgedWebhook(webhookURL, sessionID string, after time.Duration) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "driver_acknowledged",
		SessionID: sessionID,
		Message:   "Acknowledged after " + util.FormatDuration(after),
		Timestamp: timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from " + AppName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10000 * time.Millisecond}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
