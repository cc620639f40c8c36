package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

// Endpoints are variables so tests can point them at a local server.
var (
	graphBaseURL     = "https://graph.microsoft.com/v1.0"
	tokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token" //nolint:gosec // URL template, not a credential

	initialRetryWait = 1 * time.Second
)

const (
	graphScope = "https://graph.microsoft.com/.default"

	sendAttempts = 4
	maxRetryWait = 30 * time.Second
	httpTimeout  = 30 * time.Second

	// emailTimeout bounds one escalation mail including its retries.
	emailTimeout = 2 * time.Minute
)

var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// errRetryable marks a send failure worth another attempt.
var errRetryable = errors.New("retryable")

// Mail is one message delivered through Microsoft Graph.
type Mail struct {
	To         []string
	Subject    string
	Body       string
	Attachment *EmailAttachment
}

// EmailAttachment is a file attached to a Mail.
type EmailAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// GraphClient sends mail from a shared mailbox with app-only credentials.
type GraphClient struct {
	mailbox string
	http    *http.Client
}

// NewGraphClient returns a client for the mailbox in cfg. Tokens are fetched
// and refreshed on demand.
func NewGraphClient(cfg *types.GraphConfig) (*GraphClient, error) {
	if err := checkCredentials(cfg, false); err != nil {
		return nil, err
	}
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("from address (shared mailbox) is required")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLTemplate, cfg.TenantID),
		Scopes:       []string{graphScope},
	}
	base := &http.Client{Timeout: httpTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &GraphClient{mailbox: cfg.FromAddress, http: creds.Client(ctx)}, nil
}

// SendEscalationMail tells the recipients that the driver did not respond,
// with the last camera frame attached when there is one.
func (c *GraphClient) SendEscalationMail(ctx context.Context, recipients []string, esc *types.Escalation, contact types.EmergencyContact, frame []byte) error {
	m := escalationMail(esc, contact, frame)
	m.To = recipients
	return c.Send(ctx, m)
}

// escalationMail builds the subject, body and attachment of an escalation.
func escalationMail(esc *types.Escalation, contact types.EmergencyContact, frame []byte) *Mail {
	m := &Mail{
		Subject: "[ALERT] Driver unresponsive - " + AppName,
		Body: fmt.Sprintf(
			"The driver did not respond to a drowsiness alarm.\n\n"+
				"Cause:      %s\n"+
				"Risk level: %s\n"+
				"Alertness:  %d%%\n"+
				"Eyes shut:  %.1fs\n"+
				"Session:    %s\n"+
				"Time:       %s",
			esc.Cause, esc.Assessment.RiskLevel, esc.Assessment.Confidence,
			esc.Assessment.EyeClosedDuration, esc.SessionID, util.HumanTime(esc.Timestamp),
		),
	}
	if contact.Name != "" || contact.Phone != "" {
		m.Body += fmt.Sprintf("\n\nEmergency contact: %s %s", contact.Name, contact.Phone)
	}
	if len(frame) > 0 {
		m.Attachment = &EmailAttachment{
			Filename:    "frame-" + esc.Timestamp.UTC().Format("20060102-150405") + ".jpg",
			ContentType: "image/jpeg",
			Data:        frame,
		}
	}
	return m
}

// Send delivers m, retrying rate limits and server errors with backoff.
func (c *GraphClient) Send(ctx context.Context, m *Mail) error {
	payload, err := sendMailPayload(m)
	if err != nil {
		return err
	}

	apiURL := fmt.Sprintf("%s/users/%s/sendMail", graphBaseURL, url.PathEscape(c.mailbox))
	backoff := util.NewBackoff(initialRetryWait, maxRetryWait)

	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		wait, err := c.post(ctx, apiURL, payload)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errRetryable) {
			return err
		}
		lastErr = err
		if attempt == sendAttempts {
			break
		}

		select {
		case <-time.After(max(wait, backoff.Next())):
		case <-ctx.Done():
			return errors.Join(ctx.Err(), lastErr)
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", sendAttempts, lastErr)
}

// post makes one sendMail request. For a rate limit it also returns the
// wait the server asked for.
func (c *GraphClient) post(ctx context.Context, apiURL string, payload []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return 0, util.WrapError("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: send request: %w", errRetryable, err)
	}
	defer util.SafeCloseFunc(resp.Body, "graph response")()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusAccepted, resp.StatusCode == http.StatusNoContent:
		return 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return retryAfter(resp.Header), fmt.Errorf("%w: graph API rate limited: %s", errRetryable, body)
	case resp.StatusCode >= http.StatusInternalServerError:
		return 0, fmt.Errorf("%w: graph API returned %d: %s", errRetryable, resp.StatusCode, body)
	default:
		return 0, fmt.Errorf("graph API error %d: %s", resp.StatusCode, body)
	}
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	seconds, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}
	return min(time.Duration(seconds)*time.Second, maxRetryWait)
}

type graphSendMail struct {
	Message graphMessage `json:"message"`
}

type graphMessage struct {
	Subject      string            `json:"subject"`
	Body         graphBody         `json:"body"`
	ToRecipients []graphRecipient  `json:"toRecipients"`
	Attachments  []graphAttachment `json:"attachments,omitempty"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphAttachment struct {
	OdataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// sendMailPayload encodes m as a Graph sendMail request body.
func sendMailPayload(m *Mail) ([]byte, error) {
	msg := graphMessage{
		Subject: m.Subject,
		Body:    graphBody{ContentType: "Text", Content: m.Body},
	}
	for _, addr := range m.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			var r graphRecipient
			r.EmailAddress.Address = addr
			msg.ToRecipients = append(msg.ToRecipients, r)
		}
	}
	if len(msg.ToRecipients) == 0 {
		return nil, fmt.Errorf("no recipients specified")
	}
	if a := m.Attachment; a != nil && len(a.Data) > 0 {
		msg.Attachments = []graphAttachment{{
			OdataType:    "#microsoft.graph.fileAttachment",
			Name:         a.Filename,
			ContentType:  a.ContentType,
			ContentBytes: base64.StdEncoding.EncodeToString(a.Data),
		}}
	}

	data, err := json.Marshal(graphSendMail{Message: msg})
	if err != nil {
		return nil, util.WrapError("encode mail", err)
	}
	return data, nil
}

// CheckMailbox fetches a token and looks up the mailbox. A 403 still counts
// as success: Mail.Send does not grant User.Read.
func (c *GraphClient) CheckMailbox(ctx context.Context) error {
	apiURL := fmt.Sprintf("%s/users/%s", graphBaseURL, url.PathEscape(c.mailbox))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return util.WrapError("create mailbox request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return fmt.Errorf("authentication failed: %w", err)
		}
		return util.WrapError("reach Graph", err)
	}
	defer util.SafeCloseFunc(resp.Body, "graph response")()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusForbidden:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("mailbox %s not found", c.mailbox)
	case http.StatusUnauthorized:
		return fmt.Errorf("authentication failed: invalid credentials")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mailbox check returned %d: %s", resp.StatusCode, body)
	}
}

// checkCredentials reports missing app credentials. With strictIDs the
// tenant and client IDs must also be GUIDs.
func checkCredentials(cfg *types.GraphConfig, strictIDs bool) error {
	ids := []struct{ name, value string }{
		{"tenant ID", cfg.TenantID},
		{"client ID", cfg.ClientID},
	}
	for _, id := range ids {
		if id.value == "" {
			return fmt.Errorf("%s is required", id.name)
		}
		if strictIDs && !guidPattern.MatchString(id.value) {
			return fmt.Errorf("%s must be a GUID", id.name)
		}
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	return nil
}

// validateConfig checks cfg before a test mail is sent.
func validateConfig(cfg *types.GraphConfig) error {
	if err := checkCredentials(cfg, true); err != nil {
		return err
	}
	if cfg.FromAddress == "" {
		return fmt.Errorf("from address (shared mailbox) is required")
	}
	if cfg.Recipients == "" {
		return fmt.Errorf("recipients are required")
	}
	return nil
}

// IsConfigured reports whether mail can be sent with cfg.
func IsConfigured(cfg *types.GraphConfig) bool {
	return util.IsConfigured(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, cfg.FromAddress, cfg.Recipients)
}

// ParseRecipients splits a comma-separated recipient list.
func ParseRecipients(recipients string) []string {
	var result []string
	for r := range strings.SplitSeq(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			result = append(result, r)
		}
	}
	return result
}
