package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

// GraphConfig is the configuration for email notifications.
type GraphConfig = types.GraphConfig

// SendTestEmail checks the mailbox and sends a test message to the
// configured recipients.
func SendTestEmail(cfg *GraphConfig) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return fmt.Errorf("create Graph client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), emailTimeout)
	defer cancel()

	if err := client.CheckMailbox(ctx); err != nil {
		return err
	}

	err = client.Send(ctx, &Mail{
		To:      ParseRecipients(cfg.Recipients),
		Subject: "[TEST] " + AppName,
		Body: fmt.Sprintf(
			"Test email from %s.\n\n"+
				"Time: %s\n\n"+
				"Microsoft Graph configuration is working correctly.",
			AppName, util.HumanTime(time.Now()),
		),
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
