package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSPrefix starts every alert text message.
const SMSPrefix = "🚨 Smart Farming Alert: "

// SMSConfig holds Twilio credentials and numbers.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSNotifier sends alerts through the Twilio Messages API.
type SMSNotifier struct {
	from string
	to   string
	api  messageCreator
}

// NewSMSNotifier builds a Twilio REST client from cfg.
func NewSMSNotifier(cfg SMSConfig) (*SMSNotifier, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" || cfg.To == "" {
		return nil, fmt.Errorf("sms: %w", ErrNotConfigured)
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMSNotifier{from: cfg.From, to: cfg.To, api: client.Api}, nil
}

// Name implements alerting.Notifier.
func (n *SMSNotifier) Name() string { return "sms" }

// Notify implements alerting.Notifier. The Twilio client takes no context, so a
// cancelled ctx returns early while the request finishes in the background.
func (n *SMSNotifier) Notify(ctx context.Context, message string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(n.from)
	params.SetTo(n.to)
	params.SetBody(SMSPrefix + message)

	errCh := make(chan error, 1)
	go func() {
		_, err := n.api.CreateMessage(params)
		errCh <- err
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sms: %w", ctx.Err())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("sms: create message: %w", err)
		}
		return nil
	}
}
