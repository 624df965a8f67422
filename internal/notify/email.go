// Package notify implements the alert delivery channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
)

// EmailSubject is the subject line of every alert email.
const EmailSubject = "🚨 Smart Farming Alert"

// ErrNotConfigured is returned by constructors when a channel lacks credentials.
var ErrNotConfigured = errors.New("channel not configured")

// EmailConfig holds SMTP submission settings. Port 465 implies implicit TLS.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailNotifier sends alerts as plain-text mail over TLS SMTP.
type EmailNotifier struct {
	from   string
	to     []string
	sender mailSender
}

// NewEmailNotifier builds an SMTP client from cfg.
func NewEmailNotifier(cfg EmailConfig) (*EmailNotifier, error) {
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("email: %w", ErrNotConfigured)
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}
	if cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("email: create smtp client: %w", err)
	}
	return &EmailNotifier{from: cfg.From, to: cfg.To, sender: client}, nil
}

// Name implements alerting.Notifier.
func (n *EmailNotifier) Name() string { return "email" }

// Notify implements alerting.Notifier.
func (n *EmailNotifier) Notify(ctx context.Context, message string) error {
	m, err := n.buildMessage(message)
	if err != nil {
		return err
	}
	if err := n.sender.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}

func (n *EmailNotifier) buildMessage(message string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.from); err != nil {
		return nil, fmt.Errorf("email: from address: %w", err)
	}
	if err := m.To(n.to...); err != nil {
		return nil, fmt.Errorf("email: to address: %w", err)
	}
	m.Subject(EmailSubject)
	m.SetBodyString(mail.TypeTextPlain, message)
	return m, nil
}
