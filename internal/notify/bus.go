package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultAlertSubject is used when no subject is configured.
const DefaultAlertSubject = "farm.alerts"

type publisher interface {
	Publish(subject string, data []byte) error
}

// AlertEvent is the payload published for each alert.
type AlertEvent struct {
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// BusNotifier publishes alerts on a NATS subject for downstream consumers.
type BusNotifier struct {
	conn    *nats.Conn
	pub     publisher
	subject string
}

// NewBusNotifier connects to the NATS server at url.
func NewBusNotifier(url, subject string) (*BusNotifier, error) {
	if url == "" {
		return nil, fmt.Errorf("bus: %w", ErrNotConfigured)
	}
	conn, err := nats.Connect(url, nats.Name("smart-farm-service"))
	if err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}
	if subject == "" {
		subject = DefaultAlertSubject
	}
	return &BusNotifier{conn: conn, pub: conn, subject: subject}, nil
}

// Name implements alerting.Notifier.
func (n *BusNotifier) Name() string { return "bus" }

// Notify implements alerting.Notifier.
func (n *BusNotifier) Notify(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	data, err := json.Marshal(AlertEvent{Message: message, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("bus: publish %s: %w", n.subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (n *BusNotifier) Close() {
	if n.conn != nil {
		_ = n.conn.Drain()
		n.conn.Close()
	}
}
