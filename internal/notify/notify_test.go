package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/go-mail"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/kjstillabower/smart-farm-service/internal/circuitbreaker"
)

type mockSender struct {
	sent []*mail.Msg
	err  error
}

func (m *mockSender) DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error {
	m.sent = append(m.sent, messages...)
	return m.err
}

type mockCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
	delay  time.Duration
}

func (m *mockCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.params = append(m.params, params)
	return &twilioApi.ApiV2010Message{}, m.err
}

type mockPublisher struct {
	subject string
	data    []byte
	err     error
}

func (m *mockPublisher) Publish(subject string, data []byte) error {
	m.subject, m.data = subject, data
	return m.err
}

func TestNewEmailNotifier_RequiresCredentials(t *testing.T) {
	_, err := NewEmailNotifier(EmailConfig{Host: "smtp.example.com"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewEmailNotifier() error = %v, want ErrNotConfigured", err)
	}
}

func TestNewEmailNotifier_Defaults(t *testing.T) {
	n, err := NewEmailNotifier(EmailConfig{
		Host: "smtp.example.com", Username: "farm@example.com", Password: "app-password",
		To: []string{"owner@example.com"},
	})
	if err != nil {
		t.Fatalf("NewEmailNotifier() error = %v", err)
	}
	if n.from != "farm@example.com" {
		t.Errorf("from = %q, want username as sender", n.from)
	}
	if n.Name() != "email" {
		t.Errorf("Name() = %q, want email", n.Name())
	}
}

func TestEmailNotifier_Notify(t *testing.T) {
	sender := &mockSender{}
	n := &EmailNotifier{from: "farm@example.com", to: []string{"owner@example.com"}, sender: sender}

	if err := n.Notify(context.Background(), "Low soil moisture: 10%"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sender.sent))
	}
	if subj := sender.sent[0].GetGenHeader(mail.HeaderSubject); len(subj) != 1 || subj[0] != EmailSubject {
		t.Errorf("Subject = %v, want %q", subj, EmailSubject)
	}
}

func TestEmailNotifier_Notify_SendError(t *testing.T) {
	n := &EmailNotifier{from: "farm@example.com", to: []string{"owner@example.com"}, sender: &mockSender{err: errors.New("auth failed")}}
	err := n.Notify(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "auth failed") {
		t.Errorf("Notify() error = %v, want wrapped send error", err)
	}
}

func TestEmailNotifier_Notify_BadAddress(t *testing.T) {
	sender := &mockSender{}
	n := &EmailNotifier{from: "not an address", to: []string{"owner@example.com"}, sender: sender}
	if err := n.Notify(context.Background(), "x"); err == nil {
		t.Error("Notify() expected error for invalid from address")
	}
	if len(sender.sent) != 0 {
		t.Error("message should not be sent when building fails")
	}
}

func TestNewSMSNotifier_RequiresCredentials(t *testing.T) {
	_, err := NewSMSNotifier(SMSConfig{AccountSID: "AC123"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewSMSNotifier() error = %v, want ErrNotConfigured", err)
	}
}

func TestSMSNotifier_Notify(t *testing.T) {
	api := &mockCreator{}
	n := &SMSNotifier{from: "+15550001", to: "+15550002", api: api}

	if err := n.Notify(context.Background(), "Low soil moisture: 10%"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("CreateMessage calls = %d, want 1", len(api.params))
	}
	p := api.params[0]
	if p.Body == nil || *p.Body != SMSPrefix+"Low soil moisture: 10%" {
		t.Errorf("Body = %v, want prefixed message", p.Body)
	}
	if p.To == nil || *p.To != "+15550002" || p.From == nil || *p.From != "+15550001" {
		t.Errorf("To/From = %v/%v, want configured numbers", p.To, p.From)
	}
}

func TestSMSNotifier_Notify_Error(t *testing.T) {
	n := &SMSNotifier{from: "a", to: "b", api: &mockCreator{err: errors.New("invalid number")}}
	if err := n.Notify(context.Background(), "x"); err == nil {
		t.Error("Notify() expected error")
	}
}

func TestSMSNotifier_Notify_ContextCancelled(t *testing.T) {
	n := &SMSNotifier{from: "a", to: "b", api: &mockCreator{delay: time.Second}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := n.Notify(ctx, "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Notify() error = %v, want DeadlineExceeded", err)
	}
}

func TestBusNotifier_Notify(t *testing.T) {
	pub := &mockPublisher{}
	n := &BusNotifier{pub: pub, subject: DefaultAlertSubject}

	if err := n.Notify(context.Background(), "Low soil moisture: 3%"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if pub.subject != DefaultAlertSubject {
		t.Errorf("subject = %q, want %q", pub.subject, DefaultAlertSubject)
	}
	var ev AlertEvent
	if err := json.Unmarshal(pub.data, &ev); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if ev.Message != "Low soil moisture: 3%" || ev.SentAt.IsZero() {
		t.Errorf("event = %+v, want message and timestamp", ev)
	}
}

func TestBusNotifier_Notify_PublishError(t *testing.T) {
	n := &BusNotifier{pub: &mockPublisher{err: errors.New("no responders")}, subject: "s"}
	if err := n.Notify(context.Background(), "x"); err == nil {
		t.Error("Notify() expected error")
	}
}

func TestNewBusNotifier_RequiresURL(t *testing.T) {
	if _, err := NewBusNotifier("", ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewBusNotifier() error = %v, want ErrNotConfigured", err)
	}
}

type flakyNotifier struct {
	calls int
	err   error
}

func (f *flakyNotifier) Name() string { return "sms" }

func (f *flakyNotifier) Notify(ctx context.Context, message string) error {
	f.calls++
	return f.err
}

func TestGuard_SkipsChannelWhileOpen(t *testing.T) {
	inner := &flakyNotifier{err: errors.New("provider down")}
	g := Guard(inner, circuitbreaker.Config{FailureThreshold: 2, Cooldown: time.Hour})

	if g.Name() != "sms" {
		t.Errorf("Name() = %q, want sms", g.Name())
	}
	for i := 0; i < 2; i++ {
		if err := g.Notify(context.Background(), "low soil"); err == nil {
			t.Fatalf("call %d: expected provider error", i)
		}
	}
	if err := g.Notify(context.Background(), "low soil"); !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
	if g.State() != circuitbreaker.StateOpen {
		t.Errorf("State() = %v, want open", g.State())
	}
}

func TestUnconfigured_AlwaysFails(t *testing.T) {
	u := NewUnconfigured("email", nil)
	if u.Name() != "email" {
		t.Errorf("Name() = %q, want email", u.Name())
	}
	if err := u.Notify(context.Background(), "low soil"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Notify() err = %v, want ErrNotConfigured", err)
	}

	_, cause := NewEmailNotifier(EmailConfig{Host: "smtp.example.com"})
	u = NewUnconfigured("email", cause)
	if err := u.Notify(context.Background(), "low soil"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Notify() err = %v, want constructor error wrapping ErrNotConfigured", err)
	}
}
