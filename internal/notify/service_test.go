package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type mockEmailSender struct {
	sent []EmailMessage
	err  error
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	m.sent = append(m.sent, msg)
	return m.err
}

type mockSMSSender struct {
	to   []string
	body []string
	err  error
}

func (m *mockSMSSender) SendSMS(ctx context.Context, to, body string) error {
	m.to = append(m.to, to)
	m.body = append(m.body, body)
	return m.err
}

func TestService_NotifyActivation_BothChannels(t *testing.T) {
	email := &mockEmailSender{}
	sms := &mockSMSSender{}
	svc := NewService(email, sms, Config{OperatorEmail: "ops@example.com", OperatorPhone: "+15550009999"}, nil)
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC) }

	if err := svc.NotifyActivation(context.Background(), "+15551234567", "https://marco-joes-pizza.pages.dev", "payment"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(email.sent))
	}
	msg := email.sent[0]
	if msg.Kind != KindActivation || msg.To != "ops@example.com" {
		t.Errorf("unexpected recipient %q", msg.To)
	}
	if !strings.Contains(msg.Subject, "payment") {
		t.Errorf("expected source in subject, got %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "marco-joes-pizza.pages.dev") || !strings.Contains(msg.HTML, "<a href=") {
		t.Errorf("expected site link in email: %+v", msg)
	}
	if !strings.Contains(msg.Text, "May 4, 2026") {
		t.Errorf("expected timestamp in body, got %q", msg.Text)
	}
	if len(sms.to) != 1 || sms.to[0] != "+15550009999" {
		t.Fatalf("expected operator sms, got %v", sms.to)
	}
}

func TestService_NotifyDeployFailure_EmailOnly(t *testing.T) {
	email := &mockEmailSender{}
	sms := &mockSMSSender{}
	svc := NewService(email, sms, Config{OperatorEmail: "ops@example.com"}, nil)

	if err := svc.NotifyDeployFailure(context.Background(), "+15551234567", "joes-pizza", "cloudflare: 500"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 1 || email.sent[0].Kind != KindDeployFailure || !strings.Contains(email.sent[0].Subject, "joes-pizza") {
		t.Fatalf("unexpected emails %+v", email.sent)
	}
	if len(sms.to) != 0 {
		t.Fatalf("expected no sms without operator phone, got %v", sms.to)
	}
}

func TestService_DispatchFailures(t *testing.T) {
	email := &mockEmailSender{err: errors.New("smtp down")}
	sms := &mockSMSSender{err: errors.New("carrier down")}
	svc := NewService(email, sms, Config{OperatorEmail: "ops@example.com", OperatorPhone: "+15550009999"}, nil)

	err := svc.NotifyDeployFailure(context.Background(), "+15551234567", "joes-pizza", "boom")
	if err == nil || !strings.Contains(err.Error(), "2 notification(s) failed") {
		t.Fatalf("expected both failures reported, got %v", err)
	}
	if len(sms.to) != 1 {
		t.Fatal("expected sms attempt despite email failure")
	}
}

func TestService_Unconfigured(t *testing.T) {
	svc := NewService(nil, nil, Config{}, nil)
	if err := svc.NotifyActivation(context.Background(), "+15551234567", "", "admin"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestSimpleSMSSender_SendSMS(t *testing.T) {
	var gotTo, gotBody string
	sender := NewSimpleSMSSender(func(ctx context.Context, to, body string) error {
		gotTo, gotBody = to, body
		return nil
	}, nil)
	if err := sender.SendSMS(context.Background(), "+15550009999", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTo != "+15550009999" || gotBody != "hello" {
		t.Errorf("unexpected send %q %q", gotTo, gotBody)
	}

	if err := NewSimpleSMSSender(nil, nil).SendSMS(context.Background(), "+1", "x"); err != nil {
		t.Fatalf("expected nil send func to be a no-op, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
	if got := truncate("a longer string", 4); got != "a lo..." {
		t.Errorf("unexpected %q", got)
	}
}
