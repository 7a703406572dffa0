package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/open-sspm/intreg/internal/auth"
	"github.com/open-sspm/intreg/internal/integrations/registry"
	"github.com/open-sspm/intreg/internal/secrets"
)

type sentMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestService(sent *sentMail, err error) *Service {
	return &Service{
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			*sent = sentMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)}
			return err
		},
		now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

func newTestRegistry(t *testing.T, svc *Service, keys []secrets.KeyValue) *registry.Registry {
	t.Helper()
	store := secrets.StoreFunc(func(context.Context, auth.Role, []string) ([]secrets.Record, error) {
		return []secrets.Record{{Name: SecretName, Keys: keys}}, nil
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(
		registry.WithLogger(logger),
		registry.WithBroker(secrets.NewBroker(store, "test", logger)),
		registry.WithInjector(secrets.NewInjector(secrets.ModeContext, nil, logger)),
	)
	if err := Register(reg, svc); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return reg
}

var smtpKeys = []secrets.KeyValue{
	{Key: "SMTP_HOST", Value: "smtp.example.com"},
	{Key: "SMTP_PORT", Value: "2525"},
	{Key: "SMTP_USER", Value: "bot@example.com"},
	{Key: "SMTP_PASS", Value: "hunter2"},
}

func TestSendEmail(t *testing.T) {
	t.Parallel()

	var sent sentMail
	reg := newTestRegistry(t, newTestService(&sent, nil), smtpKeys)

	meta := reg.Metadata()["integrations.email.send_email"]
	if len(meta.Secrets) != 1 || meta.Secrets[0] != SecretName {
		t.Fatalf("Secrets = %v", meta.Secrets)
	}

	out, err := reg.Invoke(context.Background(), "integrations.email.send_email", auth.ServiceRole(), map[string]any{
		"to":      "a@example.com, b@example.com",
		"subject": "Hi\r\nBcc: evil@example.com",
		"body":    "line1\nline2",
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	res := out.(SendEmailResult)
	if !strings.HasSuffix(res.MessageID, "@smtp.example.com>") {
		t.Fatalf("MessageID = %q", res.MessageID)
	}
	if sent.addr != "smtp.example.com:2525" || sent.from != "bot@example.com" || len(sent.to) != 2 || sent.auth == nil {
		t.Fatalf("unexpected send %+v", sent)
	}
	if strings.Contains(sent.msg, "\r\nBcc:") {
		t.Fatalf("header injection not stripped:\n%s", sent.msg)
	}
	if !strings.Contains(sent.msg, "Subject: Hi  Bcc: evil@example.com\r\n") || !strings.HasSuffix(sent.msg, "\r\n\r\nline1\r\nline2") {
		t.Fatalf("unexpected message:\n%q", sent.msg)
	}
}

func TestSendEmailErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("535 auth failed")
	tests := []struct {
		name    string
		keys    []secrets.KeyValue
		sendErr error
		args    map[string]any
		wantErr string
	}{
		{name: "missing host", keys: smtpKeys[1:], args: map[string]any{"to": "a@example.com", "subject": "s"}, wantErr: "SMTP_HOST"},
		{name: "no recipients", keys: smtpKeys, args: map[string]any{"to": " , ", "subject": "s"}, wantErr: "recipient"},
		{name: "send failure", keys: smtpKeys, sendErr: boom, args: map[string]any{"to": "a@example.com", "subject": "s"}, wantErr: "535"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var sent sentMail
			reg := newTestRegistry(t, newTestService(&sent, tt.sendErr), tt.keys)
			_, err := reg.Invoke(context.Background(), "integrations.email.send_email", auth.ServiceRole(), tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Invoke() error = %v, want mention of %q", err, tt.wantErr)
			}
			if tt.sendErr != nil && !errors.Is(err, tt.sendErr) {
				t.Fatalf("Invoke() error = %v, want wrapped %v", err, tt.sendErr)
			}
		})
	}
}

func TestSendEmailDefaultsPortAndFrom(t *testing.T) {
	t.Parallel()

	var sent sentMail
	reg := newTestRegistry(t, newTestService(&sent, nil), []secrets.KeyValue{{Key: "SMTP_HOST", Value: "relay.internal"}})
	_, err := reg.Invoke(context.Background(), "integrations.email.send_email", auth.ServiceRole(), map[string]any{
		"to":      "a@example.com",
		"subject": "s",
		"from":    "noreply@example.com",
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if sent.addr != "relay.internal:587" || sent.from != "noreply@example.com" || sent.auth != nil {
		t.Fatalf("unexpected send %+v", sent)
	}
}
