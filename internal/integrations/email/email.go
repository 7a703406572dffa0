// Package email provides SMTP integrations.
package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/open-sspm/intreg/internal/integrations/registry"
	"github.com/open-sspm/intreg/internal/secrets"
)

// SecretName is the secret holding SMTP_HOST, SMTP_PORT, SMTP_USER and
// SMTP_PASS.
const SecretName = "smtp_creds"

const defaultPort = "587"

type SendEmailInput struct {
	To      string  `json:"to"`
	Subject string  `json:"subject"`
	Body    string  `json:"body" default:""`
	From    *string `json:"from" default:"null"`
}

type SendEmailResult struct {
	MessageID string `json:"message_id"`
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service holds the integration functions of this package.
type Service struct {
	send sendFunc
	now  func() time.Time
}

func NewService() *Service {
	return &Service{send: smtp.SendMail, now: time.Now}
}

// Register adds this package's integrations to reg.
func Register(reg *registry.Registry, svc *Service) error {
	if svc == nil {
		svc = NewService()
	}
	_, err := reg.Register(svc.SendEmail, "Send a plain text email over SMTP.",
		registry.WithSecrets(SecretName),
		registry.WithDoc("Recipients are comma separated. From defaults to SMTP_USER."),
	)
	return err
}

// SendEmail delivers one message using the SMTP credentials in scope.
func (s *Service) SendEmail(ctx context.Context, in SendEmailInput) (SendEmailResult, error) {
	host := strings.TrimSpace(secrets.Get(ctx, "SMTP_HOST"))
	if host == "" {
		return SendEmailResult{}, errors.New("SMTP_HOST is not set")
	}
	port := strings.TrimSpace(secrets.Get(ctx, "SMTP_PORT"))
	if port == "" {
		port = defaultPort
	}
	user := secrets.Get(ctx, "SMTP_USER")
	pass := secrets.Get(ctx, "SMTP_PASS")

	to := splitAddresses(in.To)
	if len(to) == 0 {
		return SendEmailResult{}, errors.New("at least one recipient is required")
	}
	from := strings.TrimSpace(user)
	if in.From != nil {
		from = strings.TrimSpace(*in.From)
	}
	if from == "" {
		return SendEmailResult{}, errors.New("sender address is required")
	}
	if err := ctx.Err(); err != nil {
		return SendEmailResult{}, err
	}

	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, pass, host)
	}
	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), host)
	msg := buildMessage(from, to, in.Subject, in.Body, id, s.now())
	if err := s.send(net.JoinHostPort(host, port), auth, from, to, msg); err != nil {
		return SendEmailResult{}, fmt.Errorf("smtp send: %w", err)
	}
	return SendEmailResult{MessageID: id}, nil
}

func splitAddresses(raw string) []string {
	var out []string
	for _, addr := range strings.Split(raw, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func buildMessage(from string, to []string, subject, body, messageID string, at time.Time) []byte {
	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(stripCRLF(v))
		b.WriteString("\r\n")
	}
	header("From", from)
	header("To", strings.Join(to, ", "))
	header("Subject", subject)
	header("Date", at.Format(time.RFC1123Z))
	header("Message-ID", messageID)
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}

// stripCRLF keeps header values on one line.
func stripCRLF(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
