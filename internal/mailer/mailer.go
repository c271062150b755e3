// Package mailer sends plain-text transactional email (welcome, receipts).
package mailer

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"sync"

	"github.com/alumni-network/alumni-backend-system/internal/config"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Message is a single plain-text email.
type Message struct {
	To      mail.Address
	Subject string
	Body    string
}

// Mailer is any service that can send email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns a SendGrid mailer when an API key is configured, otherwise a
// mailer that only logs.
func New(cfg config.MailConfig, appName string) Mailer {
	from := mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}
	prefix := "[" + appName + "] "
	if cfg.SendgridAPIKey == "" {
		return &LogMailer{subjPrefix: prefix}
	}
	return &SendgridMailer{
		client:     sendgrid.NewSendClient(cfg.SendgridAPIKey),
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: prefix,
	}
}

type SendgridMailer struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	subjPrefix string
}

func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	to := sgmail.NewEmail(msg.To.Name, msg.To.Address)
	email := sgmail.NewSingleEmail(m.from, m.subjPrefix+msg.Subject, to, msg.Body, "")
	res, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// LogMailer writes messages to the log and keeps them for inspection.
type LogMailer struct {
	subjPrefix string

	mu   sync.Mutex
	sent []Message
}

func NewLogMailer() *LogMailer { return &LogMailer{} }

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	msg.Subject = m.subjPrefix + msg.Subject
	logger.With("to", msg.To.Address).Infof("email: %s", msg.Subject)
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of every message sent so far.
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// SendQuietly sends msg and logs a failure instead of returning it. Email is
// best effort everywhere it is used.
func SendQuietly(ctx context.Context, m Mailer, msg Message) {
	if m == nil || msg.To.Address == "" {
		return
	}
	if err := m.Send(ctx, msg); err != nil {
		logger.With("to", msg.To.Address).Warnf("sending email %q: %v", msg.Subject, err)
	}
}
