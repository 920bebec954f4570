// Package notification delivers outbound e-mail.
package notification

import (
	"context"
	"fmt"
	"net/mail"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// EmailSender delivers a plain-text message.
type EmailSender interface {
	SendEmail(ctx context.Context, msg Message) error
}

// SendGridSender sends through the SendGrid v3 mail API.
type SendGridSender struct {
	client   *sendgrid.Client
	fromName string
	from     string
}

func NewSendGridSender(apiKey, from string) *SendGridSender {
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		fromName: "HMS",
		from:     from,
	}
}

func (s *SendGridSender) SendEmail(ctx context.Context, msg Message) error {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	body := msg.Body
	if body == "" {
		body = "\t"
	}
	m := sgmail.NewSingleEmail(
		sgmail.NewEmail(s.fromName, s.from),
		msg.Subject,
		sgmail.NewEmail("", msg.To),
		body,
		"",
	)
	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. Used in
// development and when no SendGrid key is configured.
type LogSender struct {
	logger zerolog.Logger

	mu   sync.Mutex
	sent []Message
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(_ context.Context, msg Message) error {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	s.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("email (not delivered)")
	return nil
}

// Sent returns a copy of every message accepted so far.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
