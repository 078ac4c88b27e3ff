// Package mailer renders transactional e-mails and delivers them through Mailgun.
package mailer

import (
	"context"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailgun sends messages with a fixed sender address.
type Mailgun struct {
	client  *mg.MailgunImpl
	sender  string
	timeout time.Duration
}

func NewMailgun(domain, apiKey, sender string) *Mailgun {
	return &Mailgun{
		client:  mg.NewMailgun(domain, apiKey),
		sender:  sender,
		timeout: 10 * time.Second,
	}
}

func (m *Mailgun) Send(ctx context.Context, msg Message) error {
	message := m.client.NewMessage(m.sender, msg.Subject, msg.Text, msg.To)
	if msg.HTML != "" {
		message.SetHtml(msg.HTML)
	}
	c, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	_, _, err := m.client.Send(c, message)
	return err
}

// LogSender only logs what would have been sent. Used when MAIL_SEND_ENABLED is off.
type LogSender struct {
	Logf func(format string, args ...any)
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	if s.Logf != nil {
		s.Logf("mail disabled, skipping %q to %s", msg.Subject, msg.To)
	}
	return nil
}
