package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"storefront/internal/events"
	"storefront/internal/logging"
)

// ErrBadPayload marks a message that can never be delivered and should be
// dropped rather than retried.
var ErrBadPayload = errors.New("undeliverable order event")

// OrderMailer turns order.created events into confirmation e-mails.
type OrderMailer struct {
	sender  Sender
	appName string
	log     logrus.FieldLogger
}

func NewOrderMailer(sender Sender, appName string, logger logrus.FieldLogger) *OrderMailer {
	return &OrderMailer{sender: sender, appName: appName, log: logging.Module(logger, "mailer")}
}

// Handle decodes one queue message and sends the confirmation. Errors
// wrapping ErrBadPayload are permanent; anything else is worth a retry.
func (m *OrderMailer) Handle(ctx context.Context, body []byte) error {
	var evt events.OrderCreated
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if evt.Type != "" && evt.Type != events.TypeOrderCreated {
		m.log.WithField("type", evt.Type).Debug("ignoring event")
		return nil
	}
	if strings.TrimSpace(evt.Email) == "" {
		return fmt.Errorf("%w: order %s has no recipient", ErrBadPayload, evt.OrderID)
	}

	subject, text, html, err := Render(OrderConfirmation, NewOrderConfirmationData(m.appName, evt))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	if err := m.sender.Send(ctx, Message{To: evt.Email, Subject: subject, Text: text, HTML: html}); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{"orderId": evt.OrderID, "eventId": evt.EventID}).Info("order confirmation sent")
	return nil
}
