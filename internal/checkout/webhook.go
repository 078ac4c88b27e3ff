package checkout

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/payment"
)

// WebhookResult tells the caller what happened to a delivered event.
type WebhookResult struct {
	EventType string
	Handled   bool
	Order     *models.OrderView
}

// HandleWebhook verifies and processes a provider event. A returned error is
// either a signature failure or a transient failure the provider should
// retry; permanent reconciliation failures are logged and swallowed.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, apperr.BadRequest("Webhook Error: missing signature")
	}
	evt, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return nil, apperr.BadRequest("Webhook Error: " + err.Error()).Wrap(err)
	}

	entry := s.log.WithFields(logrus.Fields{"eventId": evt.ID, "eventType": evt.Type})
	result := &WebhookResult{EventType: evt.Type}

	switch evt.Type {
	case payment.EventSessionCompleted, payment.EventSessionAsyncPaymentSucceeded:
	default:
		entry.Debug("webhook event ignored")
		return result, nil
	}
	if evt.Session == nil || evt.Session.ID == "" {
		entry.Warn("webhook event carries no checkout session")
		return result, nil
	}

	session := evt.Session
	if full, err := s.provider.GetSession(ctx, session.ID); err == nil {
		session = full
	} else {
		entry.WithError(err).Warn("session refresh failed, using event payload")
	}

	view, err := s.Reconcile(ctx, session)
	if err != nil {
		if apperr.IsTransient(err) {
			entry.WithError(err).Error("webhook reconciliation failed, provider will retry")
			return nil, err
		}
		entry.WithError(err).Warn("webhook reconciliation rejected")
		return result, nil
	}
	result.Handled = true
	result.Order = view
	return result, nil
}

// Confirm reconciles a session on behalf of the user who paid for it.
func (s *Service) Confirm(ctx context.Context, userID primitive.ObjectID, sessionID string) (*models.OrderView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	session, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		return nil, apperr.Upstream("Could not retrieve checkout session", err)
	}
	if session.UserID() != userID.Hex() {
		return nil, ErrSessionNotOwned
	}
	if !session.Paid() {
		return nil, ErrPaymentNotCompleted
	}
	return s.Reconcile(ctx, session)
}

// ReconcileByID retrieves a session from the provider and reconciles it.
// Used to recover sessions whose webhook was never delivered.
func (s *Service) ReconcileByID(ctx context.Context, sessionID string) (*models.OrderView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	session, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		return nil, apperr.Upstream("Could not retrieve checkout session", err)
	}
	return s.Reconcile(ctx, session)
}
