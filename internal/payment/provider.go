// Package payment wraps the hosted checkout provider behind a small interface
// so the checkout flow can be exercised without network access.
package payment

import (
	"context"
	"errors"
)

//go:generate mockgen -source=provider.go -destination=mock_provider.go -package=payment

const (
	StatusPaid      = "paid"
	StatusSucceeded = "succeeded"

	EventSessionCompleted             = "checkout.session.completed"
	EventSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"

	MetadataUserID   = "userId"
	MetadataLineKind = "lineKind"

	LineKindTax      = "tax"
	LineKindShipping = "shipping"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Provider is the subset of the payment provider used by checkout.
type Provider interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (*Session, error)
	// GetSession retrieves a session with its payment intent, customer and
	// shipping details expanded.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// CheckoutLine is one priced entry sent to the provider. UnitAmount is in
// minor currency units. Kind is empty for products and tags tax or shipping
// charges otherwise.
type CheckoutLine struct {
	Kind       string
	Name       string
	ImageURL   string
	UnitAmount int64
	Quantity   int64
}

type CreateSessionInput struct {
	Lines             []CheckoutLine
	Currency          string
	CustomerEmail     string
	UserID            string
	SuccessURL        string
	CancelURL         string
	ShippingCountries []string
}

type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Contact is a named party on a session: the paying customer or the
// shipping recipient.
type Contact struct {
	Name    string
	Email   string
	Phone   string
	Address *Address
}

type CardDetails struct {
	Brand    string
	Last4    string
	ExpMonth int64
	ExpYear  int64
	Country  string
	Funding  string
}

type Session struct {
	ID                 string
	URL                string
	PaymentStatus      string
	PaymentIntentID    string
	Currency           string
	AmountTotal        int64
	CustomerEmail      string
	Metadata           map[string]string
	PaymentMethodTypes []string
	Customer           *Contact
	Shipping           *Contact
	Card               *CardDetails
}

// Paid reports whether the provider considers the session settled.
func (s *Session) Paid() bool {
	return s.PaymentStatus == StatusPaid || s.PaymentStatus == StatusSucceeded
}

func (s *Session) UserID() string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[MetadataUserID]
}

// LineItem is the provider's own record of something purchased in a
// session. UnitAmount is in minor currency units.
type LineItem struct {
	Kind        string
	Description string
	ProductName string
	Images      []string
	UnitAmount  int64
	Quantity    int64
}

// IsCharge reports whether the line is a tax or shipping charge rather than
// a purchased product.
func (l LineItem) IsCharge() bool {
	return l.Kind == LineKindTax || l.Kind == LineKindShipping
}

type Event struct {
	ID      string
	Type    string
	Session *Session
}
