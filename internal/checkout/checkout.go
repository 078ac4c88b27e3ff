// Package checkout creates hosted payment sessions and turns completed
// sessions into orders.
package checkout

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/store"
)

var (
	ErrEmptyCart           = apperr.BadRequest("Cart is empty")
	ErrPaymentNotCompleted = apperr.BadRequest("Payment not completed")
	ErrMissingUser         = apperr.BadRequest("No userId in session metadata. Can't create order.")
	ErrMissingSessionID    = apperr.BadRequest("session_id is required")
	ErrSessionNotOwned     = apperr.Forbidden("checkout session belongs to another user")
	ErrAmountMismatch      = apperr.Conflict("Amount paid does not match order total")
	ErrInProgress          = apperr.Unavailable("Checkout reconciliation already in progress")
	ErrNoLineItems         = apperr.Unprocessable("Payment session has no line items")
)

// Carts is the part of the cart service checkout relies on.
type Carts interface {
	Lines(ctx context.Context, userID primitive.ObjectID) ([]cart.Line, error)
	Clear(ctx context.Context, userID primitive.ObjectID) error
}

type ProductFinder interface {
	FindByName(ctx context.Context, name string) (*models.Product, error)
}

type OrderRepository interface {
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	CreateWithItems(ctx context.Context, order models.Order, items []models.OrderItem, decrements []store.StockDecrement) (*models.Order, bool, error)
}

// OrderViews populates an order with its items and customer.
type OrderViews interface {
	View(ctx context.Context, order *models.Order) (*models.OrderView, error)
}

type Options struct {
	Currency          string
	ClientURL         string
	ShippingCountries []string
	Rules             pricing.Rules

	AmountTolerance   float64
	StrictAmountCheck bool
	// DecrementOnProviderItems also decrements stock for products matched by
	// name when the order is built from the provider's line items.
	DecrementOnProviderItems bool
	LockTTL                  time.Duration
	LockWait                 time.Duration
}

type Service struct {
	provider payment.Provider
	carts    Carts
	products ProductFinder
	orders   OrderRepository
	views    OrderViews
	events   events.Publisher
	locker   Locker
	opts     Options
	log      logrus.FieldLogger
	now      func() time.Time
}

type Deps struct {
	Provider payment.Provider
	Carts    Carts
	Products ProductFinder
	Orders   OrderRepository
	Views    OrderViews
	Events   events.Publisher
	// Locker is optional.
	Locker Locker
	Logger logrus.FieldLogger
}

func NewService(d Deps, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 5 * time.Second
	}
	if d.Events == nil {
		d.Events = events.NopPublisher{}
	}
	return &Service{
		provider: d.Provider,
		carts:    d.Carts,
		products: d.Products,
		orders:   d.Orders,
		views:    d.Views,
		events:   d.Events,
		locker:   d.Locker,
		opts:     opts,
		log:      logging.Module(d.Logger, "checkout"),
		now:      time.Now,
	}
}

type Customer struct {
	ID    primitive.ObjectID
	Email string
}

type SessionResult struct {
	SessionID string            `json:"sessionId"`
	URL       string            `json:"url"`
	Pricing   pricing.Breakdown `json:"pricing"`
}

// CreateSession prices the caller's cart and opens a hosted payment session
// for it. Nothing is persisted locally.
func (s *Service) CreateSession(ctx context.Context, customer Customer) (*SessionResult, error) {
	lines, err := s.carts.Lines(ctx, customer.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	priced := make([]pricing.Line, 0, len(lines))
	checkoutLines := make([]payment.CheckoutLine, 0, len(lines)+2)
	for _, l := range lines {
		priced = append(priced, pricing.Line{UnitPrice: l.Product.Price, Quantity: l.Quantity})
		checkoutLines = append(checkoutLines, payment.CheckoutLine{
			Name:       l.Product.Name,
			ImageURL:   l.Product.PrimaryImage(),
			UnitAmount: pricing.ToMinorUnits(l.Product.Price),
			Quantity:   int64(l.Quantity),
		})
	}
	breakdown := s.opts.Rules.Calculate(pricing.Subtotal(priced))
	if breakdown.Tax > 0 {
		checkoutLines = append(checkoutLines, payment.CheckoutLine{
			Kind: payment.LineKindTax, Name: "Sales tax", UnitAmount: pricing.ToMinorUnits(breakdown.Tax), Quantity: 1,
		})
	}
	if breakdown.Shipping > 0 {
		checkoutLines = append(checkoutLines, payment.CheckoutLine{
			Kind: payment.LineKindShipping, Name: "Shipping", UnitAmount: pricing.ToMinorUnits(breakdown.Shipping), Quantity: 1,
		})
	}

	session, err := s.provider.CreateSession(ctx, payment.CreateSessionInput{
		Lines:             checkoutLines,
		Currency:          s.opts.Currency,
		CustomerEmail:     customer.Email,
		UserID:            customer.ID.Hex(),
		SuccessURL:        s.opts.ClientURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         s.opts.ClientURL + "/cart",
		ShippingCountries: s.opts.ShippingCountries,
	})
	if err != nil {
		return nil, apperr.Upstream("Error creating checkout session", err)
	}

	s.log.WithFields(logrus.Fields{
		"userId":    customer.ID.Hex(),
		"sessionId": session.ID,
		"total":     breakdown.Total,
	}).Info("checkout session created")

	return &SessionResult{SessionID: session.ID, URL: session.URL, Pricing: breakdown}, nil
}
