package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/orders"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/store"
)

const (
	SourceCart     = "cart"
	SourceProvider = "provider"
)

// resolvedItems are the line items an order is built from.
type resolvedItems struct {
	source     string
	items      []models.OrderItem
	decrements []store.StockDecrement
}

// Reconcile converts a completed payment session into exactly one order.
// Repeated calls for the same session return the order created first and
// have no further side effects.
func (s *Service) Reconcile(ctx context.Context, session *payment.Session) (*models.OrderView, error) {
	if session == nil || session.ID == "" {
		return nil, ErrMissingSessionID
	}
	entry := s.log.WithField("sessionId", session.ID)

	rawUser := session.UserID()
	if rawUser == "" {
		return nil, ErrMissingUser
	}
	userID, err := primitive.ObjectIDFromHex(rawUser)
	if err != nil {
		return nil, ErrMissingUser.WithDetails(map[string]string{"userId": "must be a valid id"})
	}
	entry = entry.WithField("userId", rawUser)

	existing, err := s.findExisting(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		entry.WithField("orderId", existing.ID.Hex()).Info("order already exists for session")
		return s.views.View(ctx, existing)
	}

	if !session.Paid() {
		return nil, ErrPaymentNotCompleted
	}

	if s.locker != nil {
		release, acquired, err := s.locker.Acquire(ctx, lockKey(session.ID), s.opts.LockTTL)
		switch {
		case err != nil:
			entry.WithError(err).Warn("reconcile lock unavailable, continuing without it")
		case !acquired:
			return s.awaitExisting(ctx, session.ID)
		default:
			defer release()
			// The previous holder may have finished between the first lookup
			// and this lock.
			existing, err := s.findExisting(ctx, session.ID)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				entry.WithField("orderId", existing.ID.Hex()).Info("order created while waiting for lock")
				return s.views.View(ctx, existing)
			}
		}
	}

	resolved, err := s.resolveItems(ctx, userID, session)
	if err != nil {
		return nil, err
	}

	lines := make([]pricing.Line, 0, len(resolved.items))
	for _, item := range resolved.items {
		lines = append(lines, pricing.Line{UnitPrice: item.ProductPrice, Quantity: item.ProductQuantity})
	}
	breakdown := s.opts.Rules.Calculate(pricing.Subtotal(lines))

	paid := pricing.FromMinorUnits(session.AmountTotal)
	mismatch := session.AmountTotal > 0 && !pricing.WithinTolerance(breakdown.Total, paid, s.opts.AmountTolerance)
	if mismatch {
		fields := logrus.Fields{"computedTotal": breakdown.Total, "amountPaid": paid, "source": resolved.source}
		if s.opts.StrictAmountCheck {
			entry.WithFields(fields).Error("amount paid does not match computed total, order rejected")
			return nil, ErrAmountMismatch.WithDetails(map[string]float64{"computedTotal": breakdown.Total, "amountPaid": paid})
		}
		entry.WithFields(fields).Warn("amount paid does not match computed total")
	}

	order := s.buildOrder(userID, session, breakdown, resolved)
	order.AmountPaid = paid
	order.AmountMismatch = mismatch

	saved, created, err := s.orders.CreateWithItems(ctx, order, resolved.items, resolved.decrements)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	entry = entry.WithField("orderId", saved.ID.Hex())
	if !created {
		entry.Info("order was created concurrently, returning existing")
		return s.views.View(ctx, saved)
	}

	if saved.HasStockShortage() {
		entry.WithField("shortages", saved.StockShortages).Error("paid order written with stock shortage, needs manual fulfilment")
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		entry.WithError(err).Warn("cart clear after order failed")
	}

	view, err := s.views.View(ctx, saved)
	if err != nil {
		return nil, err
	}
	s.publishCreated(ctx, view, session, entry)

	entry.WithFields(logrus.Fields{
		"source": resolved.source,
		"items":  len(resolved.items),
		"total":  saved.TotalPrice,
	}).Info("order created from checkout session")
	return view, nil
}

func (s *Service) findExisting(ctx context.Context, sessionID string) (*models.Order, error) {
	order, err := s.orders.FindBySessionID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return order, nil
}

// awaitExisting waits for the lock holder to finish and returns its order.
func (s *Service) awaitExisting(ctx context.Context, sessionID string) (*models.OrderView, error) {
	deadline := time.NewTimer(s.opts.LockWait)
	defer deadline.Stop()
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, apperr.Unavailable("request cancelled").Wrap(ctx.Err())
		case <-deadline.C:
			return nil, ErrInProgress
		case <-tick.C:
			existing, err := s.findExisting(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return s.views.View(ctx, existing)
			}
		}
	}
}

// resolveItems prefers the live cart and falls back to the provider's own
// record of the purchase when the cart is empty.
func (s *Service) resolveItems(ctx context.Context, userID primitive.ObjectID, session *payment.Session) (*resolvedItems, error) {
	now := s.now()
	lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) > 0 {
		out := &resolvedItems{source: SourceCart}
		for _, l := range lines {
			id := l.Product.ID
			out.items = append(out.items, models.OrderItem{
				Product:         &id,
				ProductName:     l.Product.Name,
				ProductImage:    l.Product.PrimaryImage(),
				ProductPrice:    l.Product.Price,
				ProductQuantity: l.Quantity,
				CreatedAt:       now,
			})
			out.decrements = append(out.decrements, store.StockDecrement{ProductID: id, Quantity: l.Quantity})
		}
		return out, nil
	}

	providerItems, err := s.provider.ListLineItems(ctx, session.ID)
	if err != nil {
		return nil, apperr.Upstream("Could not list checkout session line items", err)
	}

	out := &resolvedItems{source: SourceProvider}
	for _, li := range providerItems {
		if li.IsCharge() {
			continue
		}
		item := models.OrderItem{
			ProductName:     firstNonEmpty(li.ProductName, li.Description, "Item"),
			ProductPrice:    pricing.FromMinorUnits(li.UnitAmount),
			ProductQuantity: int(li.Quantity),
			CreatedAt:       now,
		}
		if item.ProductQuantity < 1 {
			item.ProductQuantity = 1
		}
		if len(li.Images) > 0 {
			item.ProductImage = li.Images[0]
		}

		product, err := s.products.FindByName(ctx, item.ProductName)
		switch {
		case err == nil:
			id := product.ID
			item.Product = &id
			if item.ProductImage == "" {
				item.ProductImage = product.PrimaryImage()
			}
			if s.opts.DecrementOnProviderItems {
				out.decrements = append(out.decrements, store.StockDecrement{ProductID: id, Quantity: item.ProductQuantity})
			}
		case errors.Is(err, store.ErrNotFound):
			s.log.WithFields(logrus.Fields{"sessionId": session.ID, "name": item.ProductName}).
				Warn("provider line item matches no product")
		default:
			return nil, apperr.Internal(err)
		}
		out.items = append(out.items, item)
	}
	if len(out.items) == 0 {
		return nil, ErrNoLineItems
	}
	return out, nil
}

func (s *Service) buildOrder(userID primitive.ObjectID, session *payment.Session, b pricing.Breakdown, resolved *resolvedItems) models.Order {
	now := s.now()
	order := models.Order{
		Customer:              userID,
		OrderItems:            []primitive.ObjectID{},
		ShippingAddress:       shippingAddress(session),
		BillingAddress:        billingAddress(session),
		StripeSessionID:       session.ID,
		StripePaymentIntentID: firstNonEmpty(session.PaymentIntentID, session.ID),
		PaymentStatus:         firstNonEmpty(session.PaymentStatus, "unknown"),
		PaymentMethod:         "card",
		Currency:              firstNonEmpty(session.Currency, s.opts.Currency),
		ItemsPrice:            b.Subtotal,
		TaxPrice:              b.Tax,
		ShippingPrice:         b.Shipping,
		TotalPrice:            b.Total,
		ItemsSource:           resolved.source,
		OrderStatus:           string(orders.StatusPending),
		IsPaid:                session.Paid(),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if len(session.PaymentMethodTypes) > 0 && session.PaymentMethodTypes[0] != "" {
		order.PaymentMethod = session.PaymentMethodTypes[0]
	}
	if c := session.Card; c != nil {
		order.PaymentMethodDetails = models.PaymentMethodDetails{
			Brand: c.Brand, Last4: c.Last4, ExpMonth: c.ExpMonth, ExpYear: c.ExpYear, Country: c.Country, Funding: c.Funding,
		}
	}
	if order.IsPaid {
		order.PaidAt = &now
	}
	return order
}

func (s *Service) publishCreated(ctx context.Context, view *models.OrderView, session *payment.Session, entry logrus.FieldLogger) {
	email := view.ShippingAddress.Email
	name := view.ShippingAddress.FullName
	if view.CustomerInfo != nil {
		email = firstNonEmpty(email, view.CustomerInfo.Email)
		name = firstNonEmpty(name, view.CustomerInfo.FullName)
	}
	email = firstNonEmpty(email, session.CustomerEmail)

	evt := events.NewOrderCreated(&view.Order, view.Items, email, name)
	if err := s.events.PublishOrderCreated(ctx, evt); err != nil {
		entry.WithError(err).Warn("order.created publish failed")
	}
}

// shippingAddress prefers the collected shipping details and falls back to
// the customer's billing details field by field.
func shippingAddress(session *payment.Session) models.ShippingAddress {
	var ship, cust payment.Contact
	var shipAddr, custAddr payment.Address
	if session.Shipping != nil {
		ship = *session.Shipping
		if ship.Address != nil {
			shipAddr = *ship.Address
		}
	}
	if session.Customer != nil {
		cust = *session.Customer
		if cust.Address != nil {
			custAddr = *cust.Address
		}
	}
	return models.ShippingAddress{
		FullName:    firstNonEmpty(ship.Name, cust.Name),
		Email:       firstNonEmpty(cust.Email, session.CustomerEmail),
		Street:      firstNonEmpty(shipAddr.Line1, custAddr.Line1),
		City:        firstNonEmpty(shipAddr.City, custAddr.City),
		State:       firstNonEmpty(shipAddr.State, custAddr.State),
		PostalCode:  firstNonEmpty(shipAddr.PostalCode, custAddr.PostalCode),
		Country:     firstNonEmpty(shipAddr.Country, custAddr.Country),
		PhoneNumber: firstNonEmpty(cust.Phone, ship.Phone),
	}
}

func billingAddress(session *payment.Session) models.BillingAddress {
	out := models.BillingAddress{Email: session.CustomerEmail}
	c := session.Customer
	if c == nil {
		return out
	}
	out.Name = c.Name
	out.Email = firstNonEmpty(c.Email, session.CustomerEmail)
	out.Phone = c.Phone
	if a := c.Address; a != nil {
		out.Address = models.PostalAddress{
			Line1: a.Line1, Line2: a.Line2, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country,
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
