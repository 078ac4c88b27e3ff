package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeProvider talks to Stripe through an injected API client.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProvider) CreateSession(ctx context.Context, in CreateSessionInput) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		SuccessURL:               stripe.String(in.SuccessURL),
		CancelURL:                stripe.String(in.CancelURL),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
	}
	params.Context = ctx
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	if len(in.ShippingCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(in.ShippingCountries),
		}
	}
	params.AddMetadata(MetadataUserID, in.UserID)

	for _, line := range in.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(line.Name),
		}
		if line.ImageURL != "" {
			product.Images = stripe.StringSlice([]string{line.ImageURL})
		}
		if line.Kind != "" {
			product.Metadata = map[string]string{MetadataLineKind: line.Kind}
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(in.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(line.UnitAmount),
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return sessionFromStripe(s), nil
}

func (p *StripeProvider) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent.payment_method")
	params.AddExpand("customer_details")

	s, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session %s: %w", sessionID, err)
	}
	return sessionFromStripe(s), nil
}

func (p *StripeProvider) ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}
	params.Context = ctx
	params.AddExpand("data.price.product")

	var items []LineItem
	iter := p.api.CheckoutSessions.ListLineItems(params)
	for iter.Next() {
		li := iter.LineItem()
		item := LineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
		}
		if li.Price != nil {
			item.UnitAmount = li.Price.UnitAmount
			if li.Price.Product != nil {
				item.ProductName = li.Price.Product.Name
				item.Images = li.Price.Product.Images
				item.Kind = li.Price.Product.Metadata[MetadataLineKind]
			}
		}
		items = append(items, item)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list line items for %s: %w", sessionID, err)
	}
	return items, nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}
	if out.Type == EventSessionCompleted || out.Type == EventSessionAsyncPaymentSucceeded {
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("decode checkout session from event %s: %w", event.ID, err)
		}
		out.Session = sessionFromStripe(&s)
	}
	return out, nil
}

func sessionFromStripe(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:                 s.ID,
		URL:                s.URL,
		PaymentStatus:      string(s.PaymentStatus),
		Currency:           string(s.Currency),
		AmountTotal:        s.AmountTotal,
		CustomerEmail:      s.CustomerEmail,
		Metadata:           s.Metadata,
		PaymentMethodTypes: s.PaymentMethodTypes,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
		if pm := s.PaymentIntent.PaymentMethod; pm != nil && pm.Card != nil {
			out.Card = &CardDetails{
				Brand:    string(pm.Card.Brand),
				Last4:    pm.Card.Last4,
				ExpMonth: pm.Card.ExpMonth,
				ExpYear:  pm.Card.ExpYear,
				Country:  pm.Card.Country,
				Funding:  string(pm.Card.Funding),
			}
		}
	}
	if d := s.CustomerDetails; d != nil {
		out.Customer = &Contact{
			Name:    d.Name,
			Email:   d.Email,
			Phone:   d.Phone,
			Address: addressFromStripe(d.Address),
		}
	}
	if d := s.ShippingDetails; d != nil {
		out.Shipping = &Contact{
			Name:    d.Name,
			Phone:   d.Phone,
			Address: addressFromStripe(d.Address),
		}
	}
	return out
}

func addressFromStripe(a *stripe.Address) *Address {
	if a == nil {
		return nil
	}
	return &Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
