// Package events publishes order lifecycle events for asynchronous consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storefront/internal/models"
)

const TypeOrderCreated = "order.created"

type OrderLine struct {
	Name     string  `json:"name"`
	Quantity int     `json:"qty"`
	Price    float64 `json:"price"`
}

type OrderCreated struct {
	EventID   string      `json:"eventId"`
	Type      string      `json:"type"`
	OrderID   string      `json:"orderId"`
	UserID    string      `json:"userId"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Subtotal  float64     `json:"subtotal"`
	Tax       float64     `json:"tax"`
	Shipping  float64     `json:"shipping"`
	Total     float64     `json:"total"`
	Currency  string      `json:"currency"`
	Items     []OrderLine `json:"items"`
	CreatedAt time.Time   `json:"createdAt"`
}

// NewOrderCreated builds the event for a freshly reconciled order.
func NewOrderCreated(order *models.Order, items []models.OrderItem, email, name string) OrderCreated {
	lines := make([]OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, OrderLine{Name: item.ProductName, Quantity: item.ProductQuantity, Price: item.ProductPrice})
	}
	return OrderCreated{
		EventID:   uuid.NewString(),
		Type:      TypeOrderCreated,
		OrderID:   order.ID.Hex(),
		UserID:    order.Customer.Hex(),
		Email:     email,
		Name:      name,
		Subtotal:  order.ItemsPrice,
		Tax:       order.TaxPrice,
		Shipping:  order.ShippingPrice,
		Total:     order.TotalPrice,
		Currency:  order.Currency,
		Items:     lines,
		CreatedAt: order.CreatedAt,
	}
}

type Publisher interface {
	PublishOrderCreated(ctx context.Context, evt OrderCreated) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderCreated(context.Context, OrderCreated) error { return nil }
