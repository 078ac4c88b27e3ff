package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderItem is an immutable snapshot of a purchased product taken when the
// order was created. Product is nil when the product could not be resolved.
type OrderItem struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Order           primitive.ObjectID  `bson:"order" json:"order"`
	Product         *primitive.ObjectID `bson:"product" json:"product"`
	ProductName     string              `bson:"productName" json:"productName"`
	ProductImage    string              `bson:"productImage" json:"productImage"`
	ProductPrice    float64             `bson:"productPrice" json:"productPrice"`
	ProductQuantity int                 `bson:"productQuantity" json:"productQuantity"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
}

// ShippingAddress is copied from the payment session at order creation.
type ShippingAddress struct {
	FullName    string `bson:"fullname" json:"fullname"`
	Email       string `bson:"email" json:"email"`
	Street      string `bson:"street" json:"street"`
	City        string `bson:"city" json:"city"`
	State       string `bson:"state" json:"state"`
	PostalCode  string `bson:"postalCode" json:"postalCode"`
	Country     string `bson:"country" json:"country"`
	PhoneNumber string `bson:"phoneNumber" json:"phoneNumber"`
}

type PostalAddress struct {
	Line1      string `bson:"line1" json:"line1"`
	Line2      string `bson:"line2" json:"line2"`
	City       string `bson:"city" json:"city"`
	State      string `bson:"state" json:"state"`
	PostalCode string `bson:"postal_code" json:"postal_code"`
	Country    string `bson:"country" json:"country"`
}

type BillingAddress struct {
	Name    string        `bson:"name" json:"name"`
	Email   string        `bson:"email" json:"email"`
	Phone   string        `bson:"phone" json:"phone"`
	Address PostalAddress `bson:"address" json:"address"`
}

type PaymentMethodDetails struct {
	Brand    string `bson:"brand,omitempty" json:"brand,omitempty"`
	Last4    string `bson:"last4,omitempty" json:"last4,omitempty"`
	ExpMonth int64  `bson:"exp_month,omitempty" json:"exp_month,omitempty"`
	ExpYear  int64  `bson:"exp_year,omitempty" json:"exp_year,omitempty"`
	Country  string `bson:"country,omitempty" json:"country,omitempty"`
	Funding  string `bson:"funding,omitempty" json:"funding,omitempty"`
}

// Order defines the persisted order document. StripeSessionID is unique and
// is the idempotency key of checkout reconciliation.
type Order struct {
	ID                    primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Customer              primitive.ObjectID   `bson:"customer" json:"customer"`
	OrderItems            []primitive.ObjectID `bson:"orderItems" json:"orderItems"`
	ShippingAddress       ShippingAddress      `bson:"shippingAddress" json:"shippingAddress"`
	BillingAddress        BillingAddress       `bson:"billingAddress" json:"billingAddress"`
	StripeSessionID       string               `bson:"stripeSessionId" json:"stripeSessionId"`
	StripePaymentIntentID string               `bson:"stripePaymentIntentId" json:"stripePaymentIntentId"`
	PaymentStatus         string               `bson:"paymentStatus" json:"paymentStatus"`
	PaymentMethod         string               `bson:"paymentMethod" json:"paymentMethod"`
	PaymentMethodDetails  PaymentMethodDetails `bson:"paymentMethodDetails" json:"paymentMethodDetails"`
	Currency              string               `bson:"currency" json:"currency"`
	ItemsPrice            float64              `bson:"itemsPrice" json:"itemsPrice"`
	TaxPrice              float64              `bson:"taxPrice" json:"taxPrice"`
	ShippingPrice         float64              `bson:"shippingPrice" json:"shippingPrice"`
	TotalPrice            float64              `bson:"totalPrice" json:"totalPrice"`
	AmountPaid            float64              `bson:"amountPaid" json:"amountPaid"`
	AmountMismatch        bool                 `bson:"amountMismatch" json:"amountMismatch"`
	ItemsSource           string               `bson:"itemsSource" json:"itemsSource"`
	OrderStatus           string               `bson:"orderStatus" json:"orderStatus"`
	StockShortages        []StockShortage      `bson:"stockShortages,omitempty" json:"stockShortages,omitempty"`
	IsPaid                bool                 `bson:"isPaid" json:"isPaid"`
	PaidAt                *time.Time           `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	DeliveredAt           *time.Time           `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CreatedAt             time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt             time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// StockShortage is an order line whose stock could not be reserved when the
// paid order was written. The order needs manual fulfilment for it.
type StockShortage struct {
	Product   primitive.ObjectID `bson:"product" json:"product"`
	Requested int                `bson:"requested" json:"requested"`
}

func (o Order) HasStockShortage() bool {
	return len(o.StockShortages) > 0
}

// CustomerSummary is the populated customer shown alongside an order.
type CustomerSummary struct {
	ID       primitive.ObjectID `json:"id"`
	FullName string             `json:"fullname"`
	Email    string             `json:"email"`
}

// OrderView is an order with its item snapshots and customer populated.
type OrderView struct {
	Order
	Items        []OrderItem      `json:"items"`
	CustomerInfo *CustomerSummary `json:"customerInfo,omitempty"`
}
