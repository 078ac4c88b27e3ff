package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/cart"
	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/store"
)

type catalog struct {
	mu       sync.Mutex
	products map[primitive.ObjectID]*models.Product
}

func newCatalog() *catalog {
	return &catalog{products: map[primitive.ObjectID]*models.Product{}}
}

func (c *catalog) add(name string, price float64, stock int) models.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &models.Product{
		ID:     primitive.NewObjectID(),
		Name:   name,
		Slug:   strings.ToLower(name),
		Price:  price,
		Stock:  stock,
		Images: models.ImageList{"https://cdn.example.com/" + strings.ToLower(name) + ".jpg"},
	}
	c.products[p.ID] = p
	return *p
}

func (c *catalog) stock(id primitive.ObjectID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.products[id].Stock
}

func (c *catalog) FindByName(_ context.Context, name string) (*models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.products {
		if strings.EqualFold(p.Name, name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeCarts struct {
	mu      sync.Mutex
	lines   map[primitive.ObjectID][]cart.Line
	cleared int
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{lines: map[primitive.ObjectID][]cart.Line{}}
}

func (f *fakeCarts) put(user primitive.ObjectID, lines ...cart.Line) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[user] = lines
}

func (f *fakeCarts) Lines(_ context.Context, user primitive.ObjectID) ([]cart.Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cart.Line{}, f.lines[user]...), nil
}

func (f *fakeCarts) Clear(_ context.Context, user primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[user] = nil
	f.cleared++
	return nil
}

// orderStore mimics the transactional repository: the session id is unique
// and a decrement that would go below zero is skipped and recorded as a
// shortage on the order.
type orderStore struct {
	mu        sync.Mutex
	catalog   *catalog
	orders    map[string]models.Order
	items     map[primitive.ObjectID][]models.OrderItem
	createErr error
	// raced makes the next create behave as if another writer won.
	raced *models.Order
}

func newOrderStore(c *catalog) *orderStore {
	return &orderStore{
		catalog: c,
		orders:  map[string]models.Order{},
		items:   map[primitive.ObjectID][]models.OrderItem{},
	}
}

func (s *orderStore) FindBySessionID(_ context.Context, sessionID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (s *orderStore) CreateWithItems(_ context.Context, order models.Order, items []models.OrderItem, decrements []store.StockDecrement) (*models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, false, s.createErr
	}
	if s.raced != nil {
		existing := *s.raced
		s.orders[existing.StripeSessionID] = existing
		s.raced = nil
		return &existing, false, nil
	}
	if existing, ok := s.orders[order.StripeSessionID]; ok {
		return &existing, false, nil
	}

	s.catalog.mu.Lock()
	defer s.catalog.mu.Unlock()
	order.StockShortages = nil
	for _, d := range decrements {
		p, ok := s.catalog.products[d.ProductID]
		if !ok || p.Stock < d.Quantity {
			order.StockShortages = append(order.StockShortages, models.StockShortage{Product: d.ProductID, Requested: d.Quantity})
			continue
		}
		p.Stock -= d.Quantity
	}

	order.ID = primitive.NewObjectID()
	order.OrderItems = nil
	stored := make([]models.OrderItem, len(items))
	for i, item := range items {
		item.ID = primitive.NewObjectID()
		item.Order = order.ID
		stored[i] = item
		order.OrderItems = append(order.OrderItems, item.ID)
	}
	s.orders[order.StripeSessionID] = order
	s.items[order.ID] = stored
	return &order, true, nil
}

func (s *orderStore) View(_ context.Context, order *models.Order) (*models.OrderView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.OrderView{
		Order:        *order,
		Items:        append([]models.OrderItem{}, s.items[order.ID]...),
		CustomerInfo: &models.CustomerSummary{ID: order.Customer, FullName: "Ada Lovelace", Email: "ada@example.com"},
	}, nil
}

func (s *orderStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderCreated
	err    error
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, evt events.OrderCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

type stubLocker struct {
	acquired bool
	err      error
	released int
	// onAcquire runs just before the lock is granted.
	onAcquire func()
}

func (l *stubLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if !l.acquired {
		return nil, false, nil
	}
	if l.onAcquire != nil {
		l.onAcquire()
	}
	return func() { l.released++ }, true, nil
}

var errDatabaseDown = errors.New("connection refused")
