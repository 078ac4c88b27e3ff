package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/store"
)

type fakeRepo struct {
	mu     sync.Mutex
	orders map[primitive.ObjectID]models.Order
	items  map[primitive.ObjectID][]models.OrderItem
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders: map[primitive.ObjectID]models.Order{},
		items:  map[primitive.ObjectID][]models.OrderItem{},
	}
}

func (f *fakeRepo) add(order models.Order, items ...models.OrderItem) models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	for i := range items {
		items[i].ID = primitive.NewObjectID()
		items[i].Order = order.ID
		order.OrderItems = append(order.OrderItems, items[i].ID)
	}
	f.orders[order.ID] = order
	f.items[order.ID] = items
	return order
}

func (f *fakeRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (f *fakeRepo) FindForCustomer(ctx context.Context, customer, id primitive.ObjectID) (*models.Order, error) {
	o, err := f.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Customer != customer {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (f *fakeRepo) sorted(match func(models.Order) bool) []models.Order {
	out := []models.Order{}
	for _, o := range f.orders {
		if match(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeRepo) ListByCustomer(_ context.Context, customer primitive.ObjectID) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(o models.Order) bool { return o.Customer == customer }), nil
}

func (f *fakeRepo) List(_ context.Context, filter store.OrderFilter, page, limit int64) ([]models.Order, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sorted(func(o models.Order) bool { return filter.Status == "" || o.OrderStatus == filter.Status })
	start := (page - 1) * limit
	if start > int64(len(all)) {
		start = int64(len(all))
	}
	end := start + limit
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	return all[start:end], int64(len(all)), nil
}

func (f *fakeRepo) ItemsFor(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID][]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[primitive.ObjectID][]models.OrderItem{}
	for _, id := range ids {
		if items, ok := f.items[id]; ok {
			out[id] = items
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id primitive.ObjectID, status string, deliveredAt *time.Time) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o.OrderStatus = status
	if deliveredAt != nil {
		o.DeliveredAt = deliveredAt
	}
	f.orders[id] = o
	return &o, nil
}

func (f *fakeRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.orders, id)
	delete(f.items, id)
	return nil
}

type fakeUsers map[primitive.ObjectID]models.User

func (f fakeUsers) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}
