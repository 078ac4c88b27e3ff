package cart

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/store"
)

type fakeCarts struct {
	mu     sync.Mutex
	carts  map[primitive.ObjectID]*models.Cart
	pruned int
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: map[primitive.ObjectID]*models.Cart{}}
}

func (f *fakeCarts) copyOf(c *models.Cart) *models.Cart {
	cp := *c
	cp.Items = append([]models.CartItem{}, c.Items...)
	return &cp
}

func (f *fakeCarts) Get(_ context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.copyOf(c), nil
}

func (f *fakeCarts) Replace(_ context.Context, userID primitive.ObjectID, items []models.CartItem) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		c = &models.Cart{ID: primitive.NewObjectID(), UserID: userID, CreatedAt: time.Now()}
		f.carts[userID] = c
	}
	c.Items = append([]models.CartItem{}, items...)
	c.UpdatedAt = time.Now()
	return f.copyOf(c), nil
}

func (f *fakeCarts) SetItemQuantity(_ context.Context, userID, productID primitive.ObjectID, quantity int) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		c = &models.Cart{ID: primitive.NewObjectID(), UserID: userID}
		f.carts[userID] = c
	}
	for i := range c.Items {
		if c.Items[i].Product == productID {
			c.Items[i].Quantity = quantity
			return f.copyOf(c), nil
		}
	}
	c.Items = append(c.Items, models.CartItem{Product: productID, Quantity: quantity})
	return f.copyOf(c), nil
}

func (f *fakeCarts) RemoveItem(_ context.Context, userID, productID primitive.ObjectID) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	kept := c.Items[:0]
	for _, item := range c.Items {
		if item.Product != productID {
			kept = append(kept, item)
		}
	}
	c.Items = kept
	return f.copyOf(c), nil
}

func (f *fakeCarts) Clear(_ context.Context, userID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.carts[userID]; ok {
		c.Items = []models.CartItem{}
	}
	return nil
}

func (f *fakeCarts) Prune(_ context.Context, cart *models.Cart, items []models.CartItem) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[cart.UserID]
	if !ok || !c.UpdatedAt.Equal(cart.UpdatedAt) {
		return false, nil
	}
	c.Items = append([]models.CartItem{}, items...)
	f.pruned++
	return true, nil
}

type fakeProducts struct {
	products map[primitive.ObjectID]models.Product
}

func newFakeProducts(products ...models.Product) *fakeProducts {
	f := &fakeProducts{products: map[primitive.ObjectID]models.Product{}}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeProducts) FindByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.Product, error) {
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) FindByID(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func product(name string, price float64, stock int) models.Product {
	return models.Product{
		ID:     primitive.NewObjectID(),
		Name:   name,
		Slug:   name,
		Price:  price,
		Stock:  stock,
		Images: models.ImageList{"https://cdn.example.com/" + name + ".jpg"},
	}
}
