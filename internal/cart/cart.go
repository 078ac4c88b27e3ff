// Package cart manages the per-user shopping cart.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/store"
)

var (
	ErrItemsNotArray   = apperr.BadRequest("Either cart items are invalid or Cart Items needs to be an Array")
	ErrInvalidQuantity = apperr.BadRequest("ProductId and Product quantity (min 1) is required")
	ErrProductNotFound = apperr.NotFound("Product not found")
	ErrCartNotFound    = apperr.NotFound("Cart not found")
)

type Repository interface {
	Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	Replace(ctx context.Context, userID primitive.ObjectID, items []models.CartItem) (*models.Cart, error)
	SetItemQuantity(ctx context.Context, userID, productID primitive.ObjectID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) (*models.Cart, error)
	Clear(ctx context.Context, userID primitive.ObjectID) error
	Prune(ctx context.Context, cart *models.Cart, items []models.CartItem) (bool, error)
}

type ProductReader interface {
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
}

type Service struct {
	carts    Repository
	products ProductReader
	log      logrus.FieldLogger
}

func NewService(carts Repository, products ProductReader, logger logrus.FieldLogger) *Service {
	return &Service{carts: carts, products: products, log: logging.Module(logger, "cart")}
}

// SyncItem is one entry of a replace-all request. Quantity is a pointer so a
// missing value can be told apart from zero.
type SyncItem struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type ItemView struct {
	Product  models.ProductSummary `json:"product"`
	Quantity int                   `json:"quantity"`
}

type Summary struct {
	TotalItem  int     `json:"totalItem"`
	TotalPrice float64 `json:"totalPrice"`
	ItemCount  int     `json:"itemCount"`
}

type View struct {
	ID      primitive.ObjectID `json:"id,omitempty"`
	UserID  primitive.ObjectID `json:"userId"`
	Items   []ItemView         `json:"items"`
	Summary Summary            `json:"summary"`
}

// Line is a cart entry joined with its live product.
type Line struct {
	Product  models.Product
	Quantity int
}

// DecodeSyncItems parses the raw "items" field of a sync request. Anything
// other than a JSON array is rejected.
func DecodeSyncItems(raw json.RawMessage) ([]SyncItem, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed[0] != '[' {
		return nil, ErrItemsNotArray
	}
	var items []SyncItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, ErrItemsNotArray.Wrap(err)
	}
	return items, nil
}

// Sync replaces the user's whole cart. Every product must exist; duplicates
// are merged by summing their quantities.
func (s *Service) Sync(ctx context.Context, userID primitive.ObjectID, items []SyncItem) (*View, error) {
	if items == nil {
		return nil, ErrItemsNotArray
	}

	merged := make([]models.CartItem, 0, len(items))
	index := make(map[primitive.ObjectID]int, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity == nil || *item.Quantity < 1 {
			return nil, apperr.BadRequest(fmt.Sprintf("Invalid cart item at %d. Required:ProductId and Product quantity >= 1", i+1))
		}
		id, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return nil, apperr.BadRequest(fmt.Sprintf("Invalid cart item at %d. productId %q is not a valid id", i+1, item.ProductID))
		}
		if pos, ok := index[id]; ok {
			merged[pos].Quantity += *item.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, models.CartItem{Product: id, Quantity: *item.Quantity})
	}

	ids := make([]primitive.ObjectID, 0, len(merged))
	for _, item := range merged {
		ids = append(ids, item.Product)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	byID := indexProducts(products)

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id.Hex())
		}
	}
	if len(missing) > 0 {
		return nil, apperr.NotFound("Products not found with id " + strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing": missing})
	}

	cart, err := s.carts.Replace(ctx, userID, merged)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.log.WithFields(logrus.Fields{"userId": userID.Hex(), "items": len(merged)}).Info("cart synced")
	return buildView(cart, byID), nil
}

// Get returns the cart with live product data. Entries whose product was
// deleted are dropped and the pruned list is written back.
func (s *Service) Get(ctx context.Context, userID primitive.ObjectID) (*View, error) {
	cart, err := s.carts.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return emptyView(userID), nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	byID, err := s.loadProducts(ctx, cart.Items)
	if err != nil {
		return nil, err
	}

	valid := make([]models.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if _, ok := byID[item.Product]; ok {
			valid = append(valid, item)
		}
	}
	if len(valid) != len(cart.Items) {
		entry := s.log.WithFields(logrus.Fields{"userId": userID.Hex(), "pruned": len(cart.Items) - len(valid)})
		written, err := s.carts.Prune(ctx, cart, valid)
		switch {
		case err != nil:
			entry.WithError(err).Warn("cart prune failed")
		case !written:
			entry.Debug("cart changed concurrently, prune skipped")
		default:
			entry.Info("cart pruned")
		}
		cart.Items = valid
	}
	return buildView(cart, byID), nil
}

// Lines returns the cart joined with live products, skipping vanished ones.
func (s *Service) Lines(ctx context.Context, userID primitive.ObjectID) ([]Line, error) {
	cart, err := s.carts.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	byID, err := s.loadProducts(ctx, cart.Items)
	if err != nil {
		return nil, err
	}
	lines := make([]Line, 0, len(cart.Items))
	for _, item := range cart.Items {
		if p, ok := byID[item.Product]; ok {
			lines = append(lines, Line{Product: p, Quantity: item.Quantity})
		}
	}
	return lines, nil
}

// UpdateItem sets the quantity of one product. The quantity may not exceed
// the product's current stock.
func (s *Service) UpdateItem(ctx context.Context, userID primitive.ObjectID, productID string, quantity int) (*View, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(productID))
	if err != nil || quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.products.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if quantity > product.Stock {
		return nil, apperr.BadRequest(fmt.Sprintf("only %d is left in the inventory", product.Stock)).
			WithDetails(map[string]any{"productId": id.Hex(), "available": product.Stock, "requested": quantity})
	}

	cart, err := s.carts.SetItemQuantity(ctx, userID, id, quantity)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.populate(ctx, cart)
}

func (s *Service) RemoveItem(ctx context.Context, userID primitive.ObjectID, productID string) (*View, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(productID))
	if err != nil {
		return nil, apperr.BadRequest("invalid productId")
	}
	cart, err := s.carts.RemoveItem(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.populate(ctx, cart)
}

func (s *Service) Clear(ctx context.Context, userID primitive.ObjectID) error {
	if err := s.carts.Clear(ctx, userID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *Service) populate(ctx context.Context, cart *models.Cart) (*View, error) {
	byID, err := s.loadProducts(ctx, cart.Items)
	if err != nil {
		return nil, err
	}
	return buildView(cart, byID), nil
}

func (s *Service) loadProducts(ctx context.Context, items []models.CartItem) (map[primitive.ObjectID]models.Product, error) {
	ids := make([]primitive.ObjectID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Product)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return indexProducts(products), nil
}

func indexProducts(products []models.Product) map[primitive.ObjectID]models.Product {
	out := make(map[primitive.ObjectID]models.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out
}

func emptyView(userID primitive.ObjectID) *View {
	return &View{UserID: userID, Items: []ItemView{}}
}

func buildView(cart *models.Cart, products map[primitive.ObjectID]models.Product) *View {
	view := &View{ID: cart.ID, UserID: cart.UserID, Items: make([]ItemView, 0, len(cart.Items))}
	lines := make([]pricing.Line, 0, len(cart.Items))
	for _, item := range cart.Items {
		p, ok := products[item.Product]
		if !ok {
			continue
		}
		view.Items = append(view.Items, ItemView{Product: p.Summary(), Quantity: item.Quantity})
		view.Summary.TotalItem += item.Quantity
		lines = append(lines, pricing.Line{UnitPrice: p.Price, Quantity: item.Quantity})
	}
	view.Summary.ItemCount = len(view.Items)
	view.Summary.TotalPrice = pricing.Subtotal(lines)
	return view
}
