package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/database"
	"storefront/internal/models"
)

// Carts applies every mutation as a single-document atomic update so
// concurrent requests for the same user never overwrite each other's items.
type Carts struct {
	coll *mongo.Collection
}

func NewCarts(db *mongo.Database) *Carts {
	return &Carts{coll: db.Collection(database.CartsCollection)}
}

func (r *Carts) Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.coll.FindOne(ctx, bson.M{"userId": userID}).Decode(&cart); err != nil {
		return nil, notFound(err)
	}
	return &cart, nil
}

// Replace sets the whole item list, creating the cart on first use.
func (r *Carts) Replace(ctx context.Context, userID primitive.ObjectID, items []models.CartItem) (*models.Cart, error) {
	if items == nil {
		items = []models.CartItem{}
	}
	now := time.Now()
	update := bson.M{
		"$set":         bson.M{"items": items, "updatedAt": now},
		"$setOnInsert": bson.M{"userId": userID, "createdAt": now},
	}
	return r.findOneAndUpdate(ctx, bson.M{"userId": userID}, update, true)
}

// SetItemQuantity updates the quantity of one cart entry in place, or
// appends the entry when the product is not in the cart yet.
func (r *Carts) SetItemQuantity(ctx context.Context, userID, productID primitive.ObjectID, quantity int) (*models.Cart, error) {
	now := time.Now()
	cart, err := r.findOneAndUpdate(ctx,
		bson.M{"userId": userID, "items.product": productID},
		bson.M{"$set": bson.M{"items.$.quantity": quantity, "updatedAt": now}},
		false,
	)
	if !errors.Is(err, ErrNotFound) {
		return cart, err
	}

	cart, err = r.findOneAndUpdate(ctx,
		bson.M{"userId": userID, "items.product": bson.M{"$ne": productID}},
		bson.M{
			"$push":        bson.M{"items": models.CartItem{Product: productID, Quantity: quantity}},
			"$set":         bson.M{"updatedAt": now},
			"$setOnInsert": bson.M{"userId": userID, "createdAt": now},
		},
		true,
	)
	if errors.Is(err, ErrDuplicate) {
		// Lost a race with a concurrent push of the same product.
		return r.findOneAndUpdate(ctx,
			bson.M{"userId": userID, "items.product": productID},
			bson.M{"$set": bson.M{"items.$.quantity": quantity, "updatedAt": now}},
			false,
		)
	}
	return cart, err
}

func (r *Carts) RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) (*models.Cart, error) {
	return r.findOneAndUpdate(ctx,
		bson.M{"userId": userID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"product": productID}},
			"$set":  bson.M{"updatedAt": time.Now()},
		},
		false,
	)
}

// Clear empties the cart. A user without a cart is not an error.
func (r *Carts) Clear(ctx context.Context, userID primitive.ObjectID) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"userId": userID},
		bson.M{"$set": bson.M{"items": []models.CartItem{}, "updatedAt": time.Now()}},
	)
	return err
}

// Prune writes back a filtered item list only if the cart was not modified
// since it was read. It reports whether the write happened.
func (r *Carts) Prune(ctx context.Context, cart *models.Cart, items []models.CartItem) (bool, error) {
	if items == nil {
		items = []models.CartItem{}
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": cart.ID, "updatedAt": cart.UpdatedAt},
		bson.M{"$set": bson.M{"items": items, "updatedAt": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r *Carts) findOneAndUpdate(ctx context.Context, filter, update bson.M, upsert bool) (*models.Cart, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(upsert)
	var cart models.Cart
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cart); err != nil {
		return nil, duplicate(notFound(err))
	}
	return &cart, nil
}
