package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names shared by the store and the index bootstrap.
const (
	ProductsCollection      = "products"
	CategoriesCollection    = "categories"
	UsersCollection         = "users"
	CartsCollection         = "carts"
	OrdersCollection        = "orders"
	OrderItemsCollection    = "orderitems"
	RefreshTokensCollection = "refresh_tokens"
)

// ErrRequiredIndex marks a failure on an index that correctness depends on.
// The API must not serve traffic without it.
var ErrRequiredIndex = errors.New("required index missing")

type indexSpec struct {
	collection string
	model      mongo.IndexModel
	required   bool
}

func indexSpecs() []indexSpec {
	return []indexSpec{
		{ProductsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetName("slug_unique").SetUnique(true),
		}, false},
		{ProductsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name_index"),
		}, false},
		{ProductsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "price", Value: 1}},
			Options: options.Index().SetName("category_price"),
		}, false},
		{CategoriesCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetName("category_slug_unique").SetUnique(true),
		}, false},
		{UsersCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		}, true},
		// One cart per user; the cart upserts rely on it.
		{CartsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("userId_unique").SetUnique(true),
		}, true},
		// The session id is the idempotency key for checkout reconciliation.
		{OrdersCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "stripeSessionId", Value: 1}},
			Options: options.Index().SetName("stripeSessionId_unique").SetUnique(true),
		}, true},
		{OrdersCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "customer", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("customer_createdAt"),
		}, false},
		{OrderItemsCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "order", Value: 1}},
			Options: options.Index().SetName("order_index"),
		}, false},
		{RefreshTokensCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "tokenHash", Value: 1}},
			Options: options.Index().SetName("tokenHash_unique").SetUnique(true),
		}, false},
		{RefreshTokensCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("expiresAt_ttl").SetExpireAfterSeconds(0),
		}, false},
	}
}

// EnsureIndexes creates every index the store relies on. It keeps going after
// a failure and returns all of them joined. Failures on required indexes wrap
// ErrRequiredIndex.
func EnsureIndexes(db *mongo.Database, logger logrus.FieldLogger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var errs []error
	for _, idx := range indexSpecs() {
		name := ""
		if idx.model.Options != nil && idx.model.Options.Name != nil {
			name = *idx.model.Options.Name
		}
		entry := logger.WithFields(logrus.Fields{"collection": idx.collection, "index": name, "required": idx.required})

		if _, err := db.Collection(idx.collection).Indexes().CreateOne(ctx, idx.model); err != nil {
			if idx.required {
				entry.WithError(err).Error("required index creation failed")
				errs = append(errs, fmt.Errorf("%w: %s.%s: %v", ErrRequiredIndex, idx.collection, name, err))
				continue
			}
			entry.WithError(err).Warn("index creation failed")
			errs = append(errs, fmt.Errorf("%s.%s: %w", idx.collection, name, err))
			continue
		}
		entry.Debug("index ensured")
	}
	return errors.Join(errs...)
}
