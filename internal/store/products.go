package store

import (
	"context"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/database"
	"storefront/internal/models"
)

type Products struct {
	coll *mongo.Collection
}

func NewProducts(db *mongo.Database) *Products {
	return &Products{coll: db.Collection(database.ProductsCollection)}
}

// FindByIDs fetches every product in ids with a single query. Missing ids are
// simply absent from the result.
func (r *Products) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	cursor, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *Products) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *Products) FindBySlug(ctx context.Context, slug string) (*models.Product, error) {
	return r.findOne(ctx, bson.M{"slug": strings.ToLower(strings.TrimSpace(slug))})
}

// FindByName matches the product name exactly, ignoring case.
func (r *Products) FindByName(ctx context.Context, name string) (*models.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNotFound
	}
	pattern := "^" + regexp.QuoteMeta(name) + "$"
	return r.findOne(ctx, bson.M{"name": primitive.Regex{Pattern: pattern, Options: "i"}})
}

// ProductFilter narrows a catalog listing. Zero values match everything.
type ProductFilter struct {
	Search   string
	Category *primitive.ObjectID
	MinPrice *float64
	MaxPrice *float64
}

func (f ProductFilter) query() bson.M {
	filter := bson.M{}
	if search := strings.TrimSpace(f.Search); search != "" {
		filter["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
	}
	if f.Category != nil {
		filter["category"] = *f.Category
	}
	if f.MinPrice != nil || f.MaxPrice != nil {
		price := bson.M{}
		if f.MinPrice != nil {
			price["$gte"] = *f.MinPrice
		}
		if f.MaxPrice != nil {
			price["$lte"] = *f.MaxPrice
		}
		filter["price"] = price
	}
	return filter
}

// List returns one page of the catalog, newest first, and the total match count.
func (r *Products) List(ctx context.Context, f ProductFilter, page, limit int64) ([]models.Product, int64, error) {
	filter := f.query()

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *Products) findOne(ctx context.Context, filter bson.M) (*models.Product, error) {
	var product models.Product
	if err := r.coll.FindOne(ctx, filter).Decode(&product); err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}
