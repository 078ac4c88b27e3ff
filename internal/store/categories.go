package store

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/database"
	"storefront/internal/models"
)

type Categories struct {
	coll *mongo.Collection
}

func NewCategories(db *mongo.Database) *Categories {
	return &Categories{coll: db.Collection(database.CategoriesCollection)}
}

// activeOnly keeps categories without an isActive flag visible.
var activeOnly = bson.M{"isActive": bson.M{"$ne": false}}

// List returns the active categories sorted by name.
func (r *Categories) List(ctx context.Context) ([]models.Category, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.coll.Find(ctx, activeOnly, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	categories := []models.Category{}
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *Categories) FindBySlug(ctx context.Context, slug string) (*models.Category, error) {
	filter := bson.M{
		"slug":     strings.ToLower(strings.TrimSpace(slug)),
		"isActive": activeOnly["isActive"],
	}
	var category models.Category
	if err := r.coll.FindOne(ctx, filter).Decode(&category); err != nil {
		return nil, notFound(err)
	}
	return &category, nil
}
