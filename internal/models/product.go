package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Product struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Slug        string             `bson:"slug" json:"slug"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Price       float64            `bson:"price" json:"price"`
	Stock       int                `bson:"stock" json:"stock"`
	Category    primitive.ObjectID `bson:"category,omitempty" json:"category,omitempty"`
	Images      ImageList          `bson:"images" json:"images"`
	Tags        []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (p Product) PrimaryImage() string {
	return p.Images.First()
}

// ProductSummary is the subset of a product embedded in cart responses.
type ProductSummary struct {
	ID     primitive.ObjectID `json:"id"`
	Name   string             `json:"name"`
	Slug   string             `json:"slug"`
	Price  float64            `json:"price"`
	Images []string           `json:"images"`
	Stock  int                `json:"stock"`
}

func (p Product) Summary() ProductSummary {
	return ProductSummary{
		ID:     p.ID,
		Name:   p.Name,
		Slug:   p.Slug,
		Price:  p.Price,
		Images: p.Images.Strings(),
		Stock:  p.Stock,
	}
}
