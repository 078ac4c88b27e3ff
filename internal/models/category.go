package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Category groups products; products reference it by id.
type Category struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Slug        string             `bson:"slug" json:"slug"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	IsActive    *bool              `bson:"isActive,omitempty" json:"isActive,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}
