package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/database"
	"storefront/internal/models"
)

type RefreshTokens struct {
	coll *mongo.Collection
}

func NewRefreshTokens(db *mongo.Database) *RefreshTokens {
	return &RefreshTokens{coll: db.Collection(database.RefreshTokensCollection)}
}

func (r *RefreshTokens) Insert(ctx context.Context, token *models.RefreshToken) error {
	if token.ID.IsZero() {
		token.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, token)
	return duplicate(err)
}

// FindActive returns the non-revoked token with the given hash.
func (r *RefreshTokens) FindActive(ctx context.Context, hash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := r.coll.FindOne(ctx, bson.M{"tokenHash": hash, "revoked": false}).Decode(&token); err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}

// Revoke marks the token revoked, recording its successor when replacedBy
// is set. ErrNotFound means it was already revoked.
func (r *RefreshTokens) Revoke(ctx context.Context, id primitive.ObjectID, replacedBy *primitive.ObjectID) error {
	set := bson.M{"revoked": true, "revokedAt": time.Now()}
	if replacedBy != nil {
		set["replacedByToken"] = *replacedBy
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "revoked": false}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RefreshTokens) RevokeByHash(ctx context.Context, hash string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"tokenHash": hash, "revoked": false},
		bson.M{"$set": bson.M{"revoked": true, "revokedAt": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
