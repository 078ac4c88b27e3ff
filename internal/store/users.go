package store

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/database"
	"storefront/internal/models"
)

type Users struct {
	coll *mongo.Collection
}

func NewUsers(db *mongo.Database) *Users {
	return &Users{coll: db.Collection(database.UsersCollection)}
}

// Create inserts the user and fills in its id. ErrDuplicate means the email
// is already registered.
func (r *Users) Create(ctx context.Context, user *models.User) error {
	if user.Addresses == nil {
		user.Addresses = []models.Address{}
	}
	res, err := r.coll.InsertOne(ctx, user)
	if err != nil {
		return duplicate(err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = id
	}
	return nil
}

func (r *Users) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *Users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

// ProfileUpdate carries the user fields to overwrite. Empty fields are kept.
type ProfileUpdate struct {
	FullName     string
	Email        string
	PasswordHash string
}

// UpdateProfile applies u and returns the updated user. ErrDuplicate means
// the new email belongs to another account.
func (r *Users) UpdateProfile(ctx context.Context, id primitive.ObjectID, u ProfileUpdate) (*models.User, error) {
	set := bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)}
	if u.FullName != "" {
		set["fullname"] = u.FullName
	}
	if u.Email != "" {
		set["email"] = strings.ToLower(strings.TrimSpace(u.Email))
	}
	if u.PasswordHash != "" {
		set["passwordHash"] = u.PasswordHash
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user); err != nil {
		return nil, duplicate(notFound(err))
	}
	return &user, nil
}

// ReplaceAddresses swaps the embedded address list if the user document still
// carries the updatedAt the caller read. It returns the new updatedAt.
func (r *Users) ReplaceAddresses(ctx context.Context, userID primitive.ObjectID, readAt time.Time, addresses []models.Address) (time.Time, error) {
	if addresses == nil {
		addresses = []models.Address{}
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID, "updatedAt": readAt},
		bson.M{"$set": bson.M{"addresses": addresses, "updatedAt": now}},
	)
	if err != nil {
		return time.Time{}, err
	}
	if res.MatchedCount == 0 {
		count, err := r.coll.CountDocuments(ctx, bson.M{"_id": userID})
		if err != nil {
			return time.Time{}, err
		}
		if count == 0 {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, ErrStale
	}
	return now, nil
}

func (r *Users) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}
