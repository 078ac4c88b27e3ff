package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/database"
	"storefront/internal/models"
)

// StockDecrement is one conditional stock adjustment applied with an order.
type StockDecrement struct {
	ProductID primitive.ObjectID
	Quantity  int
}

type OrderFilter struct {
	Status string
}

type Orders struct {
	client *mongo.Client
	orders *mongo.Collection
	items  *mongo.Collection
	prods  *mongo.Collection
}

func NewOrders(db *mongo.Database) *Orders {
	return &Orders{
		client: db.Client(),
		orders: db.Collection(database.OrdersCollection),
		items:  db.Collection(database.OrderItemsCollection),
		prods:  db.Collection(database.ProductsCollection),
	}
}

// CreateWithItems applies the stock decrements and inserts the order with its
// item snapshots in one transaction. A decrement that would take stock below
// zero is skipped and recorded on the order as a shortage; the paid order is
// still written. The session id on the order is unique: when another writer
// already stored it, the existing order is returned with created=false and
// nothing is written.
func (r *Orders) CreateWithItems(ctx context.Context, order models.Order, items []models.OrderItem, decrements []StockDecrement) (*models.Order, bool, error) {
	session, err := r.client.StartSession()
	if err != nil {
		return nil, false, err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		shortages, err := r.decrementStock(sc, decrements)
		if err != nil {
			return nil, err
		}

		order.ID = primitive.NewObjectID()
		order.StockShortages = shortages
		order.OrderItems = make([]primitive.ObjectID, 0, len(items))
		docs := make([]interface{}, 0, len(items))
		for i := range items {
			items[i].ID = primitive.NewObjectID()
			items[i].Order = order.ID
			order.OrderItems = append(order.OrderItems, items[i].ID)
			docs = append(docs, items[i])
		}

		if _, err := r.orders.InsertOne(sc, order); err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			if _, err := r.items.InsertMany(sc, docs); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err == nil {
		return &order, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, err
	}

	existing, ferr := r.FindBySessionID(ctx, order.StripeSessionID)
	if ferr != nil {
		return nil, false, fmt.Errorf("order for session %s exists but could not be loaded: %w", order.StripeSessionID, ferr)
	}
	return existing, false, nil
}

// decrementStock only takes stock that is there ({stock: {$gte: qty}}).
// Lines that cannot be covered come back as shortages.
func (r *Orders) decrementStock(ctx context.Context, decrements []StockDecrement) ([]models.StockShortage, error) {
	var shortages []models.StockShortage
	for _, d := range decrements {
		res, err := r.prods.UpdateOne(ctx,
			bson.M{"_id": d.ProductID, "stock": bson.M{"$gte": d.Quantity}},
			bson.M{"$inc": bson.M{"stock": -d.Quantity}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			shortages = append(shortages, models.StockShortage{Product: d.ProductID, Requested: d.Quantity})
		}
	}
	return shortages, nil
}

func (r *Orders) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"stripeSessionId": sessionID})
}

func (r *Orders) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *Orders) FindForCustomer(ctx context.Context, customer, id primitive.ObjectID) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id, "customer": customer})
}

func (r *Orders) ListByCustomer(ctx context.Context, customer primitive.ObjectID) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.find(ctx, bson.M{"customer": customer}, opts)
}

// List returns one page of all orders, newest first, with the total count.
func (r *Orders) List(ctx context.Context, f OrderFilter, page, limit int64) ([]models.Order, int64, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["orderStatus"] = f.Status
	}
	total, err := r.orders.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	orders, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ItemsFor loads the item snapshots of every given order keyed by order id.
func (r *Orders) ItemsFor(ctx context.Context, orderIDs []primitive.ObjectID) (map[primitive.ObjectID][]models.OrderItem, error) {
	out := make(map[primitive.ObjectID][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	cursor, err := r.items.Find(ctx,
		bson.M{"order": bson.M{"$in": orderIDs}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []models.OrderItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.Order] = append(out[item.Order], item)
	}
	return out, nil
}

// UpdateStatus sets the order status. A non-nil deliveredAt is stamped too.
func (r *Orders) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string, deliveredAt *time.Time) (*models.Order, error) {
	set := bson.M{"orderStatus": status, "updatedAt": time.Now()}
	if deliveredAt != nil {
		set["deliveredAt"] = *deliveredAt
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var order models.Order
	if err := r.orders.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&order); err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// Delete removes an order and its item snapshots together.
func (r *Orders) Delete(ctx context.Context, id primitive.ObjectID) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := r.orders.DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return nil, err
		}
		if res.DeletedCount == 0 {
			return nil, ErrNotFound
		}
		_, err = r.items.DeleteMany(sc, bson.M{"order": id})
		return nil, err
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *Orders) findOne(ctx context.Context, filter bson.M) (*models.Order, error) {
	var order models.Order
	if err := r.orders.FindOne(ctx, filter).Decode(&order); err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *Orders) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Order, error) {
	cursor, err := r.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
