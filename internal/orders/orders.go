// Package orders serves order reads and the administrative status machine.
package orders

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/store"
)

var (
	ErrOrderNotFound = apperr.NotFound("Order not found")
	ErrInvalidID     = apperr.BadRequest("invalid order id")
)

type Repository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	FindForCustomer(ctx context.Context, customer, id primitive.ObjectID) (*models.Order, error)
	ListByCustomer(ctx context.Context, customer primitive.ObjectID) ([]models.Order, error)
	List(ctx context.Context, f store.OrderFilter, page, limit int64) ([]models.Order, int64, error)
	ItemsFor(ctx context.Context, orderIDs []primitive.ObjectID) (map[primitive.ObjectID][]models.OrderItem, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string, deliveredAt *time.Time) (*models.Order, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type UserReader interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

type Service struct {
	repo   Repository
	users  UserReader
	policy TransitionPolicy
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(repo Repository, users UserReader, policy TransitionPolicy, logger logrus.FieldLogger) *Service {
	return &Service{
		repo:   repo,
		users:  users,
		policy: policy,
		log:    logging.Module(logger, "orders"),
		now:    time.Now,
	}
}

type Page struct {
	Orders     []models.OrderView `json:"orders"`
	Total      int64              `json:"total"`
	Page       int64              `json:"page"`
	Limit      int64              `json:"limit"`
	TotalPages int64              `json:"totalPages"`
}

func (s *Service) ListMine(ctx context.Context, userID primitive.ObjectID) ([]models.OrderView, error) {
	list, err := s.repo.ListByCustomer(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.populate(ctx, list)
}

func (s *Service) GetMine(ctx context.Context, userID primitive.ObjectID, orderID string) (*models.OrderView, error) {
	id, err := parseID(orderID)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.FindForCustomer(ctx, userID, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return s.View(ctx, order)
}

// ListAll pages through every order, optionally filtered by status.
func (s *Service) ListAll(ctx context.Context, page, limit int64, status string) (*Page, error) {
	filter := store.OrderFilter{}
	if strings.TrimSpace(status) != "" {
		parsed, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = string(parsed)
	}

	list, total, err := s.repo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	views, err := s.populate(ctx, list)
	if err != nil {
		return nil, err
	}
	return &Page{
		Orders:     views,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int64(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*models.OrderView, error) {
	id, err := parseID(orderID)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return s.View(ctx, order)
}

// UpdateStatus moves an order to a new status under the configured policy.
// Moving to delivered stamps the delivery time.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (*models.OrderView, error) {
	id, err := parseID(orderID)
	if err != nil {
		return nil, err
	}
	next, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if err := s.policy.Check(Status(current.OrderStatus), next); err != nil {
		return nil, err
	}

	var deliveredAt *time.Time
	if next == StatusDelivered {
		now := s.now()
		deliveredAt = &now
	}
	updated, err := s.repo.UpdateStatus(ctx, id, string(next), deliveredAt)
	if err != nil {
		return nil, mapNotFound(err)
	}

	s.log.WithFields(logrus.Fields{
		"orderId": id.Hex(),
		"from":    current.OrderStatus,
		"to":      next,
	}).Info("order status updated")
	return s.View(ctx, updated)
}

func (s *Service) Delete(ctx context.Context, orderID string) error {
	id, err := parseID(orderID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapNotFound(err)
	}
	s.log.WithField("orderId", id.Hex()).Info("order deleted")
	return nil
}

// View populates one order with its item snapshots and customer summary.
func (s *Service) View(ctx context.Context, order *models.Order) (*models.OrderView, error) {
	views, err := s.populate(ctx, []models.Order{*order})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *Service) populate(ctx context.Context, list []models.Order) ([]models.OrderView, error) {
	views := make([]models.OrderView, 0, len(list))
	if len(list) == 0 {
		return views, nil
	}

	ids := make([]primitive.ObjectID, 0, len(list))
	for _, o := range list {
		ids = append(ids, o.ID)
	}
	items, err := s.repo.ItemsFor(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	customers := map[primitive.ObjectID]*models.CustomerSummary{}
	for _, o := range list {
		if _, seen := customers[o.Customer]; seen || s.users == nil {
			continue
		}
		user, err := s.users.FindByID(ctx, o.Customer)
		switch {
		case err == nil:
			customers[o.Customer] = &models.CustomerSummary{ID: user.ID, FullName: user.FullName, Email: user.Email}
		case errors.Is(err, store.ErrNotFound):
			customers[o.Customer] = nil
		default:
			return nil, apperr.Internal(err)
		}
	}

	for _, o := range list {
		orderItems := items[o.ID]
		if orderItems == nil {
			orderItems = []models.OrderItem{}
		}
		if o.OrderItems == nil {
			o.OrderItems = []primitive.ObjectID{}
		}
		views = append(views, models.OrderView{Order: o, Items: orderItems, CustomerInfo: customers[o.Customer]})
	}
	return views, nil
}

func parseID(raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return id, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrOrderNotFound
	}
	return apperr.Internal(err)
}
