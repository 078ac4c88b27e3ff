// Package address maintains the address book embedded in each user. A
// non-empty address book always has exactly one default address.
package address

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/store"
)

var (
	ErrUserNotFound    = apperr.NotFound("User not found")
	ErrAddressNotFound = apperr.NotFound("Address not found")
	ErrMissingFields   = apperr.BadRequest("All required address fields must be provided")
	ErrInvalidType     = apperr.BadRequest("address type must be one of: billing, shipping, both")
	ErrLastAddress     = apperr.BadRequest("At least one address is required")
	ErrConcurrentEdit  = apperr.Conflict("Address book was modified concurrently, please retry")
)

const writeAttempts = 3

type Repository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	ReplaceAddresses(ctx context.Context, userID primitive.ObjectID, readAt time.Time, addresses []models.Address) (time.Time, error)
}

// Input carries address fields from a request. Empty strings mean "not
// provided"; IsDefault is nil when absent.
type Input struct {
	Type        string `json:"type"`
	FullName    string `json:"fullname"`
	Street      string `json:"street"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postalCode"`
	Country     string `json:"country"`
	PhoneNumber string `json:"phoneNumber"`
	IsDefault   *bool  `json:"isDefault"`
}

type Service struct {
	repo       Repository
	requireOne bool
	log        logrus.FieldLogger
	newID      func() string
}

// NewService builds the address service. With requireOne the last address
// of a user cannot be deleted.
func NewService(repo Repository, requireOne bool, logger logrus.FieldLogger) *Service {
	return &Service{
		repo:       repo,
		requireOne: requireOne,
		log:        logging.Module(logger, "address"),
		newID:      uuid.NewString,
	}
}

func (s *Service) List(ctx context.Context, userID primitive.ObjectID) ([]models.Address, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return nonNil(user.Addresses), nil
}

func (s *Service) Get(ctx context.Context, userID primitive.ObjectID, addressID string) (*models.Address, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	i := indexOf(user.Addresses, addressID)
	if i < 0 {
		return nil, ErrAddressNotFound
	}
	addr := user.Addresses[i]
	return &addr, nil
}

// Add appends an address. The first address always becomes the default;
// a later one marked default takes the flag from the others.
func (s *Service) Add(ctx context.Context, userID primitive.ObjectID, in Input) ([]models.Address, *models.Address, error) {
	in = in.trimmed()
	if missing := in.missingFields(); len(missing) > 0 {
		return nil, nil, ErrMissingFields.WithDetails(map[string]any{"missing": missing})
	}
	kind, err := parseType(in.Type)
	if err != nil {
		return nil, nil, err
	}

	created := models.Address{
		ID:          s.newID(),
		Type:        kind,
		FullName:    in.FullName,
		Street:      in.Street,
		City:        in.City,
		State:       in.State,
		PostalCode:  in.PostalCode,
		Country:     in.Country,
		PhoneNumber: in.PhoneNumber,
	}
	wantDefault := in.IsDefault != nil && *in.IsDefault

	addrs, err := s.mutate(ctx, userID, func(addrs []models.Address) ([]models.Address, error) {
		entry := created
		entry.IsDefault = wantDefault || len(addrs) == 0
		if entry.IsDefault {
			clearDefault(addrs)
		}
		return append(addrs, entry), nil
	})
	if err != nil {
		return nil, nil, err
	}
	i := indexOf(addrs, created.ID)
	result := addrs[i]
	s.log.WithFields(logrus.Fields{"userId": userID.Hex(), "addressId": created.ID, "default": result.IsDefault}).Info("address added")
	return addrs, &result, nil
}

// Update changes the provided fields only. isDefault=true moves the default
// to this address; false is ignored.
func (s *Service) Update(ctx context.Context, userID primitive.ObjectID, addressID string, in Input) ([]models.Address, error) {
	in = in.trimmed()
	var kind string
	if in.Type != "" {
		parsed, err := parseType(in.Type)
		if err != nil {
			return nil, err
		}
		kind = parsed
	}

	addrs, err := s.mutate(ctx, userID, func(addrs []models.Address) ([]models.Address, error) {
		i := indexOf(addrs, addressID)
		if i < 0 {
			return nil, ErrAddressNotFound
		}
		a := &addrs[i]
		setIfPresent(&a.Type, kind)
		setIfPresent(&a.FullName, in.FullName)
		setIfPresent(&a.Street, in.Street)
		setIfPresent(&a.City, in.City)
		setIfPresent(&a.State, in.State)
		setIfPresent(&a.PostalCode, in.PostalCode)
		setIfPresent(&a.Country, in.Country)
		setIfPresent(&a.PhoneNumber, in.PhoneNumber)
		if in.IsDefault != nil && *in.IsDefault {
			clearDefault(addrs)
			addrs[i].IsDefault = true
		}
		return addrs, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"userId": userID.Hex(), "addressId": addressID}).Info("address updated")
	return addrs, nil
}

// Delete removes an address. Removing the default promotes the first
// remaining address.
func (s *Service) Delete(ctx context.Context, userID primitive.ObjectID, addressID string) ([]models.Address, error) {
	addrs, err := s.mutate(ctx, userID, func(addrs []models.Address) ([]models.Address, error) {
		i := indexOf(addrs, addressID)
		if i < 0 {
			return nil, ErrAddressNotFound
		}
		if s.requireOne && len(addrs) == 1 {
			return nil, ErrLastAddress
		}
		return append(addrs[:i], addrs[i+1:]...), nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"userId": userID.Hex(), "addressId": addressID}).Info("address deleted")
	return addrs, nil
}

// mutate applies fn to a fresh copy of the address book and writes it back
// guarded by the user's updatedAt, retrying when another write got there first.
func (s *Service) mutate(ctx context.Context, userID primitive.ObjectID, fn func([]models.Address) ([]models.Address, error)) ([]models.Address, error) {
	for attempt := 0; attempt < writeAttempts; attempt++ {
		user, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		next, err := fn(append([]models.Address{}, user.Addresses...))
		if err != nil {
			return nil, err
		}
		next = ensureSingleDefault(next)

		_, err = s.repo.ReplaceAddresses(ctx, userID, user.UpdatedAt, next)
		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, store.ErrStale):
			s.log.WithField("userId", userID.Hex()).Debug("address book changed during write, retrying")
			continue
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrUserNotFound
		default:
			return nil, apperr.Internal(err)
		}
	}
	return nil, ErrConcurrentEdit
}

func (s *Service) load(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// ensureSingleDefault keeps the first default and, when there is none,
// promotes the first address.
func ensureSingleDefault(addrs []models.Address) []models.Address {
	addrs = nonNil(addrs)
	found := false
	for i := range addrs {
		if addrs[i].IsDefault {
			if found {
				addrs[i].IsDefault = false
			}
			found = true
		}
	}
	if !found && len(addrs) > 0 {
		addrs[0].IsDefault = true
	}
	return addrs
}

func clearDefault(addrs []models.Address) {
	for i := range addrs {
		addrs[i].IsDefault = false
	}
}

func indexOf(addrs []models.Address, id string) int {
	id = strings.TrimSpace(id)
	for i, a := range addrs {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func parseType(raw string) (string, error) {
	switch strings.ToLower(raw) {
	case "":
		return models.AddressTypeShipping, nil
	case models.AddressTypeBilling, models.AddressTypeShipping, models.AddressTypeBoth:
		return strings.ToLower(raw), nil
	default:
		return "", ErrInvalidType
	}
}

func setIfPresent(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func nonNil(addrs []models.Address) []models.Address {
	if addrs == nil {
		return []models.Address{}
	}
	return addrs
}

func (in Input) trimmed() Input {
	in.Type = strings.TrimSpace(in.Type)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Street = strings.TrimSpace(in.Street)
	in.City = strings.TrimSpace(in.City)
	in.State = strings.TrimSpace(in.State)
	in.PostalCode = strings.TrimSpace(in.PostalCode)
	in.Country = strings.TrimSpace(in.Country)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	return in
}

func (in Input) missingFields() []string {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"fullname", in.FullName},
		{"street", in.Street},
		{"city", in.City},
		{"state", in.State},
		{"postalCode", in.PostalCode},
		{"country", in.Country},
		{"phoneNumber", in.PhoneNumber},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}
