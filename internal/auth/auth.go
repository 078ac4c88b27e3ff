// Package auth registers customers and issues access and refresh tokens.
// Refresh tokens are opaque random strings stored only as SHA-256 hashes and
// rotated on every use.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/apperr"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/store"
)

var (
	ErrMissingFields       = apperr.BadRequest("fullname, email and password are required")
	ErrMissingCredentials  = apperr.BadRequest("Email and password are required and cannot be empty")
	ErrEmailTaken          = apperr.Conflict("User already exists. Please login instead")
	ErrInvalidCredentials  = apperr.Unauthorized("invalid credentials")
	ErrMissingRefreshToken = apperr.BadRequest("Refresh token is required")
	ErrInvalidRefreshToken = apperr.Unauthorized("invalid refresh token")
	ErrRefreshTokenExpired = apperr.Unauthorized("refresh token expired")
	ErrUserNotFound        = apperr.NotFound("User not found")
	ErrNothingToUpdate     = apperr.BadRequest("At least one field (fullname, email, password) must be provided to update")
	ErrOldPasswordRequired = apperr.BadRequest("Old password is required to set new one")
	ErrIncorrectPassword   = apperr.Unauthorized("Incorrect old password")
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, u store.ProfileUpdate) (*models.User, error)
}

type TokenStore interface {
	Insert(ctx context.Context, token *models.RefreshToken) error
	FindActive(ctx context.Context, hash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id primitive.ObjectID, replacedBy *primitive.ObjectID) error
	RevokeByHash(ctx context.Context, hash string) error
}

type Options struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Service struct {
	users  UserStore
	tokens TokenStore
	opts   Options
	log    logrus.FieldLogger
	now    func() time.Time
}

type RegisterInput struct {
	FullName string `json:"fullname" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// ProfileInput changes any of the account fields. A new password needs the
// current one.
type ProfileInput struct {
	FullName    string `json:"fullname"`
	Email       string `json:"email" binding:"omitempty,email"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword" binding:"omitempty,min=8"`
}

// Session is what a successful login, register or refresh hands back.
type Session struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
	User         *models.User `json:"user"`

	refreshID primitive.ObjectID
}

func NewService(users UserStore, tokens TokenStore, opts Options, logger logrus.FieldLogger) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:  users,
		tokens: tokens,
		opts:   opts,
		log:    logging.Module(logger, "auth"),
		now:    time.Now,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.FullName)
	if email == "" || name == "" || strings.TrimSpace(in.Password) == "" {
		return nil, ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     name,
		Role:         models.RoleCustomer,
		Addresses:    []models.Address{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, apperr.Internal(err)
	}

	s.log.WithField("userId", user.ID.Hex()).Info("user registered")
	return s.issue(ctx, user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, ErrMissingCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.WithField("userId", user.ID.Hex()).Warn("login rejected: wrong password")
		return nil, ErrInvalidCredentials
	}

	s.log.WithField("userId", user.ID.Hex()).Info("login succeeded")
	return s.issue(ctx, user)
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked and points at its replacement; presenting it again fails.
func (s *Service) Refresh(ctx context.Context, plain string) (*Session, error) {
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return nil, ErrMissingRefreshToken
	}

	current, err := s.tokens.FindActive(ctx, hashToken(plain))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if current.Expired(s.now()) {
		if err := s.tokens.Revoke(ctx, current.ID, nil); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.WithError(err).Warn("failed to revoke expired refresh token")
		}
		return nil, ErrRefreshTokenExpired
	}

	user, err := s.users.FindByID(ctx, current.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	next, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Revoke(ctx, current.ID, &next.refreshID); err != nil {
		// Lost a race with another refresh of the same token: withdraw ours.
		_ = s.tokens.Revoke(ctx, next.refreshID, nil)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, apperr.Internal(err)
	}
	return next, nil
}

func (s *Service) Logout(ctx context.Context, plain string) error {
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return ErrMissingRefreshToken
	}
	err := s.tokens.RevokeByHash(ctx, hashToken(plain))
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidRefreshToken
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *Service) Me(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID primitive.ObjectID, in ProfileInput) (*models.User, error) {
	update := store.ProfileUpdate{
		FullName: strings.TrimSpace(in.FullName),
		Email:    normalizeEmail(in.Email),
	}
	if update.FullName == "" && update.Email == "" && in.OldPassword == "" && in.NewPassword == "" {
		return nil, ErrNothingToUpdate
	}
	entry := s.log.WithField("userId", userID.Hex())

	if in.NewPassword != "" {
		if in.OldPassword == "" {
			return nil, ErrOldPasswordRequired
		}
		current, err := s.Me(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(current.PasswordHash), []byte(in.OldPassword)); err != nil {
			entry.Warn("profile update rejected: wrong old password")
			return nil, ErrIncorrectPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.opts.BcryptCost)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		update.PasswordHash = string(hash)
	}

	if update == (store.ProfileUpdate{}) {
		return s.Me(ctx, userID)
	}

	user, err := s.users.UpdateProfile(ctx, userID, update)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	entry.WithFields(logrus.Fields{
		"email":    update.Email != "",
		"password": update.PasswordHash != "",
	}).Info("profile updated")
	return user, nil
}

func (s *Service) issue(ctx context.Context, user *models.User) (*Session, error) {
	now := s.now()
	access, err := IssueAccessToken(s.opts.Secret, user, s.opts.AccessTTL, now)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	plain, err := generateRefreshString()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	token := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(plain),
		ExpiresAt: now.Add(s.opts.RefreshTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Insert(ctx, token); err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{
		AccessToken:  access,
		RefreshToken: plain,
		ExpiresIn:    int64(s.opts.AccessTTL.Seconds()),
		User:         user,
		refreshID:    token.ID,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
