// Package users covers account lifecycle: phone registration, login,
// and profile edits. Credentials are bcrypt-hashed; the hash never
// leaves this package.
package users

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/identity"
)

var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

const minPasswordLen = 8

// Store is the persistence the service needs.
type Store interface {
	CreateUser(ctx context.Context, u *core.User) error
	GetUser(ctx context.Context, id string) (*core.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*core.User, error)
	UpdateUser(ctx context.Context, u *core.User) error
}

type Service struct {
	store  Store
	tokens *identity.TokenService
	now    func() time.Time
}

func NewService(store Store, tokens *identity.TokenService) *Service {
	return &Service{store: store, tokens: tokens, now: time.Now}
}

// RegisterInput is a new local account. Phone is E.164.
type RegisterInput struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Session is a signed-in user plus their access token.
type Session struct {
	User  *core.User `json:"user"`
	Token string     `json:"token"`
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	fields := map[string]string{}
	if in.Name == "" || len(in.Name) > 100 {
		fields["name"] = "required, at most 100 characters"
	}
	if !phonePattern.MatchString(in.Phone) {
		fields["phone"] = "must be E.164, like +919876543210"
	}
	if len(in.Password) < minPasswordLen {
		fields["password"] = "at least 8 characters"
	}
	if len(fields) > 0 {
		return nil, apperrors.InvalidFields(fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	u := &core.User{
		ID:               uuid.NewString(),
		Name:             in.Name,
		Phone:            in.Phone,
		PasswordHash:     string(hash),
		Role:             core.RoleUser,
		SubscribedEvents: []string{},
		CreatedAt:        s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			return nil, apperrors.InvalidInput("phone already registered").WithField("phone")
		}
		return nil, apperrors.Database(err)
	}

	token, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	slog.Info("user registered", "user_id", u.ID)
	return &Session{User: u, Token: token}, nil
}

// Login checks phone credentials and issues a token. Wrong phone and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, phone, password string) (*Session, error) {
	u, err := s.store.GetUserByPhone(ctx, phone)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.Unauthenticated()
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if u.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperrors.Unauthenticated()
	}

	token, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	slog.Info("user logged in", "user_id", u.ID)
	return &Session{User: u, Token: token}, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.tokens.Revoke(ctx, token); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (*core.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.UserNotFound(id)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return u, nil
}

// ProfilePatch carries caller-editable profile fields; nil retains.
type ProfilePatch struct {
	Name       *string `json:"name"`
	Bio        *string `json:"bio"`
	PictureURL *string `json:"picture_url"`
	IsPrivate  *bool   `json:"is_private"`
	Instagram  *string `json:"instagram"`
	Twitter    *string `json:"twitter"`
	LinkedIn   *string `json:"linkedin"`
}

// UpdateProfile applies a patch to the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, p ProfilePatch) (*core.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		if *p.Name == "" || len(*p.Name) > 100 {
			return nil, apperrors.InvalidInput("name must be 1-100 characters").WithField("name")
		}
		u.Name = *p.Name
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.PictureURL != nil {
		u.PictureURL = *p.PictureURL
	}
	if p.IsPrivate != nil {
		u.IsPrivate = *p.IsPrivate
	}
	if p.Instagram != nil {
		u.Instagram = *p.Instagram
	}
	if p.Twitter != nil {
		u.Twitter = *p.Twitter
	}
	if p.LinkedIn != nil {
		u.LinkedIn = *p.LinkedIn
	}

	if err := s.store.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, apperrors.UserNotFound(userID)
		}
		return nil, apperrors.Database(err)
	}
	return u, nil
}
