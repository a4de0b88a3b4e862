package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/youngleee/thesis/internal/apperr"
	"github.com/youngleee/thesis/internal/auth"
)

const RoleCustomer = "customer"

var (
	ErrUserNotFound       = apperr.New("user not found", apperr.ErrNotFound)
	ErrInvalidEmail       = apperr.New("email is required", apperr.ErrInvalidInput)
	ErrEmailTaken         = apperr.New("email already registered", apperr.ErrInvalidInput)
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User is a registered shopper. Its ID is the opaque identifier that scopes
// the user's cart.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists users.
type Store interface {
	// Create returns ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, u *User) error
	// GetByEmail returns ErrUserNotFound for unknown emails.
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// Service handles user domain operations
type Service struct {
	store  Store
	hasher *auth.Hasher
}

// NewService creates a new user service
func NewService(store Store, hasher *auth.Hasher) *Service {
	return &Service{store: store, hasher: hasher}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, password, name string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, apperr.New(err.Error(), apperr.ErrInvalidInput)
		}
		return nil, err
	}

	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(name),
		Role:         RoleCustomer,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords both
// yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Check(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
