package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youngleee/thesis/internal/apperr"
	"github.com/youngleee/thesis/internal/auth"
	"github.com/youngleee/thesis/internal/domain/user"
	"github.com/youngleee/thesis/internal/infrastructure/store"
	"golang.org/x/crypto/bcrypt"
)

func newTestUserService() *user.Service {
	return user.NewService(store.NewMemoryUserStore(), auth.NewHasher(bcrypt.MinCost))
}

func TestService_Register(t *testing.T) {
	service := newTestUserService()

	u, err := service.Register(context.Background(), "  Alice@Example.com ", "correct-horse", " Alice ")

	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, user.RoleCustomer, u.Role)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)
}

func TestService_Register_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "correct-horse"},
		{"no at sign", "alice.example.com", "correct-horse"},
		{"short password", "alice@example.com", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestUserService().Register(context.Background(), tt.email, tt.password, "")
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	service := newTestUserService()
	ctx := context.Background()

	_, err := service.Register(ctx, "alice@example.com", "correct-horse", "")
	require.NoError(t, err)

	_, err = service.Register(ctx, "ALICE@example.com", "other-password", "")
	assert.ErrorIs(t, err, user.ErrEmailTaken)
}

func TestService_Authenticate(t *testing.T) {
	service := newTestUserService()
	ctx := context.Background()
	registered, err := service.Register(ctx, "alice@example.com", "correct-horse", "")
	require.NoError(t, err)

	u, err := service.Authenticate(ctx, "Alice@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	_, err = service.Authenticate(ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, user.ErrInvalidCredentials)

	_, err = service.Authenticate(ctx, "bob@example.com", "correct-horse")
	assert.ErrorIs(t, err, user.ErrInvalidCredentials)
}
