package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/andrmaer/lora-studio/internal/lib/jwt"
	"github.com/andrmaer/lora-studio/internal/lib/password"
	"github.com/andrmaer/lora-studio/internal/models"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) RegisterUser(ctx context.Context, email, username, passwordHash, role string) (string, error) {
	args := m.Called(ctx, email, username, passwordHash, role)
	return args.String(0), args.Error(1)
}

func (m *UserRepositoryMock) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func newTestMaker() *jwt.MakerImpl {
	return jwt.NewJWTMaker("test_secret_key", time.Hour)
}

func strPtr(s string) *string { return &s }

func TestRegister(t *testing.T) {
	repo := new(UserRepositoryMock)
	service := NewAuthService(repo, newTestMaker())

	repo.On("RegisterUser", mock.Anything, "user@example.com", "user1",
		mock.MatchedBy(func(hash string) bool {
			return password.CompareHash(hash, "password123") == nil
		}), "user").Return("uid-1", nil).Once()

	uid, err := service.Register(context.Background(), "user@example.com", "user1", "password123")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)

	repo.AssertExpectations(t)
}

func TestLogin(t *testing.T) {
	hash, err := password.GetHash("password123")
	require.NoError(t, err)

	repo := new(UserRepositoryMock)
	service := NewAuthService(repo, newTestMaker())

	repo.On("GetUserByUsername", mock.Anything, "user1").Return(&models.User{
		UID:          "uid-1",
		Username:     strPtr("user1"),
		PasswordHash: &hash,
		Role:         "user",
	}, nil).Once()

	token, role, err := service.Login(context.Background(), "user1", "password123")
	require.NoError(t, err)
	assert.Equal(t, "user", role)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user1", claims.Username)
	assert.Equal(t, "uid-1", claims.UserUID)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	hash, err := password.GetHash("password123")
	require.NoError(t, err)

	tests := []struct {
		name    string
		user    *models.User
		repoErr error
	}{
		{
			name:    "unknown user",
			user:    nil,
			repoErr: errors.New("user not found"),
		},
		{
			name: "wrong password",
			user: &models.User{
				UID:          "uid-1",
				Username:     strPtr("user1"),
				PasswordHash: &hash,
				Role:         "user",
			},
		},
		{
			name: "account provisioned by webhook has no password",
			user: &models.User{
				UID:  "uid-2",
				Role: "user",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(UserRepositoryMock)
			service := NewAuthService(repo, newTestMaker())

			repo.On("GetUserByUsername", mock.Anything, "user1").Return(tt.user, tt.repoErr).Once()

			_, _, err := service.Login(context.Background(), "user1", "wrong_password")
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}
