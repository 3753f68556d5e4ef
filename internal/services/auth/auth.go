// Package auth содержит логику регистрации, авторизации и валидации JWT.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/andrmaer/lora-studio/internal/lib/jwt"
	"github.com/andrmaer/lora-studio/internal/lib/password"
	"github.com/andrmaer/lora-studio/internal/models"
)

// ErrInvalidCredentials неверная пара логин/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// RegisterUser сохраняет нового пользователя и возвращает его UID.
	RegisterUser(ctx context.Context, email, username, passwordHash, role string) (string, error)

	// GetUserByUsername возвращает пользователя по имени или ошибку, если не найден.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthService отвечает за регистрацию, авторизацию и валидацию JWT.
type AuthService struct {
	users    UserRepository
	jwtMaker jwt.Maker
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, jwtMaker jwt.Maker) *AuthService {
	return &AuthService{
		users:    users,
		jwtMaker: jwtMaker,
	}
}

// Register создает нового пользователя с хэшированием пароля и дефолтной ролью "user".
func (s *AuthService) Register(ctx context.Context, email, username, rawPassword string) (string, error) {
	const op = "auth.Register"
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return s.users.RegisterUser(ctx, email, username, hashed, "user")
}

// Login проверяет пароль пользователя и генерирует JWT.
func (s *AuthService) Login(ctx context.Context, username, rawPassword string) (token, role string, err error) {
	const op = "auth.Login"
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	// Автосозданные вебхуком записи не имеют пароля, вход по ним невозможен.
	if user.PasswordHash == nil {
		return "", "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err := password.CompareHash(*user.PasswordHash, rawPassword); err != nil {
		return "", "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	storedName := ""
	if user.Username != nil {
		storedName = *user.Username
	}
	token, err = s.jwtMaker.GenerateToken(storedName, user.Role, user.UID)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	return token, user.Role, nil
}

// ValidateToken проверяет JWT и возвращает claims, если токен валиден.
func (s *AuthService) ValidateToken(token string) (*jwt.CustomClaims, error) {
	return s.jwtMaker.ParseToken(token)
}
