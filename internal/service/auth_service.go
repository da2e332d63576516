package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chargebroker/internal/models"
	"chargebroker/internal/repository"
)

// ErrInvalidCredentials is returned on a failed login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService manages API accounts and bearer tokens.
type AuthService struct {
	users    *repository.UserRepository
	secret   []byte
	tokenTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService builds service.
func NewAuthService(users *repository.UserRepository, secret string, tokenTTL time.Duration, logger *zap.Logger, now func() time.Time) *AuthService {
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		users:    users,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		logger:   logger,
		now:      now,
	}
}

// RegisterInput carries a signup request.
type RegisterInput struct {
	Email       string
	Password    string
	CompanyID   string
	CompanyName string
	IsAdmin     bool
}

// Register creates an account with a bcrypt password hash.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, validationf("valid email required")
	}
	if len(input.Password) < 8 {
		return nil, validationf("password must be at least 8 characters")
	}
	if strings.TrimSpace(input.CompanyID) == "" {
		return nil, validationf("company id required")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, conflictf("email already registered")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		CompanyID:    input.CompanyID,
		CompanyName:  input.CompanyName,
		IsAdmin:      input.IsAdmin,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Insert(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("email", email))
	return user, nil
}

// Login verifies credentials and returns a signed bearer token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if errors.Is(err, repository.ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	claims := jwt.MapClaims{
		"sub":          user.ID,
		"company_id":   user.CompanyID,
		"company_name": user.CompanyName,
		"is_admin":     user.IsAdmin,
		"iat":          now.Unix(),
		"exp":          now.Add(s.tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}
