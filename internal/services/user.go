package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 365 * 24 * time.Hour

// UserService handles anonymous users, their tokens and push registrations
type UserService struct {
	userRepo  repository.UserRepository
	pushRepo  repository.PushTokenRepository
	jwtSecret string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewUserService creates a new user service
func NewUserService(userRepo repository.UserRepository, pushRepo repository.PushTokenRepository, jwtSecret string, tokenTTL time.Duration) *UserService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &UserService{
		userRepo:  userRepo,
		pushRepo:  pushRepo,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(s.tokenTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse token: %v", common.ErrUnauthorized, err)
	}

	if !token.Valid {
		return "", fmt.Errorf("%w: invalid token", common.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid token claims", common.ErrUnauthorized)
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: user_id not found in token", common.ErrUnauthorized)
	}

	return userID, nil
}

// CreateUser creates a new anonymous user and returns it with its token
func (s *UserService) CreateUser(ctx context.Context) (*models.User, string, error) {
	userID := uuid.New().String()

	token, err := s.GenerateJWT(userID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	user := &models.User{
		ID:        userID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	return user, token, nil
}

// GetUser retrieves a user by ID
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// RegisterPushTokenRequest represents a device registration
type RegisterPushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// RegisterPushToken upserts a device token for the user. Web tokens are
// Web Push subscription JSON documents.
func (s *UserService) RegisterPushToken(ctx context.Context, userID string, req RegisterPushTokenRequest) (*models.PushToken, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", common.ErrValidation)
	}

	switch req.Platform {
	case models.PlatformIOS:
	case models.PlatformWeb:
		var sub struct {
			Endpoint string `json:"endpoint"`
		}
		if err := json.Unmarshal([]byte(token), &sub); err != nil || sub.Endpoint == "" {
			return nil, fmt.Errorf("%w: web token must be a push subscription with an endpoint", common.ErrValidation)
		}
	default:
		return nil, fmt.Errorf("%w: platform must be %q or %q", common.ErrValidation, models.PlatformIOS, models.PlatformWeb)
	}

	pt := &models.PushToken{
		Token:     token,
		UserID:    userID,
		Platform:  req.Platform,
		CreatedAt: s.now().UTC(),
	}
	if err := s.pushRepo.Upsert(ctx, pt); err != nil {
		return nil, fmt.Errorf("failed to register push token: %w", err)
	}
	return pt, nil
}
