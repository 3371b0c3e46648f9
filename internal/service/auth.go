package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trilex-backend/internal/model"
	"trilex-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService validates access tokens issued by the accounts service.
// Tokens are never issued here outside of tests.
type AuthService struct {
	users     UserStore
	jwtSecret []byte
}

func NewAuthService(users UserStore, jwtSecret string) *AuthService {
	return &AuthService{users: users, jwtSecret: []byte(jwtSecret)}
}

// ValidateAccessToken checks the HS256 signature and expiry and returns the
// user id carried in "sub" or "user_id".
func (s *AuthService) ValidateAccessToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		userID, _ = claims["user_id"].(string)
	}
	if strings.TrimSpace(userID) == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// Authenticate resolves a bearer token to its user. Tokens of unknown users
// are rejected like invalid ones.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*model.User, error) {
	userID, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return user, nil
}

// IssueToken signs an access token in the accounts-service format. It backs
// the test suites and local tooling.
func (s *AuthService) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     userID,
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
