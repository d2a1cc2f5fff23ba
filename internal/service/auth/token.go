package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/clock"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and validates HS256 access tokens.
type TokenService struct {
	secret    string
	accessTTL time.Duration
	clock     clock.Clock
}

func NewTokenService(secret string, accessTTL time.Duration, clk clock.Clock) *TokenService {
	return &TokenService{
		secret:    secret,
		accessTTL: accessTTL,
		clock:     clk,
	}
}

// Generate signs a new access token for the given user.
func (s *TokenService) Generate(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	ctx = wrap.WithAction(ctx, "generate_token")

	issuedAt := s.clock.Now().UTC()
	expiresAt := issuedAt.Add(s.accessTTL)

	claims := jwt.MapClaims{
		"jti":     uuid.New().String(),
		"user_id": user.ID.String(),
		"role":    user.Role.String(),
		"iat":     issuedAt.Unix(),
		"exp":     expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return nil, wrap.Error(ctx, ErrTokenGenerateFail)
	}

	return &models.TokenPair{
		AccessToken: signed,
		ExpiresAt:   expiresAt,
	}, nil
}

// Validate parses and verifies a token string, returning its claims.
func (s *TokenService) Validate(ctx context.Context, token string) (*models.CustomClaims, error) {
	ctx = wrap.WithAction(ctx, "validate_token")

	parsed, err := jwt.ParseWithClaims(token, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, types.ErrInvalidToken
		}
		return []byte(s.secret), nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !parsed.Valid {
		return nil, wrap.Error(ctx, types.ErrInvalidToken)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, wrap.Error(ctx, types.ErrInvalidToken)
	}

	userIDStr, _ := mc["user_id"].(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("invalid 'user_id' in token claims"))
	}

	tokenIDStr, _ := mc["jti"].(string)
	tokenID, err := uuid.Parse(tokenIDStr)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("invalid 'jti' in token claims"))
	}

	role, _ := mc["role"].(string)

	expFloat, ok := mc["exp"].(float64)
	if !ok {
		return nil, wrap.Error(ctx, fmt.Errorf("invalid or missing 'exp' in token claims"))
	}
	expTime := time.Unix(int64(expFloat), 0)
	if s.clock.Now().UTC().After(expTime) {
		return nil, wrap.Error(ctx, ErrExpToken)
	}

	return &models.CustomClaims{
		TokenID:   tokenID,
		UserID:    userID,
		Role:      types.UserRole(role),
		ExpiresAt: expTime,
	}, nil
}
