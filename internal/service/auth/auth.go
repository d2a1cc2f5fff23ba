package auth

import (
	"context"
	"errors"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/passhash"
)

type AuthService struct {
	userRepo UserRepo
	tokens   TokenProvider
	l        logger.Logger
}

func NewAuthService(userRepo UserRepo, tokens TokenProvider, l logger.Logger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		l:        l,
	}
}

// Login checks the phone/password pair and issues an access token.
// A wrong phone and a wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, phone, password string) (*models.TokenPair, error) {
	ctx = wrap.WithAction(ctx, "login")

	user, err := s.userRepo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, types.ErrUserNotFound) {
			return nil, wrap.Error(ctx, types.ErrInvalidCredentials)
		}
		return nil, wrap.Error(ctx, err)
	}

	if ok, err := passhash.VerifyPassword(password, user.PasswordHash); err != nil || !ok {
		return nil, wrap.Error(ctx, types.ErrInvalidCredentials)
	}

	if user.IsBlocked() {
		return nil, wrap.Error(ctx, types.ErrUserBlocked)
	}

	pair, err := s.tokens.Generate(ctx, user)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	s.l.Info(ctx, "user logged in", "user_id", user.ID, "role", user.Role)
	return pair, nil
}

// Verify validates an access token and loads the account behind it.
func (s *AuthService) Verify(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return nil, types.ErrInvalidToken
	}

	user, err := s.userRepo.Get(ctx, claims.UserID)
	if err != nil {
		return nil, types.ErrInvalidToken
	}

	if user.IsBlocked() {
		return nil, wrap.Error(ctx, types.ErrUserBlocked)
	}

	return user, nil
}
