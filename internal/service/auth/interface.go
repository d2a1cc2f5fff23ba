package auth

import (
	"context"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

/*====Repositories====*/

type UserRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
}

/*====Providers====*/

type TokenProvider interface {
	Generate(ctx context.Context, user *models.User) (*models.TokenPair, error)
	Validate(ctx context.Context, token string) (*models.CustomClaims, error)
}
