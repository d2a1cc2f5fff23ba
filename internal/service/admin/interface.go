package admin

import (
	"context"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
)

/*====Repositories====*/

type EmergencyRepo interface {
	CountActive(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[types.EmergencyStatus]int, error)
	ListByStatus(ctx context.Context, status types.EmergencyStatus) ([]*models.Emergency, error)
}

type SessionRepo interface {
	CountOnline(ctx context.Context) (int, error)
}

type VehicleRepo interface {
	ListByStatus(ctx context.Context, status types.VehicleStatus) ([]*models.Vehicle, error)
}

/*====Transaction manager====*/

// ReadTxManager gives dashboard queries a consistent read snapshot.
type ReadTxManager interface {
	DoReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
