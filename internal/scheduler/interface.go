package scheduler

import (
	"context"
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

/*=================Emergency Repository======================*/

type EmergencyRepo interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Emergency, error)
	Update(ctx context.Context, e *models.Emergency) error
	ListExpiredCreated(ctx context.Context, now time.Time) ([]*models.Emergency, error)
	ListByStatus(ctx context.Context, status types.EmergencyStatus) ([]*models.Emergency, error)
}

/*=================Assignment Repository=====================*/

type AssignmentRepo interface {
	GetActiveForUpdate(ctx context.Context, emergencyID uuid.UUID) (*models.Assignment, error)
	Update(ctx context.Context, a *models.Assignment) error
	ListExpiredAssigned(ctx context.Context, now time.Time) ([]*models.Assignment, error)
	GetActive(ctx context.Context, emergencyID uuid.UUID) (*models.Assignment, error)
	HasActiveForVehicle(ctx context.Context, vehicleID uuid.UUID) (bool, error)
}

/*=================Vehicle Repository========================*/

type VehicleRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	SetStatus(ctx context.Context, v *models.Vehicle, status types.VehicleStatus) error
	ListByStatus(ctx context.Context, status types.VehicleStatus) ([]*models.Vehicle, error)
}

/*=================Collaborating services====================*/

type Dispatcher interface {
	Dispatch(ctx context.Context, emergencyID uuid.UUID) error
}

type TimeoutHandler interface {
	HandleTimeouts(ctx context.Context) (int, error)
}

type StaleDetector interface {
	DetectAndMarkStaleOffline(ctx context.Context) (int, error)
}
