package emergency

import (
	"context"
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

/*=================Emergency Repository======================*/

type EmergencyRepo interface {
	Create(ctx context.Context, e *models.Emergency) (*models.Emergency, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Emergency, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Emergency, error)
	Update(ctx context.Context, e *models.Emergency) error
}

/*=================Assignment Repository=====================*/

type AssignmentRepo interface {
	GetActiveForUpdate(ctx context.Context, emergencyID uuid.UUID) (*models.Assignment, error)
	Update(ctx context.Context, a *models.Assignment) error
	ListExpiredAssigned(ctx context.Context, now time.Time) ([]*models.Assignment, error)
	ListByEmergency(ctx context.Context, emergencyID uuid.UUID) ([]*models.Assignment, error)
}

/*=================Vehicle Repository========================*/

type VehicleRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	SetStatus(ctx context.Context, v *models.Vehicle, status types.VehicleStatus) error
}

/*=================User Repository===========================*/

type UserRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	IncrementSuspectCancellations(ctx context.Context, id uuid.UUID) (int, error)
}

/*=================Session Service===========================*/

type SessionService interface {
	GetActive(ctx context.Context, driverID uuid.UUID) (*models.DriverSession, error)
	MarkOnTrip(ctx context.Context, driverID uuid.UUID) error
	MarkOnline(ctx context.Context, driverID uuid.UUID) error
	FinishTrip(ctx context.Context, driverID uuid.UUID) error
}

/*=================Dispatch Engine===========================*/

type Dispatcher interface {
	Dispatch(ctx context.Context, emergencyID uuid.UUID) error
	Redispatch(ctx context.Context, emergency *models.Emergency) (*models.Assignment, error)
}

/*=================Notifier==================================*/

type Notifier interface {
	PublishEmergencyStatus(ctx context.Context, msg models.EmergencyStatusMessage) error
	PublishCriticalAlert(ctx context.Context, msg models.CriticalAlertMessage) error
}
