package session

import (
	"context"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

/*=================Session Repository========================*/

type SessionRepo interface {
	Create(ctx context.Context, s *models.DriverSession) (*models.DriverSession, error)
	GetActiveByDriver(ctx context.Context, driverID uuid.UUID) (*models.DriverSession, error)
	GetActiveByVehicle(ctx context.Context, vehicleID uuid.UUID) (*models.DriverSession, error)
	Update(ctx context.Context, s *models.DriverSession) error
	ListActive(ctx context.Context) ([]*models.DriverSession, error)
}

/*=================User Repository===========================*/

type UserRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
}

/*=================Vehicle Repository========================*/

type VehicleRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, loc models.Location) error
}

/*=================Notifier==================================*/

type Notifier interface {
	PublishCriticalAlert(ctx context.Context, msg models.CriticalAlertMessage) error
}
