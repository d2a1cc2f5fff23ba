package dispatch

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
}

/*=================Assignment Repository=====================*/

type AssignmentRepo interface {
	Create(ctx context.Context, a *models.Assignment) (*models.Assignment, error)
	RejectedDriverIDs(ctx context.Context, emergencyID uuid.UUID) ([]uuid.UUID, error)
}

/*=================Session Repository========================*/

type SessionRepo interface {
	ListOnlineFresh(ctx context.Context, cutoff time.Time) ([]*models.DriverSession, error)
	GetActiveByVehicle(ctx context.Context, vehicleID uuid.UUID) (*models.DriverSession, error)
}

/*=================Vehicle Repository========================*/

type VehicleRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	SetStatus(ctx context.Context, v *models.Vehicle, status types.VehicleStatus) error
}

/*=================Notifier==================================*/

type Notifier interface {
	PublishAssignmentOffer(ctx context.Context, msg models.AssignmentOfferMessage) error
}

/*=================Readiness=================================*/

// ReadinessGate tells the engine whether startup recovery has finished.
// Dispatching before recovery would hand out vehicles the recovery pass is
// about to free.
type ReadinessGate interface {
	IsReady() bool
}
