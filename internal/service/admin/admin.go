package admin

import (
	"context"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
)

// nonTerminalStatuses in presentation order for the active list.
var nonTerminalStatuses = []types.EmergencyStatus{
	types.EmergencyCreated,
	types.EmergencyInProgress,
	types.EmergencyDispatched,
	types.EmergencyAtPatient,
	types.EmergencyToHospital,
	types.EmergencyUnassigned,
}

type Service struct {
	repos struct {
		emergency EmergencyRepo
		session   SessionRepo
		vehicle   VehicleRepo
	}
	trm ReadTxManager
	l   logger.Logger
}

func New(emergencyRepo EmergencyRepo, sessionRepo SessionRepo, vehicleRepo VehicleRepo, txManager ReadTxManager, l logger.Logger) *Service {
	s := &Service{trm: txManager, l: l}
	s.repos.emergency = emergencyRepo
	s.repos.session = sessionRepo
	s.repos.vehicle = vehicleRepo
	return s
}

// Overview assembles the operator dashboard snapshot. All counts come
// from one read-only transaction so they describe the same moment.
func (s *Service) Overview(ctx context.Context) (*models.Overview, error) {
	ctx = wrap.WithAction(ctx, "admin_overview")

	var overview *models.Overview
	err := s.trm.DoReadOnly(ctx, func(ctx context.Context) error {
		active, err := s.repos.emergency.CountActive(ctx)
		if err != nil {
			return err
		}

		byStatus, err := s.repos.emergency.CountByStatus(ctx)
		if err != nil {
			return err
		}

		online, err := s.repos.session.CountOnline(ctx)
		if err != nil {
			return err
		}

		available, err := s.repos.vehicle.ListByStatus(ctx, types.VehicleAvailable)
		if err != nil {
			return err
		}
		busy, err := s.repos.vehicle.ListByStatus(ctx, types.VehicleBusy)
		if err != nil {
			return err
		}

		overview = &models.Overview{
			ActiveEmergencies:   active,
			EmergenciesByStatus: byStatus,
			DriversOnline:       online,
			VehiclesAvailable:   len(available),
			VehiclesBusy:        len(busy),
		}
		return nil
	})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	return overview, nil
}

// ActiveEmergencies lists every non-terminal emergency.
func (s *Service) ActiveEmergencies(ctx context.Context) ([]*models.Emergency, error) {
	ctx = wrap.WithAction(ctx, "admin_active_emergencies")

	var out []*models.Emergency
	err := s.trm.DoReadOnly(ctx, func(ctx context.Context) error {
		for _, status := range nonTerminalStatuses {
			items, err := s.repos.emergency.ListByStatus(ctx, status)
			if err != nil {
				return err
			}
			out = append(out, items...)
		}
		return nil
	})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	return out, nil
}
