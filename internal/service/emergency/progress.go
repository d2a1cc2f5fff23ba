package emergency

import (
	"context"
	"errors"
	"fmt"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/statemachine"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/internal/service/dispatch"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/metrics"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

// ConfirmAtPatient records that the crew reached the patient.
func (s *Service) ConfirmAtPatient(ctx context.Context, emergencyID, driverID uuid.UUID) error {
	return s.advance(ctx, "confirm_at_patient", emergencyID, driverID, types.EmergencyAtPatient)
}

// ConfirmToHospital records that transport to a hospital has started.
func (s *Service) ConfirmToHospital(ctx context.Context, emergencyID, driverID uuid.UUID) error {
	return s.advance(ctx, "confirm_to_hospital", emergencyID, driverID, types.EmergencyToHospital)
}

// advance moves the emergency through a driver-confirmed intermediate stage.
func (s *Service) advance(ctx context.Context, action string, emergencyID, driverID uuid.UUID, to types.EmergencyStatus) error {
	const op = "emergency.Service.advance"

	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:      action,
		DriverID:    driverID.String(),
		EmergencyID: emergencyID.String(),
		RequestID:   wrap.GetRequestID(ctx),
	})

	var emergency *models.Emergency
	err := s.trm.Do(ctx, func(ctx context.Context) error {
		assignment, err := s.lockAcceptedFor(ctx, emergencyID, driverID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		emergency, err = s.repos.emergency.GetForUpdate(ctx, emergencyID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := statemachine.ValidateEmergencyTransition(emergency.Status, to); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}

		emergency.Status = to
		emergency.StatusUpdatedAt = s.clock.Now()
		if err := s.repos.emergency.Update(ctx, emergency); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := statemachine.ValidateConsistency(assignment.Status, emergency.Status); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.l.Info(ctx, "emergency stage confirmed", "status", string(to))
	s.notifyStatus(ctx, emergency, &driverID)
	return nil
}

// Complete closes out an emergency. Only the driver who accepted may
// complete it, and only from a late stage (DISPATCHED, AT_PATIENT or
// TO_HOSPITAL). The optional hospital location is recorded along with the
// distance from the pickup point.
func (s *Service) Complete(ctx context.Context, emergencyID, driverID uuid.UUID, hospital *models.Location) error {
	const op = "emergency.Service.Complete"

	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:      "complete_emergency",
		DriverID:    driverID.String(),
		EmergencyID: emergencyID.String(),
		RequestID:   wrap.GetRequestID(ctx),
	})

	var emergency *models.Emergency
	err := s.trm.Do(ctx, func(ctx context.Context) error {
		assignment, err := s.lockAcceptedFor(ctx, emergencyID, driverID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		emergency, err = s.repos.emergency.GetForUpdate(ctx, emergencyID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := statemachine.ValidateEmergencyTransition(emergency.Status, types.EmergencyCompleted); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		if err := statemachine.ValidateAssignmentTransition(assignment.Status, types.AssignmentCompleted); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}

		now := s.clock.Now()

		assignment.Status = types.AssignmentCompleted
		assignment.CompletedAt = &now
		if err := s.repos.assignment.Update(ctx, assignment); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		emergency.Status = types.EmergencyCompleted
		emergency.StatusUpdatedAt = now
		emergency.CompletedAt = &now
		if hospital != nil {
			distance := dispatch.HaversineDistance(
				emergency.Location.Latitude, emergency.Location.Longitude,
				hospital.Latitude, hospital.Longitude,
			)
			emergency.HospitalLocation = hospital
			emergency.HospitalDistanceKm = &distance
		}
		if err := s.repos.emergency.Update(ctx, emergency); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := statemachine.ValidateConsistency(assignment.Status, emergency.Status); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}

		if err := s.sessions.FinishTrip(ctx, driverID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		s.freeVehicle(ctx, assignment.VehicleID)
		return nil
	})
	if err != nil {
		return err
	}

	metrics.EmergenciesTotal.WithLabelValues(string(types.EmergencyCompleted)).Inc()
	metrics.ActiveEmergenciesGauge.Dec()
	s.l.Info(ctx, "emergency completed")
	s.notifyStatus(ctx, emergency, &driverID)
	return nil
}

// lockAcceptedFor locks the emergency's active assignment and verifies it is
// ACCEPTED by this exact driver.
func (s *Service) lockAcceptedFor(ctx context.Context, emergencyID, driverID uuid.UUID) (*models.Assignment, error) {
	assignment, err := s.repos.assignment.GetActiveForUpdate(ctx, emergencyID)
	if err != nil {
		if errors.Is(err, types.ErrAssignmentNotFound) {
			return nil, wrap.Error(ctx, types.ErrAssignmentNotActive)
		}
		return nil, err
	}
	if assignment.Status != types.AssignmentAccepted {
		return nil, wrap.Error(ctx, types.ErrAssignmentNotActive)
	}
	if assignment.DriverID == nil || *assignment.DriverID != driverID {
		return nil, wrap.Error(ctx, types.ErrDriverMismatch)
	}
	return assignment, nil
}
