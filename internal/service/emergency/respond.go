package emergency

import (
	"context"
	"errors"
	"fmt"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/statemachine"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

// Respond records a driver's answer to a pending offer.
//
// The active assignment is taken under a row lock, so when two responses
// race the loser blocks on the lock and then finds the assignment no longer
// ASSIGNED. Acceptance moves assignment->ACCEPTED, emergency->DISPATCHED and
// the driver's session ON_TRIP in one transaction. Rejection frees the
// vehicle and immediately re-dispatches excluding the rejecting driver; if
// nobody else is available the emergency parks in UNASSIGNED and
// ErrNoDriversAvailable surfaces to the caller.
func (s *Service) Respond(ctx context.Context, emergencyID, driverID uuid.UUID, accepted bool) error {
	const op = "emergency.Service.Respond"

	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:      "respond",
		DriverID:    driverID.String(),
		EmergencyID: emergencyID.String(),
		RequestID:   wrap.GetRequestID(ctx),
	})

	var (
		emergency *models.Emergency
		noDrivers bool
	)
	err := s.trm.Do(ctx, func(ctx context.Context) error {
		assignment, err := s.repos.assignment.GetActiveForUpdate(ctx, emergencyID)
		if err != nil {
			if errors.Is(err, types.ErrAssignmentNotFound) {
				return wrap.Error(ctx, types.ErrAssignmentNotActive)
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		if assignment.Status != types.AssignmentAssigned {
			// Someone already answered; the row lock made us second.
			return wrap.Error(ctx, types.ErrAssignmentNotActive)
		}

		now := s.clock.Now()
		if now.After(assignment.RespondBy) {
			// The window closed; the timeout sweep owns this one.
			return wrap.Error(ctx, types.ErrAssignmentNotActive)
		}

		session, err := s.sessions.GetActive(ctx, driverID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if session.VehicleID != assignment.VehicleID {
			return wrap.Error(ctx, types.ErrDriverMismatch)
		}

		emergency, err = s.repos.emergency.GetForUpdate(ctx, emergencyID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if accepted {
			return s.accept(ctx, emergency, assignment, driverID)
		}

		noDrivers, err = s.reject(ctx, emergency, assignment, driverID)
		return err
	})
	if err != nil {
		return err
	}

	if accepted {
		s.l.Info(ctx, "assignment accepted")
		s.notifyStatus(ctx, emergency, &driverID)
		return nil
	}

	s.l.Info(ctx, "assignment rejected")
	s.notifyStatus(ctx, emergency, nil)

	if noDrivers {
		s.alertNoDrivers(ctx, emergency)
		return wrap.Error(ctx, types.ErrNoDriversAvailable)
	}
	return nil
}

func (s *Service) accept(ctx context.Context, emergency *models.Emergency, assignment *models.Assignment, driverID uuid.UUID) error {
	const op = "emergency.Service.accept"

	if err := statemachine.ValidateAssignmentTransition(assignment.Status, types.AssignmentAccepted); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if err := statemachine.ValidateEmergencyTransition(emergency.Status, types.EmergencyDispatched); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	now := s.clock.Now()
	responseTime := int64(now.Sub(assignment.AssignedAt).Seconds())

	assignment.DriverID = &driverID
	assignment.Status = types.AssignmentAccepted
	assignment.AcceptedAt = &now
	assignment.ResponseTimeSeconds = &responseTime
	if err := s.repos.assignment.Update(ctx, assignment); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	emergency.Status = types.EmergencyDispatched
	emergency.StatusUpdatedAt = now
	if err := s.repos.emergency.Update(ctx, emergency); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := statemachine.ValidateConsistency(assignment.Status, emergency.Status); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	if err := s.sessions.MarkOnTrip(ctx, driverID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// reject returns (noDrivers, err). noDrivers means the rejection committed
// but no replacement could be found and the emergency went UNASSIGNED.
func (s *Service) reject(ctx context.Context, emergency *models.Emergency, assignment *models.Assignment, driverID uuid.UUID) (bool, error) {
	const op = "emergency.Service.reject"

	if err := statemachine.ValidateAssignmentTransition(assignment.Status, types.AssignmentRejected); err != nil {
		return false, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	now := s.clock.Now()
	assignment.DriverID = &driverID
	assignment.Status = types.AssignmentRejected
	assignment.RejectedAt = &now
	if err := s.repos.assignment.Update(ctx, assignment); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	s.freeVehicle(ctx, assignment.VehicleID)

	_, err := s.dispatcher.Redispatch(ctx, emergency)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, types.ErrNoDriversAvailable) && !errors.Is(err, types.ErrNotReady) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	// Nobody left to ask: park the emergency for the sweeps and operators.
	if err := statemachine.ValidateEmergencyTransition(emergency.Status, types.EmergencyUnassigned); err != nil {
		return false, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	emergency.Status = types.EmergencyUnassigned
	emergency.StatusUpdatedAt = now
	if err := s.repos.emergency.Update(ctx, emergency); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (s *Service) alertNoDrivers(ctx context.Context, emergency *models.Emergency) {
	if s.notifier == nil {
		return
	}
	alert := models.CriticalAlertMessage{
		Kind:        "no_drivers_available",
		EmergencyID: &emergency.ID,
		Detail:      "emergency left unassigned after exhausting all candidates",
		Timestamp:   s.clock.Now(),
	}
	if err := s.notifier.PublishCriticalAlert(ctx, alert); err != nil {
		s.l.Warn(ctx, "failed to publish no-drivers alert", "error", err)
	}
}
