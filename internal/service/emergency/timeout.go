package emergency

import (
	"context"
	"errors"
	"fmt"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/statemachine"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

// HandleTimeouts expires every ASSIGNED assignment whose response window has
// closed. Each one is re-locked in its own transaction: a failure on one
// item never blocks the rest of the batch. Returns how many assignments
// were timed out.
func (s *Service) HandleTimeouts(ctx context.Context) (int, error) {
	const op = "emergency.Service.HandleTimeouts"

	ctx = wrap.WithAction(ctx, types.ActionSweep)

	expired, err := s.repos.assignment.ListExpiredAssigned(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	timedOut := 0
	for _, candidate := range expired {
		if err := s.timeoutOne(ctx, candidate.ID, candidate.EmergencyID); err != nil {
			s.l.Error(ctx, "failed to time out assignment", err,
				"assignment_id", candidate.ID.String(),
				"emergency_id", candidate.EmergencyID.String(),
			)
			continue
		}
		timedOut++
	}
	return timedOut, nil
}

func (s *Service) timeoutOne(ctx context.Context, assignmentID, emergencyID uuid.UUID) error {
	const op = "emergency.Service.timeoutOne"

	return s.trm.Do(ctx, func(ctx context.Context) error {
		assignment, err := s.repos.assignment.GetActiveForUpdate(ctx, emergencyID)
		if err != nil {
			if errors.Is(err, types.ErrAssignmentNotFound) {
				// Answered or cancelled between the scan and the lock.
				return nil
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		if assignment.ID != assignmentID || assignment.Status != types.AssignmentAssigned {
			return nil
		}

		now := s.clock.Now()
		if assignment.RespondBy.After(now) {
			return nil
		}

		if err := statemachine.ValidateAssignmentTransition(assignment.Status, types.AssignmentTimeout); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		assignment.Status = types.AssignmentTimeout
		assignment.TimedOutAt = &now
		if err := s.repos.assignment.Update(ctx, assignment); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		s.freeVehicle(ctx, assignment.VehicleID)

		emergency, err := s.repos.emergency.GetForUpdate(ctx, emergencyID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		_, err = s.dispatcher.Redispatch(ctx, emergency)
		if err == nil {
			return nil
		}
		if !errors.Is(err, types.ErrNoDriversAvailable) && !errors.Is(err, types.ErrNotReady) {
			return fmt.Errorf("%s: %w", op, err)
		}

		if emergency.Status == types.EmergencyUnassigned {
			return nil
		}
		if err := statemachine.ValidateEmergencyTransition(emergency.Status, types.EmergencyUnassigned); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		emergency.Status = types.EmergencyUnassigned
		emergency.StatusUpdatedAt = now
		if err := s.repos.emergency.Update(ctx, emergency); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
}
