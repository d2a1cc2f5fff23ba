package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/statemachine"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/clock"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/trm"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

// Recovery reconciles state left behind by a crash before the service
// starts dispatching. Offers that expired while the process was down are
// timed out and their vehicles freed; orphaned BUSY vehicles are released.
// Only after that does the readiness gate open.
type Recovery struct {
	emergencies EmergencyRepo
	assignments AssignmentRepo
	vehicles    VehicleRepo
	readiness   *Readiness
	trm         trm.TxManager
	clock       clock.Clock
	l           logger.Logger
}

func NewRecovery(
	emergencies EmergencyRepo,
	assignments AssignmentRepo,
	vehicles VehicleRepo,
	readiness *Readiness,
	txManager trm.TxManager,
	clk clock.Clock,
	l logger.Logger,
) *Recovery {
	return &Recovery{
		emergencies: emergencies,
		assignments: assignments,
		vehicles:    vehicles,
		readiness:   readiness,
		trm:         txManager,
		clock:       clk,
		l:           l,
	}
}

// Run executes the recovery pass and opens the readiness gate on success.
func (r *Recovery) Run(ctx context.Context) error {
	const op = "scheduler.Recovery.Run"

	ctx = wrap.WithAction(ctx, types.ActionStartupRecovery)
	r.readiness.MarkNotReady()

	expired, err := r.assignments.ListExpiredAssigned(ctx, r.clock.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, a := range expired {
		if err := r.expireAssignment(ctx, a.ID, a.EmergencyID); err != nil {
			r.l.Error(ctx, "recovery: failed to expire assignment", err,
				"assignment_id", a.ID.String(),
				"emergency_id", a.EmergencyID.String(),
			)
		}
	}

	repairVehicles(ctx, r.assignments, r.vehicles, r.l)

	r.readiness.MarkReady()
	r.l.Info(ctx, "startup recovery finished", "expired_assignments", len(expired))
	return nil
}

// expireAssignment times out one offer that outlived the downtime and parks
// its emergency for re-dispatch. No dispatching happens here: the gate is
// still closed and the sweeps take over once it opens.
func (r *Recovery) expireAssignment(ctx context.Context, assignmentID, emergencyID uuid.UUID) error {
	return r.trm.Do(ctx, func(ctx context.Context) error {
		assignment, err := r.assignments.GetActiveForUpdate(ctx, emergencyID)
		if err != nil {
			if errors.Is(err, types.ErrAssignmentNotFound) {
				return nil
			}
			return err
		}
		if assignment.ID != assignmentID || assignment.Status != types.AssignmentAssigned {
			return nil
		}

		now := r.clock.Now()
		if err := statemachine.ValidateAssignmentTransition(assignment.Status, types.AssignmentTimeout); err != nil {
			return err
		}
		assignment.Status = types.AssignmentTimeout
		assignment.TimedOutAt = &now
		if err := r.assignments.Update(ctx, assignment); err != nil {
			return err
		}

		if vehicle, err := r.vehicles.Get(ctx, assignment.VehicleID); err == nil && vehicle.Status == types.VehicleBusy {
			if err := r.vehicles.SetStatus(ctx, vehicle, types.VehicleAvailable); err != nil && !errors.Is(err, types.ErrOptimisticLockConflict) {
				r.l.Warn(ctx, "recovery: failed to free vehicle", "vehicle_id", vehicle.ID.String(), "error", err)
			}
		}

		emergency, err := r.emergencies.GetForUpdate(ctx, emergencyID)
		if err != nil {
			return err
		}
		if emergency.Status != types.EmergencyInProgress {
			return nil
		}
		if err := statemachine.ValidateEmergencyTransition(emergency.Status, types.EmergencyUnassigned); err != nil {
			return err
		}
		emergency.Status = types.EmergencyUnassigned
		emergency.StatusUpdatedAt = now
		return r.emergencies.Update(ctx, emergency)
	})
}
