package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/statemachine"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/clock"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	"github.com/aqylbek/ambulance-dispatch/pkg/trm"
)

// NewConfirmationSweep retries dispatch for CREATED emergencies whose
// confirmation deadline has passed. The engine re-checks the status under
// lock, so racing a concurrent dispatch is safe.
func NewConfirmationSweep(period time.Duration, emergencies EmergencyRepo, dispatcher Dispatcher, clk clock.Clock, l logger.Logger) *Sweep {
	return &Sweep{
		Name:   "confirmation_timeout",
		Period: period,
		Run: func(ctx context.Context) error {
			overdue, err := emergencies.ListExpiredCreated(ctx, clk.Now())
			if err != nil {
				return fmt.Errorf("confirmation sweep: %w", err)
			}

			for _, e := range overdue {
				err := dispatcher.Dispatch(ctx, e.ID)
				switch {
				case err == nil:
					l.Info(ctx, "overdue emergency dispatched", "emergency_id", e.ID.String())
				case errors.Is(err, types.ErrNoDriversAvailable), errors.Is(err, types.ErrNotReady):
					// Still nobody around; next tick tries again.
				case errors.Is(err, types.ErrInvalidStateTransition):
					// Someone else moved it between the scan and the lock.
				default:
					l.Error(ctx, "overdue dispatch failed", err, "emergency_id", e.ID.String())
				}
			}
			return nil
		},
	}
}

// NewResponseTimeoutSweep expires offers drivers never answered.
func NewResponseTimeoutSweep(period time.Duration, handler TimeoutHandler, l logger.Logger) *Sweep {
	return &Sweep{
		Name:   "response_timeout",
		Period: period,
		Run: func(ctx context.Context) error {
			n, err := handler.HandleTimeouts(ctx)
			if err != nil {
				return fmt.Errorf("response timeout sweep: %w", err)
			}
			if n > 0 {
				l.Info(ctx, "assignments timed out", "count", n)
			}
			return nil
		},
	}
}

// NewStaleSessionSweep closes sessions whose drivers stopped heartbeating.
func NewStaleSessionSweep(period time.Duration, detector StaleDetector, l logger.Logger) *Sweep {
	return &Sweep{
		Name:   "stale_heartbeat",
		Period: period,
		Run: func(ctx context.Context) error {
			n, err := detector.DetectAndMarkStaleOffline(ctx)
			if err != nil {
				return fmt.Errorf("stale session sweep: %w", err)
			}
			if n > 0 {
				l.Info(ctx, "stale sessions closed", "count", n)
			}
			return nil
		},
	}
}

// NewInvariantRepairSweep re-derives two invariants the normal paths can
// leak under crashes or lost races: a BUSY vehicle must have an active
// assignment, and an IN_PROGRESS emergency must have an active assignment.
// Failures on one item are logged and never stop the rest.
func NewInvariantRepairSweep(
	period time.Duration,
	emergencies EmergencyRepo,
	assignments AssignmentRepo,
	vehicles VehicleRepo,
	txManager trm.TxManager,
	clk clock.Clock,
	l logger.Logger,
) *Sweep {
	return &Sweep{
		Name:   "invariant_repair",
		Period: period,
		Run: func(ctx context.Context) error {
			repairVehicles(ctx, assignments, vehicles, l)
			repairEmergencies(ctx, emergencies, assignments, txManager, clk, l)
			return nil
		},
	}
}

// repairVehicles frees BUSY vehicles that no active assignment holds.
func repairVehicles(ctx context.Context, assignments AssignmentRepo, vehicles VehicleRepo, l logger.Logger) {
	busy, err := vehicles.ListByStatus(ctx, types.VehicleBusy)
	if err != nil {
		l.Error(ctx, "invariant repair: failed to list busy vehicles", err)
		return
	}

	for _, v := range busy {
		held, err := assignments.HasActiveForVehicle(ctx, v.ID)
		if err != nil {
			l.Error(ctx, "invariant repair: active assignment check failed", err, "vehicle_id", v.ID.String())
			continue
		}
		if held {
			continue
		}

		if err := vehicles.SetStatus(ctx, v, types.VehicleAvailable); err != nil {
			if errors.Is(err, types.ErrOptimisticLockConflict) {
				// Claimed again while we looked, nothing to repair.
				continue
			}
			l.Error(ctx, "invariant repair: failed to free vehicle", err, "vehicle_id", v.ID.String())
			continue
		}
		l.Warn(ctx, "freed orphaned busy vehicle", "vehicle_id", v.ID.String())
	}
}

// repairEmergencies parks IN_PROGRESS emergencies that lost their active
// assignment, putting them back where the dispatch retry loop can see them.
func repairEmergencies(ctx context.Context, emergencies EmergencyRepo, assignments AssignmentRepo, txManager trm.TxManager, clk clock.Clock, l logger.Logger) {
	inProgress, err := emergencies.ListByStatus(ctx, types.EmergencyInProgress)
	if err != nil {
		l.Error(ctx, "invariant repair: failed to list in-progress emergencies", err)
		return
	}

	for _, candidate := range inProgress {
		err := txManager.Do(ctx, func(ctx context.Context) error {
			e, err := emergencies.GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if e.Status != types.EmergencyInProgress {
				return nil
			}
			if _, err := assignments.GetActive(ctx, e.ID); err == nil {
				return nil
			} else if !errors.Is(err, types.ErrAssignmentNotFound) {
				return err
			}

			if err := statemachine.ValidateEmergencyTransition(e.Status, types.EmergencyUnassigned); err != nil {
				return err
			}
			e.Status = types.EmergencyUnassigned
			e.StatusUpdatedAt = clk.Now()
			return emergencies.Update(ctx, e)
		})
		if err != nil {
			l.Error(ctx, "invariant repair: failed to park emergency", err, "emergency_id", candidate.ID.String())
			continue
		}
	}
}
