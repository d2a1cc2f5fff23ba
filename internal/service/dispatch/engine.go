package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/statemachine"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/clock"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/metrics"
	"github.com/aqylbek/ambulance-dispatch/pkg/trm"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

// Config carries the dispatch timing knobs.
type Config struct {
	ResponseWindow time.Duration // how long a driver has to answer an offer
	StaleThreshold time.Duration // heartbeat age at which a session stops counting
}

// Engine picks the nearest eligible ambulance for an emergency and records
// the offer as an ASSIGNED assignment.
type Engine struct {
	repos     repos
	notifier  Notifier
	readiness ReadinessGate
	trm       trm.TxManager
	clock     clock.Clock
	cfg       Config
	l         logger.Logger
}

type repos struct {
	emergency  EmergencyRepo
	assignment AssignmentRepo
	session    SessionRepo
	vehicle    VehicleRepo
}

func New(
	emergencyRepo EmergencyRepo,
	assignmentRepo AssignmentRepo,
	sessionRepo SessionRepo,
	vehicleRepo VehicleRepo,
	notifier Notifier,
	readiness ReadinessGate,
	txManager trm.TxManager,
	clk clock.Clock,
	cfg Config,
	l logger.Logger,
) *Engine {
	return &Engine{
		repos: repos{
			emergency:  emergencyRepo,
			assignment: assignmentRepo,
			session:    sessionRepo,
			vehicle:    vehicleRepo,
		},
		notifier:  notifier,
		readiness: readiness,
		trm:       txManager,
		clock:     clk,
		cfg:       cfg,
		l:         l,
	}
}

// Dispatch runs the initial assignment of a freshly confirmed emergency.
// The emergency must still be CREATED; it moves to IN_PROGRESS together with
// the new assignment in one transaction. ErrNoDriversAvailable leaves the
// emergency untouched so the confirmation sweep keeps retrying until the
// deadline.
func (e *Engine) Dispatch(ctx context.Context, emergencyID uuid.UUID) error {
	const op = "dispatch.Engine.Dispatch"

	if !e.readiness.IsReady() {
		return wrap.Error(ctx, types.ErrNotReady)
	}

	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:      types.ActionDispatch,
		EmergencyID: emergencyID.String(),
		RequestID:   wrap.GetRequestID(ctx),
	})

	var (
		emergency  *models.Emergency
		assignment *models.Assignment
	)
	err := e.trm.Do(ctx, func(ctx context.Context) error {
		var err error
		emergency, err = e.repos.emergency.GetForUpdate(ctx, emergencyID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if emergency.Status != types.EmergencyCreated {
			// Already picked up by a concurrent dispatch or cancelled.
			return wrap.Error(ctx, fmt.Errorf("%s: emergency is %s: %w", op, emergency.Status, types.ErrInvalidStateTransition))
		}

		assignment, err = e.assignNearest(ctx, emergency, nil)
		if err != nil {
			return err
		}

		if err := statemachine.ValidateEmergencyTransition(emergency.Status, types.EmergencyInProgress); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		emergency.Status = types.EmergencyInProgress
		emergency.StatusUpdatedAt = e.clock.Now()

		if err := statemachine.ValidateConsistency(assignment.Status, emergency.Status); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}

		if err := e.repos.emergency.Update(ctx, emergency); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrNoDriversAvailable) {
			metrics.RecordDispatch("no_drivers")
		} else {
			metrics.RecordDispatch("error")
		}
		return err
	}

	metrics.RecordDispatch("assigned")
	e.offerCreated(ctx, emergency, assignment)
	return nil
}

// Redispatch finds a replacement ambulance after a rejection or timeout. The
// caller already holds the transaction and the emergency row lock. The
// emergency may still be IN_PROGRESS or already parked in UNASSIGNED; either
// way it ends up IN_PROGRESS with a fresh ASSIGNED assignment. On
// ErrNoDriversAvailable nothing is written and the caller decides the
// emergency's fate.
func (e *Engine) Redispatch(ctx context.Context, emergency *models.Emergency) (*models.Assignment, error) {
	const op = "dispatch.Engine.Redispatch"

	if !e.readiness.IsReady() {
		return nil, wrap.Error(ctx, types.ErrNotReady)
	}

	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:      types.ActionDispatch,
		EmergencyID: emergency.ID.String(),
		RequestID:   wrap.GetRequestID(ctx),
	})

	if emergency.Status != types.EmergencyInProgress && emergency.Status != types.EmergencyUnassigned {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: emergency is %s: %w", op, emergency.Status, types.ErrInvalidStateTransition))
	}

	exclude, err := e.repos.assignment.RejectedDriverIDs(ctx, emergency.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	assignment, err := e.assignNearest(ctx, emergency, exclude)
	if err != nil {
		if errors.Is(err, types.ErrNoDriversAvailable) {
			metrics.RecordDispatch("no_drivers")
		}
		return nil, err
	}

	if emergency.Status == types.EmergencyUnassigned {
		if err := statemachine.ValidateEmergencyTransition(emergency.Status, types.EmergencyInProgress); err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		emergency.Status = types.EmergencyInProgress
		emergency.StatusUpdatedAt = e.clock.Now()
		if err := e.repos.emergency.Update(ctx, emergency); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := statemachine.ValidateConsistency(assignment.Status, emergency.Status); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	metrics.RecordDispatch("assigned")
	e.offerCreated(ctx, emergency, assignment)
	return assignment, nil
}

// assignNearest walks eligible sessions nearest-first, claims the first
// vehicle it can flip to BUSY, and records the offer. Drivers in exclude and
// sessions with stale heartbeats never make the list.
func (e *Engine) assignNearest(ctx context.Context, emergency *models.Emergency, exclude []uuid.UUID) (*models.Assignment, error) {
	const op = "dispatch.Engine.assignNearest"

	now := e.clock.Now()
	cutoff := now.Add(-e.cfg.StaleThreshold)

	sessions, err := e.repos.session.ListOnlineFresh(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	excluded := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	candidates := sessions[:0]
	for _, s := range sessions {
		if !excluded[s.DriverID] {
			candidates = append(candidates, s)
		}
	}

	for len(candidates) > 0 {
		// First strict minimum wins, so equal distances resolve by list
		// order and the pick is deterministic.
		best := 0
		bestDist := distanceToEmergency(candidates[0], emergency.Location)
		for i := 1; i < len(candidates); i++ {
			if d := distanceToEmergency(candidates[i], emergency.Location); d < bestDist {
				best, bestDist = i, d
			}
		}
		session := candidates[best]
		candidates = append(candidates[:best], candidates[best+1:]...)

		vehicle, err := e.repos.vehicle.Get(ctx, session.VehicleID)
		if err != nil {
			e.l.Warn(ctx, "candidate vehicle lookup failed", "vehicle_id", session.VehicleID.String(), "error", err)
			continue
		}
		if vehicle.Status != types.VehicleAvailable {
			continue
		}

		if err := e.repos.vehicle.SetStatus(ctx, vehicle, types.VehicleBusy); err != nil {
			if errors.Is(err, types.ErrOptimisticLockConflict) {
				// Lost the race to another dispatch, try the next one.
				e.l.Debug(ctx, "vehicle claimed concurrently", "vehicle_id", vehicle.ID.String())
				continue
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		assignment := &models.Assignment{
			EmergencyID: emergency.ID,
			VehicleID:   vehicle.ID,
			Status:      types.AssignmentAssigned,
			AssignedAt:  now,
			RespondBy:   now.Add(e.cfg.ResponseWindow),
		}
		if assignment, err = e.repos.assignment.Create(ctx, assignment); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		e.l.Info(ctx, "ambulance assigned",
			"assignment_id", assignment.ID.String(),
			"vehicle_id", vehicle.ID.String(),
			"distance_km", bestDist,
		)
		return assignment, nil
	}

	return nil, wrap.Error(ctx, types.ErrNoDriversAvailable)
}

// offerCreated tells the session's driver about the pending offer. Best
// effort: a failed publish never unwinds the assignment.
func (e *Engine) offerCreated(ctx context.Context, emergency *models.Emergency, a *models.Assignment) {
	if e.notifier == nil {
		return
	}

	session, err := e.repos.session.GetActiveByVehicle(ctx, a.VehicleID)
	if err != nil {
		e.l.Warn(ctx, "offer notification skipped", "assignment_id", a.ID.String(), "error", err)
		return
	}

	distance := distanceToEmergency(session, emergency.Location)
	if math.IsInf(distance, 1) {
		distance = 0 // driver has not reported a location yet
	}

	msg := models.AssignmentOfferMessage{
		AssignmentID: a.ID,
		EmergencyID:  a.EmergencyID,
		DriverID:     session.DriverID,
		VehicleID:    a.VehicleID,
		Type:         emergency.Type,
		Severity:     emergency.Severity,
		Location:     emergency.Location,
		DistanceKm:   distance,
		RespondBy:    a.RespondBy,
	}
	if err := e.notifier.PublishAssignmentOffer(ctx, msg); err != nil {
		e.l.Warn(ctx, "failed to publish assignment offer", "assignment_id", a.ID.String(), "error", err)
	}
}
