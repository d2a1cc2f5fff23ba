package emergency

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// Config carries the coordinator timing knobs.
type Config struct {
	ConfirmationWindow time.Duration // how long a CREATED emergency may wait for dispatch
}

// Service coordinates the emergency lifecycle: creation, driver responses,
// progress confirmations, completion, cancellation, and timeout recovery.
type Service struct {
	repos      repos
	sessions   SessionService
	dispatcher Dispatcher
	notifier   Notifier
	trm        trm.TxManager
	clock      clock.Clock
	cfg        Config
	l          logger.Logger
}

type repos struct {
	emergency  EmergencyRepo
	assignment AssignmentRepo
	vehicle    VehicleRepo
	user       UserRepo
}

func New(
	emergencyRepo EmergencyRepo,
	assignmentRepo AssignmentRepo,
	vehicleRepo VehicleRepo,
	userRepo UserRepo,
	sessions SessionService,
	dispatcher Dispatcher,
	notifier Notifier,
	txManager trm.TxManager,
	clk clock.Clock,
	cfg Config,
	l logger.Logger,
) *Service {
	return &Service{
		repos: repos{
			emergency:  emergencyRepo,
			assignment: assignmentRepo,
			vehicle:    vehicleRepo,
			user:       userRepo,
		},
		sessions:   sessions,
		dispatcher: dispatcher,
		notifier:   notifier,
		trm:        txManager,
		clock:      clk,
		cfg:        cfg,
		l:          l,
	}
}

// CreateEmergency registers a new call in CREATED and immediately tries to
// dispatch it. A failed first dispatch is not an error: the confirmation
// sweep keeps retrying until the deadline runs out.
func (s *Service) CreateEmergency(ctx context.Context, requesterID uuid.UUID, loc models.Location, emType types.EmergencyType, severity types.Severity) (*models.Emergency, error) {
	const op = "emergency.Service.CreateEmergency"

	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:    "create_emergency",
		UserID:    requesterID.String(),
		RequestID: wrap.GetRequestID(ctx),
	})

	requester, err := s.repos.user.Get(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if requester.IsBlocked() {
		return nil, wrap.Error(ctx, types.ErrUserBlocked)
	}

	now := s.clock.Now()
	emergency := &models.Emergency{
		RequesterID:          requesterID,
		Location:             loc,
		Type:                 emType,
		Severity:             severity,
		Status:               types.EmergencyCreated,
		ConfirmationDeadline: now.Add(s.cfg.ConfirmationWindow),
		StatusUpdatedAt:      now,
	}

	err = s.trm.Do(ctx, func(ctx context.Context) error {
		emergency, err = s.repos.emergency.Create(ctx, emergency)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.EmergenciesTotal.WithLabelValues(string(types.EmergencyCreated)).Inc()
	metrics.ActiveEmergenciesGauge.Inc()
	s.l.Info(ctx, "emergency created",
		"emergency_id", emergency.ID.String(),
		"type", string(emType),
		"severity", string(severity),
	)
	s.notifyStatus(ctx, emergency, nil)

	if err := s.dispatcher.Dispatch(ctx, emergency.ID); err != nil {
		// Expected while no drivers are around or recovery is running.
		s.l.Info(ctx, "initial dispatch deferred",
			"emergency_id", emergency.ID.String(),
			"reason", err.Error(),
		)
	} else if refreshed, err := s.repos.emergency.Get(ctx, emergency.ID); err == nil {
		emergency = refreshed
	}

	return emergency, nil
}

// GetEmergency returns the emergency by id.
func (s *Service) GetEmergency(ctx context.Context, id uuid.UUID) (*models.Emergency, error) {
	return s.repos.emergency.Get(ctx, id)
}

// Cancel aborts a non-terminal emergency. Inside the confirmation window
// with nobody assigned yet the cancel is penalty-free; after that the
// requester is flagged as a suspect canceller and their counter is bumped.
func (s *Service) Cancel(ctx context.Context, emergencyID uuid.UUID, caller *models.User, reason string) error {
	const op = "emergency.Service.Cancel"

	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:      "cancel_emergency",
		UserID:      caller.ID.String(),
		EmergencyID: emergencyID.String(),
		RequestID:   wrap.GetRequestID(ctx),
	})

	var (
		emergency *models.Emergency
		suspect   bool
	)
	err := s.trm.Do(ctx, func(ctx context.Context) error {
		var err error
		emergency, err = s.repos.emergency.GetForUpdate(ctx, emergencyID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if caller.Role != types.RoleAdmin && emergency.RequesterID != caller.ID {
			return wrap.Error(ctx, types.ErrEmergencyNotFound)
		}
		if !statemachine.CanCancelEmergency(emergency.Status) {
			return wrap.Error(ctx, types.ErrEmergencyTerminal)
		}

		now := s.clock.Now()

		active, err := s.repos.assignment.GetActiveForUpdate(ctx, emergencyID)
		switch {
		case err == nil:
			// Somebody is already committed to this call: late cancel.
			suspect = true
			if err := s.cancelAssignment(ctx, active, now, reason); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		case errors.Is(err, types.ErrAssignmentNotFound):
			suspect = now.After(emergency.ConfirmationDeadline)
		default:
			return fmt.Errorf("%s: %w", op, err)
		}

		emergency.Status = types.EmergencyCancelled
		emergency.StatusUpdatedAt = now
		emergency.CancelledAt = &now
		emergency.IsSuspect = suspect
		if reason != "" {
			emergency.CancelReason = &reason
		}
		if err := s.repos.emergency.Update(ctx, emergency); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if suspect {
			if _, err := s.repos.user.IncrementSuspectCancellations(ctx, emergency.RequesterID); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.EmergenciesTotal.WithLabelValues(string(types.EmergencyCancelled)).Inc()
	metrics.ActiveEmergenciesGauge.Dec()
	s.l.Info(ctx, "emergency cancelled", "suspect", suspect)
	s.notifyStatus(ctx, emergency, nil)
	return nil
}

// cancelAssignment closes the active assignment during a cancel, frees the
// vehicle and brings an ON_TRIP driver back to the pool.
func (s *Service) cancelAssignment(ctx context.Context, a *models.Assignment, now time.Time, reason string) error {
	if err := statemachine.ValidateAssignmentTransition(a.Status, types.AssignmentCancelled); err != nil {
		return err
	}

	wasAccepted := a.Status == types.AssignmentAccepted
	a.Status = types.AssignmentCancelled
	a.CancelledAt = &now
	if reason != "" {
		a.CancelReason = &reason
	}
	if err := s.repos.assignment.Update(ctx, a); err != nil {
		return err
	}

	s.freeVehicle(ctx, a.VehicleID)

	if wasAccepted && a.DriverID != nil {
		if err := s.sessions.MarkOnline(ctx, *a.DriverID); err != nil {
			s.l.Warn(ctx, "failed to return cancelled driver online", "driver_id", a.DriverID.String(), "error", err)
		}
	}
	return nil
}

// GetTimeline reconstructs the ordered event history of an emergency from
// persisted timestamps. It is derived on demand, there is no event log.
func (s *Service) GetTimeline(ctx context.Context, emergencyID uuid.UUID) ([]models.TimelineEvent, error) {
	const op = "emergency.Service.GetTimeline"

	emergency, err := s.repos.emergency.Get(ctx, emergencyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	assignments, err := s.repos.assignment.ListByEmergency(ctx, emergencyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	events := []models.TimelineEvent{
		{EventType: types.EventCreated, Timestamp: emergency.CreatedAt},
	}

	for _, a := range assignments {
		detail := fmt.Sprintf("vehicle %s", a.VehicleID)
		events = append(events, models.TimelineEvent{
			EventType: types.EventAssigned,
			Timestamp: a.AssignedAt,
			Detail:    detail,
		})
		if a.AcceptedAt != nil {
			events = append(events, models.TimelineEvent{EventType: types.EventAccepted, Timestamp: *a.AcceptedAt, Detail: detail})
		}
		if a.RejectedAt != nil {
			events = append(events, models.TimelineEvent{EventType: types.EventRejected, Timestamp: *a.RejectedAt, Detail: detail})
		}
		if a.TimedOutAt != nil {
			events = append(events, models.TimelineEvent{EventType: types.EventTimedOut, Timestamp: *a.TimedOutAt, Detail: detail})
		}
	}

	switch emergency.Status {
	case types.EmergencyUnassigned:
		events = append(events, models.TimelineEvent{EventType: types.EventUnassigned, Timestamp: emergency.StatusUpdatedAt})
	case types.EmergencyAtPatient:
		events = append(events, models.TimelineEvent{EventType: types.EventAtPatient, Timestamp: emergency.StatusUpdatedAt})
	case types.EmergencyToHospital:
		events = append(events, models.TimelineEvent{EventType: types.EventToHospital, Timestamp: emergency.StatusUpdatedAt})
	}
	if emergency.CompletedAt != nil {
		events = append(events, models.TimelineEvent{EventType: types.EventCompleted, Timestamp: *emergency.CompletedAt})
	}
	if emergency.CancelledAt != nil {
		detail := ""
		if emergency.CancelReason != nil {
			detail = *emergency.CancelReason
		}
		events = append(events, models.TimelineEvent{EventType: types.EventCancelled, Timestamp: *emergency.CancelledAt, Detail: detail})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// freeVehicle returns a vehicle to AVAILABLE, swallowing optimistic
// conflicts: losing this update to a concurrent dispatch is fine, the
// invariant sweep cleans up any leftovers.
func (s *Service) freeVehicle(ctx context.Context, vehicleID uuid.UUID) {
	vehicle, err := s.repos.vehicle.Get(ctx, vehicleID)
	if err != nil {
		s.l.Warn(ctx, "failed to load vehicle for release", "vehicle_id", vehicleID.String(), "error", err)
		return
	}
	if vehicle.Status != types.VehicleBusy {
		return
	}
	if err := s.repos.vehicle.SetStatus(ctx, vehicle, types.VehicleAvailable); err != nil {
		if errors.Is(err, types.ErrOptimisticLockConflict) {
			s.l.Debug(ctx, "vehicle release lost a race", "vehicle_id", vehicleID.String())
			return
		}
		s.l.Warn(ctx, "failed to release vehicle", "vehicle_id", vehicleID.String(), "error", err)
	}
}

// notifyStatus publishes the status change best effort.
func (s *Service) notifyStatus(ctx context.Context, e *models.Emergency, driverID *uuid.UUID) {
	if s.notifier == nil {
		return
	}
	msg := models.EmergencyStatusMessage{
		EmergencyID:   e.ID,
		Status:        e.Status,
		Timestamp:     s.clock.Now(),
		DriverID:      driverID,
		CorrelationID: wrap.GetRequestID(ctx),
	}
	if err := s.notifier.PublishEmergencyStatus(ctx, msg); err != nil {
		s.l.Warn(ctx, "failed to publish emergency status", "emergency_id", e.ID.String(), "error", err)
	}
}
