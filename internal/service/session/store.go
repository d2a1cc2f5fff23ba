package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/clock"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/metrics"
	"github.com/aqylbek/ambulance-dispatch/pkg/trm"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

// Config carries the session timing knobs.
type Config struct {
	StaleThreshold time.Duration // heartbeat age at which a session goes offline
}

// Service owns the driver shift lifecycle: going online, heartbeats and
// location updates, trip state, and the stale-session cutoff.
type Service struct {
	repos    repos
	notifier Notifier
	trm      trm.TxManager
	clock    clock.Clock
	cfg      Config
	l        logger.Logger
}

type repos struct {
	session SessionRepo
	user    UserRepo
	vehicle VehicleRepo
}

func New(
	sessionRepo SessionRepo,
	userRepo UserRepo,
	vehicleRepo VehicleRepo,
	notifier Notifier,
	txManager trm.TxManager,
	clk clock.Clock,
	cfg Config,
	l logger.Logger,
) *Service {
	return &Service{
		repos: repos{
			session: sessionRepo,
			user:    userRepo,
			vehicle: vehicleRepo,
		},
		notifier: notifier,
		trm:      txManager,
		clock:    clk,
		cfg:      cfg,
		l:        l,
	}
}

// StartShift opens a new ONLINE session for a verified driver on an
// unclaimed AVAILABLE vehicle. The session's location is seeded from the
// vehicle so the driver is dispatchable before the first heartbeat.
func (s *Service) StartShift(ctx context.Context, driverID, vehicleID uuid.UUID) (*models.DriverSession, error) {
	const op = "session.Service.StartShift"

	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:    "start_shift",
		DriverID:  driverID.String(),
		RequestID: wrap.GetRequestID(ctx),
	})

	var session *models.DriverSession
	err := s.trm.Do(ctx, func(ctx context.Context) error {
		driver, err := s.repos.user.Get(ctx, driverID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if driver.Role != types.RoleDriver {
			return wrap.Error(ctx, types.ErrUserNotFound)
		}
		if driver.IsBlocked() {
			return wrap.Error(ctx, types.ErrUserBlocked)
		}
		if !driver.IsVerified {
			return wrap.Error(ctx, types.ErrDriverNotVerified)
		}

		if existing, err := s.repos.session.GetActiveByDriver(ctx, driverID); err == nil {
			if existing.Status == types.SessionOnTrip {
				return wrap.Error(ctx, types.ErrDriverOnTrip)
			}
			return wrap.Error(ctx, types.ErrDriverAlreadyOnline)
		} else if !errors.Is(err, types.ErrNoActiveSession) {
			return fmt.Errorf("%s: %w", op, err)
		}

		vehicle, err := s.repos.vehicle.Get(ctx, vehicleID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if vehicle.Status != types.VehicleAvailable {
			return wrap.Error(ctx, types.ErrVehicleNotAvailable)
		}
		if _, err := s.repos.session.GetActiveByVehicle(ctx, vehicleID); err == nil {
			return wrap.Error(ctx, types.ErrVehicleClaimed)
		} else if !errors.Is(err, types.ErrSessionNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}

		now := s.clock.Now()
		session = &models.DriverSession{
			DriverID:      driverID,
			VehicleID:     vehicleID,
			Status:        types.SessionOnline,
			SessionStart:  now,
			LastHeartbeat: &now,
		}
		if loc, ok := vehicle.LastLocation(); ok {
			session.LastLatitude = &loc.Latitude
			session.LastLongitude = &loc.Longitude
			session.LocationUpdatedAt = &now
		}

		if session, err = s.repos.session.Create(ctx, session); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.DriversOnlineGauge.Inc()
	s.l.Info(ctx, "shift started", "session_id", session.ID.String(), "vehicle_id", vehicleID.String())
	return session, nil
}

// EndShift closes the driver's open session. A driver mid-trip has to
// finish or hand off the emergency first.
func (s *Service) EndShift(ctx context.Context, driverID uuid.UUID) error {
	const op = "session.Service.EndShift"

	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:    "end_shift",
		DriverID:  driverID.String(),
		RequestID: wrap.GetRequestID(ctx),
	})

	err := s.trm.Do(ctx, func(ctx context.Context) error {
		session, err := s.repos.session.GetActiveByDriver(ctx, driverID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if session.Status == types.SessionOnTrip {
			return wrap.Error(ctx, types.ErrDriverOnTrip)
		}

		now := s.clock.Now()
		session.Status = types.SessionOffline
		session.SessionEnd = &now
		if err := s.repos.session.Update(ctx, session); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.DriversOnlineGauge.Dec()
	s.l.Info(ctx, "shift ended")
	return nil
}

// UpdateLocation records a GPS fix. Location and heartbeat always move
// together: a position report is proof of life. The vehicle's last known
// position is refreshed best effort.
func (s *Service) UpdateLocation(ctx context.Context, driverID uuid.UUID, loc models.Location) error {
	const op = "session.Service.UpdateLocation"

	session, err := s.repos.session.GetActiveByDriver(ctx, driverID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock.Now()
	session.LastLatitude = &loc.Latitude
	session.LastLongitude = &loc.Longitude
	session.LocationUpdatedAt = &now
	session.LastHeartbeat = &now

	if err := s.repos.session.Update(ctx, session); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repos.vehicle.UpdateLocation(ctx, session.VehicleID, loc); err != nil {
		s.l.Warn(ctx, "failed to refresh vehicle location", "vehicle_id", session.VehicleID.String(), "error", err)
	}
	return nil
}

// Heartbeat refreshes the liveness timestamp without moving the pin.
func (s *Service) Heartbeat(ctx context.Context, driverID uuid.UUID) error {
	const op = "session.Service.Heartbeat"

	session, err := s.repos.session.GetActiveByDriver(ctx, driverID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock.Now()
	session.LastHeartbeat = &now
	if err := s.repos.session.Update(ctx, session); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkOnTrip moves the driver's session ONLINE -> ON_TRIP when they accept
// an assignment. Runs inside the caller's transaction.
func (s *Service) MarkOnTrip(ctx context.Context, driverID uuid.UUID) error {
	const op = "session.Service.MarkOnTrip"

	session, err := s.repos.session.GetActiveByDriver(ctx, driverID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if session.Status != types.SessionOnline {
		return wrap.Error(ctx, types.ErrDriverOnTrip)
	}

	session.Status = types.SessionOnTrip
	if err := s.repos.session.Update(ctx, session); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkOnline returns the driver to the dispatchable pool. Idempotent: a
// session already ONLINE is left alone.
func (s *Service) MarkOnline(ctx context.Context, driverID uuid.UUID) error {
	const op = "session.Service.MarkOnline"

	session, err := s.repos.session.GetActiveByDriver(ctx, driverID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if session.Status == types.SessionOnline {
		return nil
	}

	session.Status = types.SessionOnline
	if err := s.repos.session.Update(ctx, session); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FinishTrip is MarkOnline plus the completed-emergencies counter, used when
// a driver closes out an emergency. Runs inside the caller's transaction.
func (s *Service) FinishTrip(ctx context.Context, driverID uuid.UUID) error {
	const op = "session.Service.FinishTrip"

	session, err := s.repos.session.GetActiveByDriver(ctx, driverID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	session.Status = types.SessionOnline
	session.EmergenciesHandled++
	if err := s.repos.session.Update(ctx, session); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetActive returns the driver's open session.
func (s *Service) GetActive(ctx context.Context, driverID uuid.UUID) (*models.DriverSession, error) {
	return s.repos.session.GetActiveByDriver(ctx, driverID)
}

// IsStale reports whether the session's heartbeat is too old to trust. The
// boundary is inclusive: a heartbeat aged exactly at the threshold is stale.
func (s *Service) IsStale(session *models.DriverSession, now time.Time) bool {
	if session.LastHeartbeat == nil {
		return true
	}
	return now.Sub(*session.LastHeartbeat) >= s.cfg.StaleThreshold
}

// DetectAndMarkStaleOffline force-closes sessions whose drivers stopped
// reporting. A stale ON_TRIP session additionally raises a critical alert:
// the assignment is left for operators, the sweep never reassigns mid-trip
// on its own. Returns how many sessions were closed.
func (s *Service) DetectAndMarkStaleOffline(ctx context.Context) (int, error) {
	const op = "session.Service.DetectAndMarkStaleOffline"

	sessions, err := s.repos.session.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock.Now()
	closed := 0
	for _, session := range sessions {
		if !s.IsStale(session, now) {
			continue
		}

		wasOnTrip := session.Status == types.SessionOnTrip
		err := s.trm.Do(ctx, func(ctx context.Context) error {
			// Stamping session_end is what removes the session from active
			// queries; the last status is kept for the audit trail.
			session.SessionEnd = &now
			return s.repos.session.Update(ctx, session)
		})
		if err != nil {
			if errors.Is(err, types.ErrOptimisticLockConflict) {
				// The driver came back or another sweep got here first.
				s.l.Debug(ctx, "stale session changed concurrently", "session_id", session.ID.String())
				continue
			}
			s.l.Error(ctx, "failed to close stale session", err, "session_id", session.ID.String())
			continue
		}

		closed++
		metrics.DriversOnlineGauge.Dec()
		metrics.RecordStaleSession(wasOnTrip)
		s.l.Warn(ctx, "stale session closed",
			"session_id", session.ID.String(),
			"driver_id", session.DriverID.String(),
			"was_on_trip", wasOnTrip,
		)

		if wasOnTrip && s.notifier != nil {
			alert := models.CriticalAlertMessage{
				Kind:      "driver_stale_on_trip",
				DriverID:  session.DriverID,
				VehicleID: session.VehicleID,
				Detail:    "driver heartbeat went stale mid-trip, manual intervention required",
				Timestamp: now,
			}
			if err := s.notifier.PublishCriticalAlert(ctx, alert); err != nil {
				s.l.Warn(ctx, "failed to publish stale-driver alert", "error", err)
			}
		}
	}

	return closed, nil
}
