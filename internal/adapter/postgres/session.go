package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

type SessionRepo struct {
	db *pgxpool.Pool
}

func NewSessionRepo(db *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{db: db}
}

const sessionColumns = `
	id, driver_id, vehicle_id, status, session_start, session_end,
	last_latitude, last_longitude, location_updated_at, last_heartbeat,
	emergencies_handled, version`

func scanSession(row pgx.Row) (*models.DriverSession, error) {
	var s models.DriverSession
	err := row.Scan(
		&s.ID, &s.DriverID, &s.VehicleID, &s.Status, &s.SessionStart, &s.SessionEnd,
		&s.LastLatitude, &s.LastLongitude, &s.LocationUpdatedAt, &s.LastHeartbeat,
		&s.EmergenciesHandled, &s.Version,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Create(ctx context.Context, s *models.DriverSession) (*models.DriverSession, error) {
	q := TxorDB(ctx, r.db)

	query := `
		INSERT INTO driver_sessions (driver_id, vehicle_id, status, session_start,
		                             last_latitude, last_longitude, location_updated_at, last_heartbeat, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		RETURNING id, version;`

	err := q.QueryRow(ctx, query,
		s.DriverID, s.VehicleID, s.Status, s.SessionStart,
		s.LastLatitude, s.LastLongitude, s.LocationUpdatedAt, s.LastHeartbeat,
	).Scan(&s.ID, &s.Version)
	if err != nil {
		return nil, fmt.Errorf("session repo: Create: %w", err)
	}

	return s, nil
}

// GetActiveByDriver returns the driver's open session (session_end is null).
func (r *SessionRepo) GetActiveByDriver(ctx context.Context, driverID uuid.UUID) (*models.DriverSession, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + sessionColumns + `
		FROM driver_sessions
		WHERE driver_id = $1 AND session_end IS NULL;`

	s, err := scanSession(q.QueryRow(ctx, query, driverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNoActiveSession
		}
		return nil, fmt.Errorf("session repo: GetActiveByDriver: %w", err)
	}
	return s, nil
}

// GetActiveByVehicle returns the open session claiming the vehicle, if any.
func (r *SessionRepo) GetActiveByVehicle(ctx context.Context, vehicleID uuid.UUID) (*models.DriverSession, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + sessionColumns + `
		FROM driver_sessions
		WHERE vehicle_id = $1 AND session_end IS NULL;`

	s, err := scanSession(q.QueryRow(ctx, query, vehicleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrSessionNotFound
		}
		return nil, fmt.Errorf("session repo: GetActiveByVehicle: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) Update(ctx context.Context, s *models.DriverSession) error {
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE driver_sessions
		SET
			status = $2,
			session_end = $3,
			last_latitude = $4,
			last_longitude = $5,
			location_updated_at = $6,
			last_heartbeat = $7,
			emergencies_handled = $8,
			version = version + 1
		WHERE id = $1 AND version = $9;`

	cmdTag, err := q.Exec(ctx, query,
		s.ID, s.Status, s.SessionEnd,
		s.LastLatitude, s.LastLongitude, s.LocationUpdatedAt, s.LastHeartbeat,
		s.EmergenciesHandled,
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("session repo: Update: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return wrap.Error(ctx, types.ErrOptimisticLockConflict)
	}
	s.Version++

	return nil
}

// ListOnlineFresh returns ONLINE sessions whose last heartbeat is strictly
// newer than cutoff. Sessions at or past the cutoff count as stale.
func (r *SessionRepo) ListOnlineFresh(ctx context.Context, cutoff time.Time) ([]*models.DriverSession, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + sessionColumns + `
		FROM driver_sessions
		WHERE status = $1 AND session_end IS NULL
		  AND last_heartbeat IS NOT NULL AND last_heartbeat > $2
		ORDER BY session_start;`

	rows, err := q.Query(ctx, query, types.SessionOnline, cutoff)
	if err != nil {
		return nil, fmt.Errorf("session repo: ListOnlineFresh: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListActive returns all open sessions regardless of status.
func (r *SessionRepo) ListActive(ctx context.Context) ([]*models.DriverSession, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + sessionColumns + `
		FROM driver_sessions
		WHERE session_end IS NULL
		ORDER BY session_start;`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("session repo: ListActive: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// CountOnline counts open sessions that are ONLINE or ON_TRIP.
func (r *SessionRepo) CountOnline(ctx context.Context) (int, error) {
	q := TxorDB(ctx, r.db)

	var count int
	query := `
		SELECT COUNT(*) FROM driver_sessions
		WHERE session_end IS NULL AND status IN ($1, $2);`

	err := q.QueryRow(ctx, query, types.SessionOnline, types.SessionOnTrip).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("session repo: CountOnline: %w", err)
	}
	return count, nil
}

func collectSessions(rows pgx.Rows) ([]*models.DriverSession, error) {
	var out []*models.DriverSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("session repo: scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session repo: rows: %w", err)
	}
	return out, nil
}
