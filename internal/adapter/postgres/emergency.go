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

type EmergencyRepo struct {
	db *pgxpool.Pool
}

func NewEmergencyRepo(db *pgxpool.Pool) *EmergencyRepo {
	return &EmergencyRepo{db: db}
}

const emergencyColumns = `
	id, requester_id, latitude, longitude, emergency_type, severity, status,
	created_at, confirmation_deadline, status_updated_at, completed_at, cancelled_at,
	hospital_latitude, hospital_longitude, hospital_distance_km,
	is_suspect, cancel_reason, version`

func scanEmergency(row pgx.Row) (*models.Emergency, error) {
	var e models.Emergency
	var hospLat, hospLon *float64

	err := row.Scan(
		&e.ID, &e.RequesterID, &e.Location.Latitude, &e.Location.Longitude,
		&e.Type, &e.Severity, &e.Status,
		&e.CreatedAt, &e.ConfirmationDeadline, &e.StatusUpdatedAt, &e.CompletedAt, &e.CancelledAt,
		&hospLat, &hospLon, &e.HospitalDistanceKm,
		&e.IsSuspect, &e.CancelReason, &e.Version,
	)
	if err != nil {
		return nil, err
	}

	if hospLat != nil && hospLon != nil {
		e.HospitalLocation = &models.Location{Latitude: *hospLat, Longitude: *hospLon}
	}
	return &e, nil
}

func (r *EmergencyRepo) Create(ctx context.Context, e *models.Emergency) (*models.Emergency, error) {
	q := TxorDB(ctx, r.db)

	query := `
		INSERT INTO emergencies (requester_id, latitude, longitude, emergency_type, severity, status,
		                         confirmation_deadline, status_updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		RETURNING id, created_at, version;`

	err := q.QueryRow(ctx, query,
		e.RequesterID, e.Location.Latitude, e.Location.Longitude,
		e.Type, e.Severity, e.Status,
		e.ConfirmationDeadline, e.StatusUpdatedAt,
	).Scan(&e.ID, &e.CreatedAt, &e.Version)
	if err != nil {
		return nil, fmt.Errorf("emergency repo: Create: %w", err)
	}

	return e, nil
}

func (r *EmergencyRepo) Get(ctx context.Context, id uuid.UUID) (*models.Emergency, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + emergencyColumns + ` FROM emergencies WHERE id = $1;`

	e, err := scanEmergency(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrEmergencyNotFound
		}
		return nil, fmt.Errorf("emergency repo: Get: %w", err)
	}
	return e, nil
}

// GetForUpdate reads the row under a row lock so state machine checks and the
// following Update happen against a stable snapshot.
func (r *EmergencyRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Emergency, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + emergencyColumns + ` FROM emergencies WHERE id = $1 FOR UPDATE;`

	e, err := scanEmergency(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrEmergencyNotFound
		}
		return nil, fmt.Errorf("emergency repo: GetForUpdate: %w", err)
	}
	return e, nil
}

// Update writes every mutable field guarded by the version the caller read.
// ErrOptimisticLockConflict means someone else advanced the row first.
func (r *EmergencyRepo) Update(ctx context.Context, e *models.Emergency) error {
	q := TxorDB(ctx, r.db)

	var hospLat, hospLon *float64
	if e.HospitalLocation != nil {
		hospLat = &e.HospitalLocation.Latitude
		hospLon = &e.HospitalLocation.Longitude
	}

	query := `
		UPDATE emergencies
		SET
			status = $2,
			status_updated_at = $3,
			completed_at = $4,
			cancelled_at = $5,
			hospital_latitude = $6,
			hospital_longitude = $7,
			hospital_distance_km = $8,
			is_suspect = $9,
			cancel_reason = $10,
			version = version + 1
		WHERE id = $1 AND version = $11;`

	cmdTag, err := q.Exec(ctx, query,
		e.ID, e.Status, e.StatusUpdatedAt, e.CompletedAt, e.CancelledAt,
		hospLat, hospLon, e.HospitalDistanceKm,
		e.IsSuspect, e.CancelReason,
		e.Version,
	)
	if err != nil {
		return fmt.Errorf("emergency repo: Update: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return wrap.Error(ctx, types.ErrOptimisticLockConflict)
	}
	e.Version++

	return nil
}

// ListExpiredCreated returns CREATED emergencies whose confirmation deadline
// has passed as of now.
func (r *EmergencyRepo) ListExpiredCreated(ctx context.Context, now time.Time) ([]*models.Emergency, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + emergencyColumns + `
		FROM emergencies
		WHERE status = $1 AND confirmation_deadline <= $2
		ORDER BY created_at;`

	rows, err := q.Query(ctx, query, types.EmergencyCreated, now)
	if err != nil {
		return nil, fmt.Errorf("emergency repo: ListExpiredCreated: %w", err)
	}
	defer rows.Close()

	return collectEmergencies(rows)
}

// ListByStatus returns all emergencies currently in the given status.
func (r *EmergencyRepo) ListByStatus(ctx context.Context, status types.EmergencyStatus) ([]*models.Emergency, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + emergencyColumns + `
		FROM emergencies
		WHERE status = $1
		ORDER BY created_at;`

	rows, err := q.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("emergency repo: ListByStatus: %w", err)
	}
	defer rows.Close()

	return collectEmergencies(rows)
}

func collectEmergencies(rows pgx.Rows) ([]*models.Emergency, error) {
	var out []*models.Emergency
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, fmt.Errorf("emergency repo: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("emergency repo: rows: %w", err)
	}
	return out, nil
}

// CountActive counts emergencies that are neither COMPLETED nor CANCELLED.
func (r *EmergencyRepo) CountActive(ctx context.Context) (int, error) {
	q := TxorDB(ctx, r.db)

	var count int
	query := `SELECT COUNT(*) FROM emergencies WHERE status NOT IN ($1, $2);`

	err := q.QueryRow(ctx, query, types.EmergencyCompleted, types.EmergencyCancelled).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("emergency repo: CountActive: %w", err)
	}
	return count, nil
}

// CountByStatus returns emergency counts grouped by status.
func (r *EmergencyRepo) CountByStatus(ctx context.Context) (map[types.EmergencyStatus]int, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT status, COUNT(*) FROM emergencies GROUP BY status;`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("emergency repo: CountByStatus: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.EmergencyStatus]int)
	for rows.Next() {
		var status types.EmergencyStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("emergency repo: CountByStatus scan: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("emergency repo: CountByStatus rows: %w", err)
	}
	return counts, nil
}
