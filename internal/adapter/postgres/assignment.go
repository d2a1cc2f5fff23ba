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

type AssignmentRepo struct {
	db *pgxpool.Pool
}

func NewAssignmentRepo(db *pgxpool.Pool) *AssignmentRepo {
	return &AssignmentRepo{db: db}
}

const assignmentColumns = `
	id, emergency_id, vehicle_id, driver_id, status,
	assigned_at, respond_by, accepted_at, rejected_at, timed_out_at, cancelled_at, completed_at,
	response_time_seconds, cancel_reason, version`

func scanAssignment(row pgx.Row) (*models.Assignment, error) {
	var a models.Assignment
	err := row.Scan(
		&a.ID, &a.EmergencyID, &a.VehicleID, &a.DriverID, &a.Status,
		&a.AssignedAt, &a.RespondBy, &a.AcceptedAt, &a.RejectedAt, &a.TimedOutAt, &a.CancelledAt, &a.CompletedAt,
		&a.ResponseTimeSeconds, &a.CancelReason, &a.Version,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssignmentRepo) Create(ctx context.Context, a *models.Assignment) (*models.Assignment, error) {
	q := TxorDB(ctx, r.db)

	query := `
		INSERT INTO assignments (emergency_id, vehicle_id, driver_id, status, assigned_at, respond_by, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		RETURNING id, version;`

	err := q.QueryRow(ctx, query,
		a.EmergencyID, a.VehicleID, a.DriverID, a.Status, a.AssignedAt, a.RespondBy,
	).Scan(&a.ID, &a.Version)
	if err != nil {
		return nil, fmt.Errorf("assignment repo: Create: %w", err)
	}

	return a, nil
}

func (r *AssignmentRepo) Get(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1;`

	a, err := scanAssignment(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("assignment repo: Get: %w", err)
	}
	return a, nil
}

// GetActiveForUpdate locks the single ASSIGNED or ACCEPTED assignment of the
// emergency. Concurrent responders serialize on this row: the second caller
// blocks until the first commits, then sees the already-moved status.
func (r *AssignmentRepo) GetActiveForUpdate(ctx context.Context, emergencyID uuid.UUID) (*models.Assignment, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE emergency_id = $1 AND status IN ($2, $3)
		FOR UPDATE;`

	a, err := scanAssignment(q.QueryRow(ctx, query, emergencyID, types.AssignmentAssigned, types.AssignmentAccepted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("assignment repo: GetActiveForUpdate: %w", err)
	}
	return a, nil
}

// GetActive returns the emergency's ASSIGNED or ACCEPTED assignment without locking.
func (r *AssignmentRepo) GetActive(ctx context.Context, emergencyID uuid.UUID) (*models.Assignment, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE emergency_id = $1 AND status IN ($2, $3);`

	a, err := scanAssignment(q.QueryRow(ctx, query, emergencyID, types.AssignmentAssigned, types.AssignmentAccepted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("assignment repo: GetActive: %w", err)
	}
	return a, nil
}

func (r *AssignmentRepo) Update(ctx context.Context, a *models.Assignment) error {
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE assignments
		SET
			driver_id = $2,
			status = $3,
			accepted_at = $4,
			rejected_at = $5,
			timed_out_at = $6,
			cancelled_at = $7,
			completed_at = $8,
			response_time_seconds = $9,
			cancel_reason = $10,
			version = version + 1
		WHERE id = $1 AND version = $11;`

	cmdTag, err := q.Exec(ctx, query,
		a.ID, a.DriverID, a.Status,
		a.AcceptedAt, a.RejectedAt, a.TimedOutAt, a.CancelledAt, a.CompletedAt,
		a.ResponseTimeSeconds, a.CancelReason,
		a.Version,
	)
	if err != nil {
		return fmt.Errorf("assignment repo: Update: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return wrap.Error(ctx, types.ErrOptimisticLockConflict)
	}
	a.Version++

	return nil
}

// ListExpiredAssigned returns ASSIGNED assignments whose response window
// closed on or before now.
func (r *AssignmentRepo) ListExpiredAssigned(ctx context.Context, now time.Time) ([]*models.Assignment, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE status = $1 AND respond_by <= $2
		ORDER BY respond_by;`

	rows, err := q.Query(ctx, query, types.AssignmentAssigned, now)
	if err != nil {
		return nil, fmt.Errorf("assignment repo: ListExpiredAssigned: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// ListByEmergency returns every assignment of the emergency, oldest first.
func (r *AssignmentRepo) ListByEmergency(ctx context.Context, emergencyID uuid.UUID) ([]*models.Assignment, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE emergency_id = $1
		ORDER BY assigned_at;`

	rows, err := q.Query(ctx, query, emergencyID)
	if err != nil {
		return nil, fmt.Errorf("assignment repo: ListByEmergency: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// RejectedDriverIDs returns the drivers who rejected an assignment for this
// emergency. Timed-out offers carry no driver id and so never exclude anyone.
func (r *AssignmentRepo) RejectedDriverIDs(ctx context.Context, emergencyID uuid.UUID) ([]uuid.UUID, error) {
	q := TxorDB(ctx, r.db)

	query := `
		SELECT DISTINCT driver_id
		FROM assignments
		WHERE emergency_id = $1 AND status = $2 AND driver_id IS NOT NULL;`

	rows, err := q.Query(ctx, query, emergencyID, types.AssignmentRejected)
	if err != nil {
		return nil, fmt.Errorf("assignment repo: RejectedDriverIDs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("assignment repo: RejectedDriverIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignment repo: RejectedDriverIDs rows: %w", err)
	}
	return ids, nil
}

// HasActiveForVehicle reports whether the vehicle holds an ASSIGNED or
// ACCEPTED assignment. Used by the invariant sweeps to find leaked BUSY vehicles.
func (r *AssignmentRepo) HasActiveForVehicle(ctx context.Context, vehicleID uuid.UUID) (bool, error) {
	q := TxorDB(ctx, r.db)

	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM assignments
			WHERE vehicle_id = $1 AND status IN ($2, $3)
		);`

	err := q.QueryRow(ctx, query, vehicleID, types.AssignmentAssigned, types.AssignmentAccepted).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("assignment repo: HasActiveForVehicle: %w", err)
	}
	return exists, nil
}

func collectAssignments(rows pgx.Rows) ([]*models.Assignment, error) {
	var out []*models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("assignment repo: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignment repo: rows: %w", err)
	}
	return out, nil
}
