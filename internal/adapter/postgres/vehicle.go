package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

type VehicleRepo struct {
	db *pgxpool.Pool
}

func NewVehicleRepo(db *pgxpool.Pool) *VehicleRepo {
	return &VehicleRepo{db: db}
}

const vehicleColumns = `
	id, plate_number, status, last_latitude, last_longitude, created_at, updated_at, version`

func scanVehicle(row pgx.Row) (*models.Vehicle, error) {
	var v models.Vehicle
	err := row.Scan(
		&v.ID, &v.PlateNumber, &v.Status,
		&v.LastLatitude, &v.LastLongitude,
		&v.CreatedAt, &v.UpdatedAt, &v.Version,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VehicleRepo) Get(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1;`

	v, err := scanVehicle(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("vehicle repo: Get: %w", err)
	}
	return v, nil
}

// SetStatus moves the vehicle between AVAILABLE and BUSY guarded by version.
// A zero-row update means a concurrent claim won; callers decide whether that
// is a hard failure (claiming) or benign (freeing).
func (r *VehicleRepo) SetStatus(ctx context.Context, v *models.Vehicle, status types.VehicleStatus) error {
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE vehicles
		SET status = $2, updated_at = now(), version = version + 1
		WHERE id = $1 AND version = $3;`

	cmdTag, err := q.Exec(ctx, query, v.ID, status, v.Version)
	if err != nil {
		return fmt.Errorf("vehicle repo: SetStatus: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return wrap.Error(ctx, types.ErrOptimisticLockConflict)
	}
	v.Status = status
	v.Version++

	return nil
}

func (r *VehicleRepo) UpdateLocation(ctx context.Context, id uuid.UUID, loc models.Location) error {
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE vehicles
		SET last_latitude = $2, last_longitude = $3, updated_at = now(), version = version + 1
		WHERE id = $1;`

	cmdTag, err := q.Exec(ctx, query, id, loc.Latitude, loc.Longitude)
	if err != nil {
		return fmt.Errorf("vehicle repo: UpdateLocation: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return wrap.Error(ctx, types.ErrVehicleNotFound)
	}
	return nil
}

// ListByStatus returns vehicles currently in the given status.
func (r *VehicleRepo) ListByStatus(ctx context.Context, status types.VehicleStatus) ([]*models.Vehicle, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + vehicleColumns + `
		FROM vehicles
		WHERE status = $1
		ORDER BY plate_number;`

	rows, err := q.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("vehicle repo: ListByStatus: %w", err)
	}
	defer rows.Close()

	var out []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("vehicle repo: scan: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vehicle repo: rows: %w", err)
	}
	return out, nil
}
