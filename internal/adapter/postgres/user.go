package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	pghelp "github.com/aqylbek/ambulance-dispatch/pkg/postgres"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

type UserRepo struct {
	db *pgxpool.Pool
}

func NewUserRepo(db *pgxpool.Pool) *UserRepo {
	return &UserRepo{
		db: db,
	}
}

const userColumns = `
	id, name, phone, role, status, password_hash, is_verified, suspect_cancellations, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Phone, &u.Role, &u.Status,
		&u.PasswordHash, &u.IsVerified, &u.SuspectCancellations, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) (uuid.UUID, error) {
	if u == nil {
		return uuid.Nil, errors.New("nil user")
	}

	const q = `
		INSERT INTO users (name, phone, role, status, password_hash, is_verified)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'ACTIVE'), $5, $6)
		RETURNING id, status, created_at;`

	err := TxorDB(ctx, r.db).QueryRow(
		ctx, q, u.Name, u.Phone, u.Role, u.Status, u.PasswordHash, u.IsVerified,
	).Scan(&u.ID, &u.Status, &u.CreatedAt)
	if err != nil {
		if pghelp.IsUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("user repo: Create: phone already registered: %w", err)
		}
		return uuid.Nil, fmt.Errorf("user repo: Create: %w", err)
	}

	return u.ID, nil
}

func (r *UserRepo) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1;`

	u, err := scanUser(TxorDB(ctx, r.db).QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("user repo: Get: %w", err)
	}
	return u, nil
}

// GetByPhone fetches by phone (unique).
func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	if phone == "" {
		return nil, errors.New("phone is required")
	}

	const q = `SELECT ` + userColumns + ` FROM users WHERE phone = $1;`

	u, err := scanUser(TxorDB(ctx, r.db).QueryRow(ctx, q, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("user repo: GetByPhone: %w", err)
	}
	return u, nil
}

// IncrementSuspectCancellations bumps the requester's late-cancel counter and
// returns the new value.
func (r *UserRepo) IncrementSuspectCancellations(ctx context.Context, id uuid.UUID) (int, error) {
	const q = `
		UPDATE users
		SET suspect_cancellations = suspect_cancellations + 1
		WHERE id = $1
		RETURNING suspect_cancellations;`

	var count int
	err := TxorDB(ctx, r.db).QueryRow(ctx, q, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, types.ErrUserNotFound
		}
		return 0, fmt.Errorf("user repo: IncrementSuspectCancellations: %w", err)
	}
	return count, nil
}
