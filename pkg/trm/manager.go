// Package trm runs functions inside a pgx transaction carried through
// context, so repositories stay unaware of transaction boundaries.
package trm

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type Manager struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Manager {
	return &Manager{db: db}
}

type ctxKeyTx struct{}
type ctxKeyTxOptions struct{}

// TxKey is the context key under which the active pgx.Tx travels.
// Repositories read it through their Querier helper.
var TxKey = ctxKeyTx{}
var txOptionsKey = ctxKeyTxOptions{}

// Do runs fn inside a transaction. A transaction already present in ctx
// is reused, so nested Do calls join the outer transaction and only the
// outermost call commits. On error or panic the transaction rolls back.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if tx, ok := ctx.Value(TxKey).(pgx.Tx); ok && tx != nil {
		// Joined an outer transaction; its owner commits or rolls back.
		return fn(ctx)
	}

	tx, err := m.begin(ctx)
	if err != nil {
		return err
	}
	ctx = context.WithValue(ctx, TxKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}

		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
			}
			return
		}

		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("commit failed: %w", commitErr)
		}
	}()

	err = fn(ctx)
	return err
}

// DoReadOnly runs fn inside a read-only transaction, giving multi-query
// reads a consistent snapshot.
func (m *Manager) DoReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx = WithOptionsCtx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	return m.Do(ctx, fn)
}

// WithOptionsCtx sets the pgx.TxOptions the next Do call begins with.
func WithOptionsCtx(ctx context.Context, opt pgx.TxOptions) context.Context {
	return context.WithValue(ctx, txOptionsKey, opt)
}

func (m *Manager) begin(ctx context.Context) (pgx.Tx, error) {
	if opt, ok := ctx.Value(txOptionsKey).(pgx.TxOptions); ok {
		tx, err := m.db.BeginTx(ctx, opt)
		if err != nil {
			return nil, fmt.Errorf("begin transaction with options: %w", err)
		}
		return tx, nil
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}
