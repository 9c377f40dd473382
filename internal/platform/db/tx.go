package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	DBTxKey    contextKey = "db_tx"
	localTxKey contextKey = "local_tx"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxFromContext returns the transaction opened by PoolTxRunner, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// Conn returns the active transaction from ctx or falls back to the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// TxRunner executes fn as one atomic unit. Nested calls join the outer unit.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type PoolTxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *PoolTxRunner {
	return &PoolTxRunner{pool: pool}
}

func (r *PoolTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Once writes are issued the unit runs to completion, so rollback and
	// commit ignore caller cancellation.
	detached := context.WithoutCancel(ctx)
	defer tx.Rollback(detached)

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}
	if err := tx.Commit(detached); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type localTx struct {
	undo []func()
}

// LocalTxRunner serialises units of work for the in-memory stores. Stores
// register compensating steps with OnRollback; they run in reverse order when
// fn fails.
type LocalTxRunner struct {
	mu sync.Mutex
}

func NewLocalTxRunner() *LocalTxRunner {
	return &LocalTxRunner{}
}

func (r *LocalTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(localTxKey).(*localTx); ok {
		return fn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &localTx{}
	if err := fn(context.WithValue(ctx, localTxKey, tx)); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

// OnRollback registers undo to run if the surrounding local unit fails.
// Outside a unit it is a no-op.
func OnRollback(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(localTxKey).(*localTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}
