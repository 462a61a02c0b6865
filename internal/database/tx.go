package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TxFn is the unit of work executed inside RunInTx.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// RunInTx begins a transaction, runs fn and commits. Any error from fn, or a
// panic, rolls the transaction back; panics are re-raised after rollback.
func RunInTx(ctx context.Context, db *sql.DB, fn TxFn) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
