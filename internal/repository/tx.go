package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

type txKey struct{}

// executor is the subset of *sql.DB and *sql.Tx used by the stores.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction bound to ctx by Transactor.WithinTx, or
// the pool when the call runs outside a transaction.
func conn(ctx context.Context, db *sql.DB) executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// MySQL error numbers for which InnoDB has already rolled back the
// statement or transaction.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// transient reports whether err means the transaction could not complete
// for reasons unrelated to its content: a lost connection, a deadlock or a
// lock wait timeout.
func transient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errDeadlock || me.Number == errLockWaitTimeout
	}
	return false
}

// Transactor runs a unit of work inside one MySQL transaction.  The
// transaction travels in the context so that EventRepo and BookingRepo
// writes issued by fn share it.
type Transactor struct {
	db      *sql.DB
	timeout time.Duration
}

// NewTransactor returns a Transactor bound to db.  A positive timeout
// bounds the whole transaction including commit.
func NewTransactor(db *sql.DB, timeout time.Duration) *Transactor {
	return &Transactor{db: db, timeout: timeout}
}

// WithinTx begins a REPEATABLE READ transaction (InnoDB's consistent
// snapshot), runs fn and commits.  Any error from fn rolls back.  Begin
// and commit failures, errors caused by the deadline, lost connections,
// deadlocks and lock wait timeouts are wrapped in ErrTxFailed; other
// errors from fn are returned unchanged.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrTxFailed, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if errors.Is(err, ErrTxFailed) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ErrTxFailed, ctxErr)
		}
		if transient(err) {
			return fmt.Errorf("%w: %w", ErrTxFailed, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTxFailed, err)
	}
	committed = true
	return nil
}
