package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx,
	// so that repositories can run inside a service transaction.
	DBExecutor interface {
		sqlx.ExtContext
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}
)

// Tx is the transaction handed to RunInTx callbacks.
type Tx struct {
	DBExecutor

	onCommit []func()
}

// OnCommit registers fn to run once the transaction is committed.
// Callbacks are dropped on rollback.
func (tx *Tx) OnCommit(fn func()) {
	tx.onCommit = append(tx.onCommit, fn)
}

// RunInTx runs fn in a transaction that is committed if fn succeeds and rolled back otherwise.
// The OnCommit callbacks run, in registration order, after a successful commit.
func RunInTx(ctx context.Context, db DB, fn func(tx *Tx) error) error {
	sqlTx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	tx := &Tx{DBExecutor: sqlTx}
	if err = fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	for _, cb := range tx.onCommit {
		cb()
	}
	return nil
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings keeps the orderings whose field is in allowed, mapping them to their column.
func FilterOrderings(ordering []DBOrdering, allowed map[string]string) []DBOrdering {
	res := make([]DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := allowed[ord.Field]; ok {
			res = append(res, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return res
}
