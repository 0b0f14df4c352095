// Package sqlxrepos implements the core repositories with sqlx & squirrel, on PostgreSQL or SQLite.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/shule/core"
)

const pqUniqueViolation = "23505"

type baseRepository struct {
	exec core.DBExecutor
}

func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// builder returns a statement builder using the placeholders of exec's driver.
func (repo baseRepository) builder(exec core.DBExecutor) sq.StatementBuilderType {
	if d, ok := exec.(interface{ DriverName() string }); ok && d.DriverName() == "postgres" {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

func (repo baseRepository) get(ctx context.Context, exec core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, exec, dest, query, args...)
}

func (repo baseRepository) selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, exec, dest, query, args...)
}

func (repo baseRepository) execute(ctx context.Context, exec core.DBExecutor, b sq.Sqlizer) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	cnt, err := res.RowsAffected()
	return int(cnt), err
}

func (repo baseRepository) count(ctx context.Context, exec core.DBExecutor, b sq.SelectBuilder) (int, error) {
	var cnt int
	if err := repo.get(ctx, exec, &cnt, b); err != nil {
		return 0, err
	}
	return cnt, nil
}

// trapNoRowsErr maps sql.ErrNoRows to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// isUniqueViolation reports whether err is a unique constraint violation on either engine.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ilike is a portable case-insensitive LIKE on any of cols.
func ilike(term string, cols ...string) sq.Sqlizer {
	val := "%" + strings.ToLower(term) + "%"
	or := make(sq.Or, 0, len(cols))
	for _, col := range cols {
		or = append(or, sq.Like{"LOWER(" + col + ")": val})
	}
	return or
}

func orderBy(b sq.SelectBuilder, ordering []core.DBOrdering, fallback ...string) sq.SelectBuilder {
	if len(ordering) == 0 {
		return b.OrderBy(fallback...)
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return b.OrderBy(clauses...)
}
