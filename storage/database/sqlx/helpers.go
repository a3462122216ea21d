// Package sqlxrepos implements the core repositories on PostgreSQL via sqlx.
//
// All queries are written with "?" bindvars and rebound per driver. Scoping
// predicates compile into a single WHERE fragment so the tenant check is
// always an explicit column comparison, never an implicit join.
package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
)

const pqUniqueViolation = "23505"

// isUniqueViolation reports whether err is the driver's unique constraint
// error, the backstop for races that slip past an application-level
// uniqueness pre-check.
func isUniqueViolation(err error) bool {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

// atomic runs fn in a transaction, committing on success and rolling back
// on error or panic. The *sqlx.Tx satisfies core.DBExecutor, so it can flow
// back into repository methods taking an exec override.
func atomic(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// ext picks the executor a query runs on: an explicit transaction when the
// caller passed one, the pool otherwise.
func ext(db *sqlx.DB, exec []core.DBExecutor) sqlx.ExtContext {
	if len(exec) > 0 && exec[0] != nil {
		if e, ok := exec[0].(sqlx.ExtContext); ok {
			return e
		}
	}
	return db
}

// predicateWhere compiles pred into one WHERE fragment over the given
// columns. classCol and studentCol may be empty when the table has no such
// column; a predicate relying on a missing column contributes no rows.
// The fragment uses "?" bindvars; callers must Rebind the final query.
func predicateWhere(pred access.Predicate, tenantCol, classCol, studentCol string) (string, []interface{}) {
	if pred.All {
		return "TRUE", nil
	}
	if pred.TenantID == "" {
		return "FALSE", nil
	}

	clause := tenantCol + " = ?"
	args := []interface{}{pred.TenantID}
	if pred.TenantOnly() {
		return clause, args
	}

	var ors []string
	if classCol != "" && len(pred.ClassIDs) > 0 {
		in, inArgs := inClause(classCol, pred.ClassIDs)
		ors = append(ors, in)
		args = append(args, inArgs...)
	}
	if studentCol != "" && len(pred.StudentIDs) > 0 {
		in, inArgs := inClause(studentCol, pred.StudentIDs)
		ors = append(ors, in)
		args = append(args, inArgs...)
	}
	if pred.IncludeTenantWide && classCol != "" {
		ors = append(ors, classCol+" IS NULL")
	}
	if len(ors) == 0 {
		return "FALSE", nil
	}
	return clause + " AND (" + strings.Join(ors, " OR ") + ")", args
}

func inClause(col string, ids []string) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return col + " IN (" + strings.Join(placeholders, ", ") + ")", args
}

func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	parts := make([]string, len(ordering))
	for i, ord := range ordering {
		parts[i] = ord.String()
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
