// Package sqlxrepos implements the repositories over PostgreSQL.
package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
)

// postgres error codes
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type baseRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

func newBaseRepository(db *sqlx.DB, conf *core.Config) baseRepository {
	return baseRepository{db: db, timeout: conf.Database.QueryTimeout}
}

func (repo baseRepository) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return core.WithTimeout(ctx, repo.timeout)
}

// trapErr maps "no rows" to notFound and constraint violations to the core sentinels.
func trapErr(err error, notFound error, msg string) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows && notFound != nil {
		return notFound
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		switch pqErr.Code {
		case codeUniqueViolation:
			return errors.Wrap(core.ErrUniqueViolation, pqErr.Constraint)
		case codeForeignKeyViolation:
			return errors.Wrap(core.ErrForeignKeyViolation, pqErr.Constraint)
		}
	}
	return errors.Wrap(err, msg)
}

// checkAffected returns notFound if res affected no row.
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "getting rows affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}
