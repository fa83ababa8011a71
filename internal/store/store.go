// Package store is the Postgres system of record. Multi-row invariants
// (rating aggregates, favorite counts, chat unread counters) are kept in
// single transactions that lock the owning row first.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"

	"tucomercio/internal/common/database"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/observability"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

type Store struct {
	db  *sqlx.DB
	obs *observability.Observability
}

func New(db *sqlx.DB, obs *observability.Observability) *Store {
	return &Store{db: db, obs: obs}
}

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) withTx(ctx context.Context, name string, fn func(tx *sqlx.Tx) error) error {
	ctx, span := s.obs.StartSpan(ctx, "store."+name, attribute.String("db.system", "postgresql"))
	defer span.End()

	err := database.WithTx(ctx, s.db, fn)
	if err != nil {
		span.RecordError(err)
		var stdErr *errors.StandardError
		if !stderrors.As(err, &stdErr) {
			return errors.NewTransactionFailedError(name, err)
		}
	}
	return err
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

// mapErr converts driver errors into StandardErrors.
func mapErr(op, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	var stdErr *errors.StandardError
	if stderrors.As(err, &stdErr) {
		return err
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError(resource, id)
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return errors.NewConflictError(pqErr.Constraint)
		case pqForeignKeyViolation:
			return errors.NewValidationFailedError("referenced record does not exist: " + pqErr.Constraint)
		case pqCheckViolation:
			return errors.NewValidationFailedError("value out of range: " + pqErr.Constraint)
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewQueryTimeoutError(op)
	}
	return errors.NewQueryExecutionFailedError(op, err)
}

func count(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}
