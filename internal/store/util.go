package store

import (
	"database/sql"
	stderrors "errors"
	"strconv"

	"tucomercio/internal/common/errors"

	"github.com/lib/pq"
)

func requireRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("rows_affected", err)
	}
	if n == 0 {
		return errors.NewNotFoundError(resource, id)
	}
	return nil
}

// args accumulates positional parameters for dynamically built queries.
type args []interface{}

// add appends v and returns its placeholder.
func (a *args) add(v interface{}) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func isNoRows(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
