package repository

import (
	"database/sql"
	"errors"
)

// ErrNoRows is returned by updates and deletes that matched nothing.
var ErrNoRows = errors.New("repository: no rows affected")

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}
