// Package repository holds the MySQL stores of the reservation service.
// Storage failures are returned as *model.PersistenceError; ErrConflict
// inside one signals that MySQL aborted the statement because of lock
// contention and the request may be retried.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/tourism-reservation/internal/model"
)

// ErrConflict is wrapped into persistence errors caused by a deadlock or
// a lock wait timeout.  Handlers translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// MySQL server error numbers for lock contention.
const (
	errLockWaitTimeout uint16 = 1205
	errDeadlock        uint16 = 1213
)

func persistErr(op string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errLockWaitTimeout || myErr.Number == errDeadlock) {
		err = fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return &model.PersistenceError{Op: op, Err: err}
}
