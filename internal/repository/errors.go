// Package repository holds the storage side of the reservation engine:
// the MySQL store used in production and an in-memory store with the
// same locking contract.  Both report failures as reservation.Error
// values so the engine and handlers can tell a missing flight from a
// lock timeout without inspecting driver errors.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
)

// MySQL server error numbers the store maps onto the engine taxonomy.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlCheckViolated   = 3819
)

func flightNotFound(id uint64) error {
	return reservation.Errorf(reservation.CodeNotFound, "flight %d not found", id)
}

func reservationNotFound(id uint64) error {
	return reservation.Errorf(reservation.CodeNotFound, "reservation %d not found", id)
}

// classify maps driver and context errors onto reservation codes.  Lock
// waits that hit the server timeout, deadlock victims and expired
// contexts all become Busy, which callers may retry.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	var re *reservation.Error
	if errors.As(err, &re) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return reservation.Wrap(reservation.CodeBusy, err, what)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlLockWaitTimeout, mysqlDeadlock:
			return reservation.Wrap(reservation.CodeBusy, err, what)
		case mysqlDuplicateEntry:
			return reservation.Wrap(reservation.CodeConflict, err, what)
		case mysqlCheckViolated:
			return reservation.Wrap(reservation.CodeInsufficientSeats, err, what)
		}
	}
	if errors.Is(err, sql.ErrTxDone) {
		return reservation.Wrap(reservation.CodeBusy, err, what)
	}
	return reservation.Wrap(reservation.CodeInternal, err, what)
}
