package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
)

const (
	lockFlightSQL  = `SELECT .+ FROM flights WHERE id = \? FOR UPDATE$`
	lockClassesSQL = `SELECT .+ FROM flight_seat_classes WHERE flight_id IN \(\?\) FOR UPDATE$`
	readFlightSQL  = `SELECT .+ FROM flights WHERE id = \?$`
	readClassesSQL = `SELECT .+ FROM flight_seat_classes WHERE flight_id IN \(\?\)$`
	adjustSQL      = `UPDATE flight_seat_classes SET reserved = .+ BETWEEN 0 AND capacity`
	touchSQL       = `UPDATE flights SET updated_at = \? WHERE id = \?`
	cancelSQL      = `UPDATE reservations SET status = \?, cancelled_at = \? WHERE id = \? AND status = \?`
	insertResSQL   = `INSERT INTO reservations`
)

var departs = time.Date(2026, time.December, 24, 7, 30, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMySQLStore(db), mock
}

func flightRow(id uint64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "flight_number", "airline", "aircraft_type", "departure_city", "arrival_city",
		"departure_time", "arrival_time", "created_at", "updated_at"}).
		AddRow(int64(id), "CA1234", "Air China", "A330", "Beijing", "Shanghai", departs, departs.Add(2*time.Hour), t0, t0)
}

func classRows(id uint64, capacity, reserved uint32) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"flight_id", "seat_class", "capacity", "reserved", "price_cents"}).
		AddRow(int64(id), "economy", int64(capacity), int64(reserved), int64(50000))
}

// expectLock queues the begin and the two locking reads WithFlightLock issues.
func expectLock(mock sqlmock.Sqlmock, id uint64, capacity, reserved uint32) {
	mock.ExpectBegin()
	mock.ExpectQuery(lockFlightSQL).WithArgs(id).WillReturnRows(flightRow(id))
	mock.ExpectQuery(lockClassesSQL).WithArgs(id).WillReturnRows(classRows(id, capacity, reserved))
}

func TestWithFlightLockRollsBackWhenCallbackFails(t *testing.T) {
	s, mock := newMockStore(t)
	expectLock(mock, 7, 10, 0)
	mock.ExpectExec(adjustSQL).WithArgs(2, 7, "economy", 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(touchSQL).WithArgs(sqlmock.AnyArg(), 7).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := s.WithFlightLock(context.Background(), 7, func(tx reservation.InventoryTx) error {
		assert.Equal(t, "CA1234", tx.Flight().FlightNumber)
		require.NoError(t, tx.AdjustReserved(context.Background(), model.SeatClassEconomy, 2))
		assert.Equal(t, uint32(2), tx.Flight().Classes[model.SeatClassEconomy].Reserved)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet(), "no commit may follow a failed callback")
}

func TestWithFlightLockCommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	expectLock(mock, 7, 10, 3)
	mock.ExpectExec(adjustSQL).WithArgs(-3, 7, "economy", -3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(touchSQL).WithArgs(sqlmock.AnyArg(), 7).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithFlightLock(context.Background(), 7, func(tx reservation.InventoryTx) error {
		return tx.AdjustReserved(context.Background(), model.SeatClassEconomy, -3)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustReservedOutOfBoundsIsInsufficientSeats(t *testing.T) {
	s, mock := newMockStore(t)
	expectLock(mock, 7, 2, 2)
	mock.ExpectExec(adjustSQL).WithArgs(1, 7, "economy", 1).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithFlightLock(context.Background(), 7, func(tx reservation.InventoryTx) error {
		return tx.AdjustReserved(context.Background(), model.SeatClassEconomy, 1)
	})
	assert.ErrorIs(t, err, reservation.ErrInsufficientSeats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCancelledTwiceIsAlreadyCancelled(t *testing.T) {
	s, mock := newMockStore(t)
	expectLock(mock, 7, 10, 0)
	mock.ExpectExec(cancelSQL).
		WithArgs("cancelled", sqlmock.AnyArg(), 11, "confirmed").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithFlightLock(context.Background(), 7, func(tx reservation.InventoryTx) error {
		return tx.MarkCancelled(context.Background(), 11, t0)
	})
	assert.ErrorIs(t, err, reservation.ErrAlreadyCancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithFlightLockMapsLockWaitTimeoutToBusy(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockFlightSQL).WithArgs(7).
		WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
	mock.ExpectRollback()

	err := s.WithFlightLock(context.Background(), 7, func(reservation.InventoryTx) error {
		t.Fatal("callback must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, reservation.ErrBusy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithFlightLockUnknownFlight(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockFlightSQL).WithArgs(99).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := s.WithFlightLock(context.Background(), 99, func(reservation.InventoryTx) error { return nil })
	assert.ErrorIs(t, err, reservation.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineReserveOnMySQLStore(t *testing.T) {
	s, mock := newMockStore(t)
	engine := reservation.NewEngine(s, reservation.DefaultPolicy(),
		reservation.WithReferenceGenerator(func() string { return "ref-41" }))
	now := departs.Add(-72 * time.Hour)

	mock.ExpectQuery(readFlightSQL).WithArgs(7).WillReturnRows(flightRow(7))
	mock.ExpectQuery(readClassesSQL).WithArgs(7).WillReturnRows(classRows(7, 10, 8))
	expectLock(mock, 7, 10, 8)
	mock.ExpectExec(insertResSQL).WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectExec(adjustSQL).WithArgs(2, 7, "economy", 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(touchSQL).WithArgs(sqlmock.AnyArg(), 7).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r, err := engine.Reserve(context.Background(), reservation.ReserveRequest{
		FlightID: 7, SeatClass: model.SeatClassEconomy, SeatCount: 2, HolderID: 5,
		Passenger: model.Passenger{Name: "Li Wei", LegalID: "X1", Phone: "555"},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(41), r.ID)
	assert.Equal(t, "ref-41", r.Reference)
	assert.Equal(t, uint64(100000), r.TotalAmountCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineReserveFullFlightOnMySQLStore(t *testing.T) {
	s, mock := newMockStore(t)
	engine := reservation.NewEngine(s, reservation.DefaultPolicy())
	now := departs.Add(-72 * time.Hour)

	mock.ExpectQuery(readFlightSQL).WithArgs(7).WillReturnRows(flightRow(7))
	mock.ExpectQuery(readClassesSQL).WithArgs(7).WillReturnRows(classRows(7, 10, 9))
	expectLock(mock, 7, 10, 9)
	mock.ExpectRollback()

	_, err := engine.Reserve(context.Background(), reservation.ReserveRequest{
		FlightID: 7, SeatClass: model.SeatClassEconomy, SeatCount: 2, HolderID: 5,
	}, now)
	assert.ErrorIs(t, err, reservation.ErrInsufficientSeats)
	assert.NoError(t, mock.ExpectationsWereMet(), "nothing is written once the locked counter is full")
}

func TestSearchMatchesCityWildcardsLiterally(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM flights WHERE LOWER\(departure_city\) LIKE \? ESCAPE '!' AND LOWER\(arrival_city\) LIKE \? ESCAPE '!'`).
		WithArgs("%50!%!_off%", "%a!!b%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT .+ FROM flights WHERE .+ ORDER BY departure_time ASC, id ASC LIMIT \? OFFSET \?`).
		WithArgs("%50!%!_off%", "%a!!b%", 20, 40).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	fs, total, err := s.SearchFlights(context.Background(), model.FlightQuery{
		DepartureCity: "50%_Off", ArrivalCity: "A!b", Page: 3, PageSize: 20,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, fs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
