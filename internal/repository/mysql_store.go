package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
)

// MySQLStore implements reservation.Store on InnoDB.  The per-flight lock
// is the row lock taken by SELECT ... FOR UPDATE on the flights row;
// InnoDB releases it when the transaction commits or rolls back.
type MySQLStore struct {
	db           *sql.DB
	flights      *FlightRepo
	reservations *ReservationRepo
}

// NewMySQLStore wires the flight and reservation repositories over db.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		db:           db,
		flights:      NewFlightRepo(db),
		reservations: NewReservationRepo(db),
	}
}

var _ reservation.Store = (*MySQLStore)(nil)

func (s *MySQLStore) Flight(ctx context.Context, flightID uint64) (*model.Flight, error) {
	return s.flights.GetByID(ctx, flightID)
}

func (s *MySQLStore) CreateFlight(ctx context.Context, f *model.Flight) error {
	return s.flights.Create(ctx, f)
}

func (s *MySQLStore) SearchFlights(ctx context.Context, q model.FlightQuery) ([]model.Flight, int64, error) {
	return s.flights.Search(ctx, q)
}

func (s *MySQLStore) Reservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.reservations.GetByID(ctx, id)
}

func (s *MySQLStore) ReservationsByHolder(ctx context.Context, holderID uint64) ([]model.Reservation, error) {
	return s.reservations.ListByHolder(ctx, holderID)
}

// Snapshot reads the flight and its confirmed reservations inside one
// read-only REPEATABLE READ transaction so both come from the same
// committed state.
func (s *MySQLStore) Snapshot(ctx context.Context, flightID uint64) (*reservation.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, classify(err, "begin snapshot")
	}
	defer func() { _ = tx.Rollback() }()

	f, err := s.flights.get(ctx, tx, flightID, "")
	if err != nil {
		return nil, err
	}
	rs, err := s.reservations.ListConfirmedByFlight(ctx, tx, flightID)
	if err != nil {
		return nil, err
	}
	return &reservation.Snapshot{Flight: *f, Reservations: rs}, nil
}

// WithFlightLock opens a transaction, locks the flight row and hands fn a
// tx-scoped view.  Any error from fn, or from the commit, rolls back every
// write fn made.
func (s *MySQLStore) WithFlightLock(ctx context.Context, flightID uint64, fn func(tx reservation.InventoryTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "begin inventory transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	f, err := s.flights.GetForUpdateTx(ctx, tx, flightID)
	if err != nil {
		return classify(err, "lock flight")
	}
	itx := &mysqlInventoryTx{store: s, tx: tx, flight: f}
	if err := fn(itx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err, "commit inventory transaction")
	}
	committed = true
	return nil
}

type mysqlInventoryTx struct {
	store  *MySQLStore
	tx     *sql.Tx
	flight *model.Flight
}

func (t *mysqlInventoryTx) Flight() *model.Flight { return t.flight }

func (t *mysqlInventoryTx) Reservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return t.store.reservations.GetForUpdateTx(ctx, t.tx, t.flight.ID, id)
}

func (t *mysqlInventoryTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	return t.store.reservations.CreateTx(ctx, t.tx, r)
}

func (t *mysqlInventoryTx) MarkCancelled(ctx context.Context, id uint64, at time.Time) error {
	return t.store.reservations.MarkCancelledTx(ctx, t.tx, id, at)
}

// AdjustReserved updates the row and mirrors the change on the locked
// flight so later reads in the same callback see it.
func (t *mysqlInventoryTx) AdjustReserved(ctx context.Context, class model.SeatClass, delta int) error {
	if err := t.store.flights.AdjustReservedTx(ctx, t.tx, t.flight.ID, class, delta); err != nil {
		return err
	}
	ci := t.flight.Classes[class]
	ci.Reserved = uint32(int64(ci.Reserved) + int64(delta))
	t.flight.Classes[class] = ci
	return nil
}

func (t *mysqlInventoryTx) ConfirmedReserved(ctx context.Context, class model.SeatClass) (uint32, error) {
	return t.store.reservations.SumConfirmedTx(ctx, t.tx, t.flight.ID, class)
}

func (t *mysqlInventoryTx) DeleteFlight(ctx context.Context) error {
	return t.store.flights.DeleteTx(ctx, t.tx, t.flight.ID)
}
