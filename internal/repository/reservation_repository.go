package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
)

// ReservationRepo provides access to the reservation ledger.  Rows are
// only ever inserted or moved to cancelled; deletion happens solely as a
// cascade of removing a flight.  All timestamp fields are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, reference, flight_id, holder_id, seat_class, seat_count,
	passenger_name, passenger_legal_id, passenger_phone, status, total_amount_cents, created_at, cancelled_at`

func scanReservation(row interface{ Scan(...any) error }, r *model.Reservation) error {
	var (
		class, status string
		cancelledAt   sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Reference, &r.FlightID, &r.HolderID, &class, &r.SeatCount,
		&r.Passenger.Name, &r.Passenger.LegalID, &r.Passenger.Phone, &status, &r.TotalAmountCents,
		&r.CreatedAt, &cancelledAt); err != nil {
		return err
	}
	r.SeatClass = model.SeatClass(class)
	r.Status = model.ReservationStatus(status)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		r.CancelledAt = &t
	}
	return nil
}

// CreateTx inserts a new reservation within the scope of an existing
// transaction and populates the generated ID.  The caller must commit or
// rollback the transaction.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations (reference, flight_id, holder_id, seat_class, seat_count,
		passenger_name, passenger_legal_id, passenger_phone, status, total_amount_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, res.Reference, res.FlightID, res.HolderID, string(res.SeatClass), res.SeatCount,
		res.Passenger.Name, res.Passenger.LegalID, res.Passenger.Phone, string(res.Status), res.TotalAmountCents,
		res.CreatedAt.UTC())
	if err != nil {
		return classify(err, "insert reservation")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return classify(err, "reservation id")
	}
	res.ID = uint64(id)
	return nil
}

// GetByID returns a reservation regardless of owner.  Ownership is the
// engine's concern.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return r.get(ctx, r.db, id, "")
}

// GetForUpdateTx reads and locks one reservation row of the given flight.
// A locking read always sees the latest committed version, so a status
// change committed by a concurrent Cancel is never missed.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, flightID, id uint64) (*model.Reservation, error) {
	res, err := r.get(ctx, tx, id, " FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if res.FlightID != flightID {
		return nil, reservationNotFound(id)
	}
	return res, nil
}

func (r *ReservationRepo) get(ctx context.Context, q queryer, id uint64, suffix string) (*model.Reservation, error) {
	var res model.Reservation
	err := scanReservation(q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`+suffix, id), &res)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reservationNotFound(id)
	}
	if err != nil {
		return nil, classify(err, "load reservation")
	}
	return &res, nil
}

// MarkCancelledTx moves a confirmed reservation to cancelled.  The status
// guard in the WHERE clause makes a second cancellation a no-op that is
// reported as AlreadyCancelled.
func (r *ReservationRepo) MarkCancelledTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
	const q = `UPDATE reservations SET status = ?, cancelled_at = ? WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, string(model.StatusCancelled), at.UTC(), id, string(model.StatusConfirmed))
	if err != nil {
		return classify(err, "cancel reservation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err, "cancel reservation")
	}
	if n == 0 {
		return reservation.Errorf(reservation.CodeAlreadyCancelled, "reservation %d is not confirmed", id)
	}
	return nil
}

// ListByHolder returns the holder's reservations, newest first.
func (r *ReservationRepo) ListByHolder(ctx context.Context, holderID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE holder_id = ? ORDER BY created_at DESC, id DESC`, holderID)
	if err != nil {
		return nil, classify(err, "list reservations")
	}
	return collectReservations(rows)
}

// ListConfirmedByFlight returns the confirmed reservations of a flight
// in creation order using q, which may be a read-only transaction.
func (r *ReservationRepo) ListConfirmedByFlight(ctx context.Context, q queryer, flightID uint64) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE flight_id = ? AND status = ? ORDER BY created_at ASC, id ASC`, flightID, string(model.StatusConfirmed))
	if err != nil {
		return nil, classify(err, "list flight reservations")
	}
	return collectReservations(rows)
}

// SumConfirmedTx adds up the seats held by confirmed reservations of one
// class.  Used to audit the maintained counter.
func (r *ReservationRepo) SumConfirmedTx(ctx context.Context, tx *sql.Tx, flightID uint64, class model.SeatClass) (uint32, error) {
	var sum uint32
	const q = `SELECT COALESCE(SUM(seat_count), 0) FROM reservations WHERE flight_id = ? AND seat_class = ? AND status = ?`
	if err := tx.QueryRowContext(ctx, q, flightID, string(class), string(model.StatusConfirmed)).Scan(&sum); err != nil {
		return 0, classify(err, "sum reservations")
	}
	return sum, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		var res model.Reservation
		if err := scanReservation(rows, &res); err != nil {
			return nil, classify(err, "scan reservation")
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate reservations")
	}
	return out, nil
}
