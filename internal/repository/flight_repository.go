package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
)

// queryer is the subset of *sql.DB and *sql.Tx the repositories need, so
// the same read helpers run inside and outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// FlightRepo persists flights and their per-class inventory rows.  The
// flights row is the lock anchor: every inventory mutation first reads
// it with FOR UPDATE inside the caller's transaction.
type FlightRepo struct {
	db *sql.DB
}

// NewFlightRepo returns a FlightRepo bound to db.
func NewFlightRepo(db *sql.DB) *FlightRepo { return &FlightRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions.
func (r *FlightRepo) DB() *sql.DB { return r.db }

const flightColumns = `id, flight_number, airline, aircraft_type, departure_city, arrival_city,
	departure_time, arrival_time, created_at, updated_at`

func scanFlight(row interface{ Scan(...any) error }, f *model.Flight) error {
	return row.Scan(&f.ID, &f.FlightNumber, &f.Airline, &f.AircraftType, &f.DepartureCity, &f.ArrivalCity,
		&f.DepartureTime, &f.ArrivalTime, &f.CreatedAt, &f.UpdatedAt)
}

// GetByID loads a flight with its classes.  Returns ErrNotFound when no
// such flight exists.
func (r *FlightRepo) GetByID(ctx context.Context, id uint64) (*model.Flight, error) {
	return r.get(ctx, r.db, id, "")
}

// GetForUpdateTx loads a flight and locks its flights row and class rows
// until tx ends.  Concurrent callers for the same flight queue here.
func (r *FlightRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Flight, error) {
	return r.get(ctx, tx, id, " FOR UPDATE")
}

func (r *FlightRepo) get(ctx context.Context, q queryer, id uint64, suffix string) (*model.Flight, error) {
	var f model.Flight
	err := scanFlight(q.QueryRowContext(ctx, `SELECT `+flightColumns+` FROM flights WHERE id = ?`+suffix, id), &f)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, flightNotFound(id)
	}
	if err != nil {
		return nil, classify(err, "load flight")
	}
	classes, err := r.loadClasses(ctx, q, []uint64{id}, suffix)
	if err != nil {
		return nil, err
	}
	f.Classes = classes[id]
	if f.Classes == nil {
		f.Classes = map[model.SeatClass]model.ClassInventory{}
	}
	return &f, nil
}

// loadClasses reads the inventory rows of the given flights keyed by
// flight ID.
func (r *FlightRepo) loadClasses(ctx context.Context, q queryer, ids []uint64, suffix string) (map[uint64]map[model.SeatClass]model.ClassInventory, error) {
	out := make(map[uint64]map[model.SeatClass]model.ClassInventory, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders, args := inClause(ids)
	rows, err := q.QueryContext(ctx, `SELECT flight_id, seat_class, capacity, reserved, price_cents
		FROM flight_seat_classes WHERE flight_id IN (`+placeholders+`)`+suffix, args...)
	if err != nil {
		return nil, classify(err, "load seat classes")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			flightID uint64
			class    string
			ci       model.ClassInventory
		)
		if err := rows.Scan(&flightID, &class, &ci.Capacity, &ci.Reserved, &ci.PriceCents); err != nil {
			return nil, classify(err, "scan seat class")
		}
		if out[flightID] == nil {
			out[flightID] = map[model.SeatClass]model.ClassInventory{}
		}
		out[flightID][model.SeatClass(class)] = ci
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate seat classes")
	}
	return out, nil
}

// Create inserts a flight and its classes in one transaction and fills
// in the generated ID and timestamps.  A duplicate flight number yields
// a Conflict error.
func (r *FlightRepo) Create(ctx context.Context, f *model.Flight) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "begin create flight")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const ins = `INSERT INTO flights (flight_number, airline, aircraft_type, departure_city, arrival_city, departure_time, arrival_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, ins, f.FlightNumber, f.Airline, f.AircraftType, f.DepartureCity, f.ArrivalCity,
		f.DepartureTime.UTC(), f.ArrivalTime.UTC())
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return reservation.Wrap(reservation.CodeConflict, err, fmt.Sprintf("flight number %s already scheduled", f.FlightNumber))
		}
		return classify(err, "insert flight")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classify(err, "flight id")
	}
	f.ID = uint64(id)

	for _, c := range f.OfferedClasses() {
		ci := f.Classes[c]
		const insClass = `INSERT INTO flight_seat_classes (flight_id, seat_class, capacity, reserved, price_cents) VALUES (?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, insClass, f.ID, string(c), ci.Capacity, ci.Reserved, ci.PriceCents); err != nil {
			return classify(err, "insert seat class")
		}
	}
	if err := tx.QueryRowContext(ctx, `SELECT created_at, updated_at FROM flights WHERE id = ?`, f.ID).Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
		return classify(err, "reload flight")
	}
	if err := tx.Commit(); err != nil {
		return classify(err, "commit create flight")
	}
	committed = true
	return nil
}

// AdjustReservedTx adds delta to one class counter.  The WHERE clause
// keeps the counter within [0, capacity]; when it would leave that
// range no row matches and InsufficientSeats is returned.
func (r *FlightRepo) AdjustReservedTx(ctx context.Context, tx *sql.Tx, flightID uint64, class model.SeatClass, delta int) error {
	const q = `UPDATE flight_seat_classes
		SET reserved = CAST(reserved AS SIGNED) + ?
		WHERE flight_id = ? AND seat_class = ?
		  AND CAST(reserved AS SIGNED) + ? BETWEEN 0 AND capacity`
	res, err := tx.ExecContext(ctx, q, delta, flightID, string(class), delta)
	if err != nil {
		return classify(err, "adjust reserved seats")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err, "adjust reserved seats")
	}
	if n == 0 {
		return reservation.Errorf(reservation.CodeInsufficientSeats, "reserved %s seats cannot change by %d", class, delta)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE flights SET updated_at = ? WHERE id = ?`, time.Now().UTC(), flightID); err != nil {
		return classify(err, "touch flight")
	}
	return nil
}

// DeleteTx removes a flight; class rows and ledger rows cascade.
func (r *FlightRepo) DeleteTx(ctx context.Context, tx *sql.Tx, flightID uint64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM flights WHERE id = ?`, flightID)
	if err != nil {
		return classify(err, "delete flight")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return flightNotFound(flightID)
	}
	return nil
}

func inClause(ids []uint64) (string, []any) {
	args := make([]any, len(ids))
	ph := make([]byte, 0, len(ids)*2)
	for i, id := range ids {
		if i > 0 {
			ph = append(ph, ',')
		}
		ph = append(ph, '?')
		args[i] = id
	}
	return string(ph), args
}
