package reservation

import (
	"context"
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// Store is the storage collaborator of the engine.  Implementations must
// return *Error values (ErrNotFound, ErrBusy, ErrConflict, ...) for the
// failures the engine distinguishes; anything else is treated as internal.
type Store interface {
	// Flight reads one inventory record without locking it.
	Flight(ctx context.Context, flightID uint64) (*model.Flight, error)
	// CreateFlight persists a new flight and sets its ID.  Reserved
	// counters are stored as given (the engine passes zero).
	CreateFlight(ctx context.Context, f *model.Flight) error
	// SearchFlights returns one page of matching flights and the total
	// number of matches.
	SearchFlights(ctx context.Context, q model.FlightQuery) ([]model.Flight, int64, error)

	// Reservation reads one ledger row without locking it.
	Reservation(ctx context.Context, id uint64) (*model.Reservation, error)
	// ReservationsByHolder lists a holder's reservations, newest first.
	ReservationsByHolder(ctx context.Context, holderID uint64) ([]model.Reservation, error)

	// Snapshot reads a flight and its confirmed reservations (ordered by
	// creation) as one consistent view.  It does not take the flight lock.
	Snapshot(ctx context.Context, flightID uint64) (*Snapshot, error)

	// WithFlightLock acquires the exclusive lock on the flight's inventory
	// record, runs fn and commits everything fn wrote as one unit.  If fn
	// returns an error nothing it wrote becomes visible.  A lock wait that
	// outlives ctx yields ErrBusy; an unknown flight yields ErrNotFound.
	WithFlightLock(ctx context.Context, flightID uint64, fn func(tx InventoryTx) error) error
}

// InventoryTx is the view of one locked flight handed to WithFlightLock
// callbacks.  All reads reflect writes made earlier through the same tx.
type InventoryTx interface {
	// Flight returns the locked inventory record.
	Flight() *model.Flight
	// Reservation reads a ledger row of the locked flight.
	Reservation(ctx context.Context, id uint64) (*model.Reservation, error)
	// InsertReservation appends r to the ledger and sets its ID.
	InsertReservation(ctx context.Context, r *model.Reservation) error
	// MarkCancelled moves a confirmed reservation to cancelled.
	MarkCancelled(ctx context.Context, id uint64, at time.Time) error
	// AdjustReserved adds delta to the class counter.  Implementations
	// refuse any change that leaves the counter outside [0, capacity].
	AdjustReserved(ctx context.Context, class model.SeatClass, delta int) error
	// ConfirmedReserved sums the seat counts of the class's confirmed
	// ledger rows.
	ConfirmedReserved(ctx context.Context, class model.SeatClass) (uint32, error)
	// DeleteFlight removes the flight and its ledger rows.
	DeleteFlight(ctx context.Context) error
}

// Snapshot is a consistent read of one flight for the query layer.
type Snapshot struct {
	Flight       model.Flight
	Reservations []model.Reservation
}
