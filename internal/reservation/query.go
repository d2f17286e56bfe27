package reservation

import (
	"context"
	"fmt"
	"sort"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// SeatLabel names one seat for display, e.g. "E12".  Labels are derived
// from the ledger on every read and are not stored; seats within a class
// are interchangeable.
type SeatLabel struct {
	Class  model.SeatClass
	Number uint32
}

func (l SeatLabel) String() string { return fmt.Sprintf("%s%d", l.Class.Prefix(), l.Number) }

// MarshalText renders the label in its string form so JSON carries "E12".
func (l SeatLabel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// AvailableSeats returns capacity minus reserved for one class of a
// flight.  It reads committed state and never waits for the flight lock.
func (e *Engine) AvailableSeats(ctx context.Context, flightID uint64, class model.SeatClass) (uint32, error) {
	if !class.Valid() {
		return 0, Errorf(CodeInvalidRequest, "unknown seat class %q", class)
	}
	f, err := e.store.Flight(ctx, flightID)
	if err != nil {
		return 0, normalize(err)
	}
	ci, ok := f.Class(class)
	if !ok {
		return 0, Errorf(CodeInvalidRequest, "flight %s has no %s class", f.FlightNumber, class)
	}
	return ci.Available(), nil
}

// Flight returns one flight of the catalogue.
func (e *Engine) Flight(ctx context.Context, flightID uint64) (*model.Flight, error) {
	f, err := e.store.Flight(ctx, flightID)
	if err != nil {
		return nil, normalize(err)
	}
	return f, nil
}

// Paging bounds for SearchFlights.  MaxPage keeps the row offset far
// from integer overflow.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = 10000
)

// SearchFlights returns one page of flights ordered by departure time
// together with the total number of matches.
func (e *Engine) SearchFlights(ctx context.Context, q model.FlightQuery) ([]model.Flight, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		return nil, 0, Errorf(CodeInvalidRequest, "page must be at most %d", MaxPage)
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	fs, total, err := e.store.SearchFlights(ctx, q)
	if err != nil {
		return nil, 0, normalize(err)
	}
	return fs, total, nil
}

// EmptySeatNumbers lists the labels not taken by confirmed reservations,
// class blocks in cabin order.
func (e *Engine) EmptySeatNumbers(ctx context.Context, flightID uint64) ([]SeatLabel, error) {
	snap, err := e.store.Snapshot(ctx, flightID)
	if err != nil {
		return nil, normalize(err)
	}
	_, empty := AssignSeats(snap)
	return empty, nil
}

// ReservationSeats returns the labels a holder's confirmed reservation
// currently occupies.  Cancelled reservations occupy none.
func (e *Engine) ReservationSeats(ctx context.Context, reservationID, holderID uint64) ([]SeatLabel, error) {
	r, err := e.Reservation(ctx, reservationID, holderID)
	if err != nil {
		return nil, err
	}
	if !r.Confirmed() {
		return []SeatLabel{}, nil
	}
	snap, err := e.store.Snapshot(ctx, r.FlightID)
	if err != nil {
		return nil, normalize(err)
	}
	assigned, _ := AssignSeats(snap)
	if labels, ok := assigned[r.ID]; ok {
		return labels, nil
	}
	return []SeatLabel{}, nil
}

// AssignSeats numbers each class block 1..capacity and hands the lowest
// free labels to confirmed reservations in creation order.  It returns
// the labels per reservation ID and the labels left over.
func AssignSeats(snap *Snapshot) (map[uint64][]SeatLabel, []SeatLabel) {
	rs := make([]model.Reservation, 0, len(snap.Reservations))
	for _, r := range snap.Reservations {
		if r.Confirmed() {
			rs = append(rs, r)
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})

	next := make(map[model.SeatClass]uint32, len(snap.Flight.Classes))
	for c := range snap.Flight.Classes {
		next[c] = 1
	}
	assigned := make(map[uint64][]SeatLabel, len(rs))
	for _, r := range rs {
		ci, ok := snap.Flight.Classes[r.SeatClass]
		if !ok {
			continue
		}
		labels := make([]SeatLabel, 0, r.SeatCount)
		for i := uint32(0); i < r.SeatCount && next[r.SeatClass] <= ci.Capacity; i++ {
			labels = append(labels, SeatLabel{Class: r.SeatClass, Number: next[r.SeatClass]})
			next[r.SeatClass]++
		}
		assigned[r.ID] = labels
	}

	var empty []SeatLabel
	for _, c := range snap.Flight.OfferedClasses() {
		for n := next[c]; n <= snap.Flight.Classes[c].Capacity; n++ {
			empty = append(empty, SeatLabel{Class: c, Number: n})
		}
	}
	if empty == nil {
		empty = []SeatLabel{}
	}
	return assigned, empty
}

// Discrepancy reports a class whose maintained counter disagrees with
// the ledger.
type Discrepancy struct {
	SeatClass model.SeatClass `json:"seat_class"`
	Counter   uint32          `json:"counter"`
	Ledger    uint32          `json:"ledger"`
}

// Reconcile compares each class counter of a flight with the sum of its
// confirmed reservations.  It takes the flight lock so both sides are
// read at the same point; an empty result means the inventory is sound.
func (e *Engine) Reconcile(ctx context.Context, flightID uint64) (out []Discrepancy, err error) {
	ctx, span := e.tracer.Start(ctx, "reservation.Reconcile")
	defer func() { err = e.finish(span, OpAudit, err) }()

	out = []Discrepancy{}
	err = e.withLock(ctx, OpAudit, flightID, func(ctx context.Context, tx InventoryTx) error {
		f := tx.Flight()
		for _, c := range f.OfferedClasses() {
			sum, err := tx.ConfirmedReserved(ctx, c)
			if err != nil {
				return err
			}
			if counter := f.Classes[c].Reserved; counter != sum {
				out = append(out, Discrepancy{SeatClass: c, Counter: counter, Ledger: sum})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		e.log.Warn("inventory counter drift", "flight_id", flightID, "classes", len(out))
	}
	return out, nil
}
