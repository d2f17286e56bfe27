package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
)

// MemoryStore keeps flights and the reservation ledger in process memory.
// It honours the same locking contract as the MySQL store: one holder of
// a flight's lock at a time, writes buffered until the callback returns
// and applied in one step.  It backs tests and STORE=memory deployments.
type MemoryStore struct {
	mu           sync.RWMutex
	flights      map[uint64]*model.Flight
	reservations map[uint64]*model.Reservation
	byFlight     map[uint64][]uint64
	numbers      map[string]uint64
	nextFlight   uint64
	nextRes      uint64

	locksMu sync.Mutex
	locks   map[uint64]chan struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flights:      map[uint64]*model.Flight{},
		reservations: map[uint64]*model.Reservation{},
		byFlight:     map[uint64][]uint64{},
		numbers:      map[string]uint64{},
		locks:        map[uint64]chan struct{}{},
	}
}

var _ reservation.Store = (*MemoryStore)(nil)

func (s *MemoryStore) Flight(_ context.Context, flightID uint64) (*model.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flights[flightID]
	if !ok {
		return nil, flightNotFound(flightID)
	}
	cp := f.Clone()
	return &cp, nil
}

func (s *MemoryStore) CreateFlight(_ context.Context, f *model.Flight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.numbers[f.FlightNumber]; dup {
		return reservation.Errorf(reservation.CodeConflict, "flight number %s already scheduled", f.FlightNumber)
	}
	s.nextFlight++
	now := time.Now().UTC()
	f.ID = s.nextFlight
	f.CreatedAt, f.UpdatedAt = now, now
	cp := f.Clone()
	s.flights[f.ID] = &cp
	s.numbers[f.FlightNumber] = f.ID
	return nil
}

func (s *MemoryStore) SearchFlights(_ context.Context, q model.FlightQuery) ([]model.Flight, int64, error) {
	s.mu.RLock()
	matches := make([]model.Flight, 0, len(s.flights))
	for _, f := range s.flights {
		if matchFlight(f, q) {
			matches = append(matches, f.Clone())
		}
	}
	s.mu.RUnlock()

	model.SortFlights(matches)
	total := int64(len(matches))
	start := (q.Page - 1) * q.PageSize
	if start < 0 || start >= len(matches) {
		return []model.Flight{}, total, nil
	}
	end := start + q.PageSize
	if end > len(matches) || q.PageSize <= 0 {
		end = len(matches)
	}
	return matches[start:end], total, nil
}

func matchFlight(f *model.Flight, q model.FlightQuery) bool {
	if q.DepartureCity != "" && !containsFold(f.DepartureCity, q.DepartureCity) {
		return false
	}
	if q.ArrivalCity != "" && !containsFold(f.ArrivalCity, q.ArrivalCity) {
		return false
	}
	if q.DepartureDate != "" && f.DepartureTime.UTC().Format(time.DateOnly) != q.DepartureDate {
		return false
	}
	if q.UpcomingOnly && !f.DepartureTime.After(q.Now) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (s *MemoryStore) Reservation(_ context.Context, id uint64) (*model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, reservationNotFound(id)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ReservationsByHolder(_ context.Context, holderID uint64) ([]model.Reservation, error) {
	s.mu.RLock()
	out := []model.Reservation{}
	for _, r := range s.reservations {
		if r.HolderID == holderID {
			out = append(out, *r)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Snapshot(_ context.Context, flightID uint64) (*reservation.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flights[flightID]
	if !ok {
		return nil, flightNotFound(flightID)
	}
	snap := &reservation.Snapshot{Flight: f.Clone()}
	for _, id := range s.byFlight[flightID] {
		if r := s.reservations[id]; r.Confirmed() {
			snap.Reservations = append(snap.Reservations, *r)
		}
	}
	return snap, nil
}

// lockFor returns the semaphore guarding flightID, creating it on first use.
func (s *MemoryStore) lockFor(flightID uint64) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[flightID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[flightID] = l
	}
	return l
}

// dropLock forgets the semaphore of a deleted flight.  Flight IDs are
// never reused, so a caller still queued on the old channel only finds
// the flight gone.
func (s *MemoryStore) dropLock(flightID uint64) {
	s.locksMu.Lock()
	delete(s.locks, flightID)
	s.locksMu.Unlock()
}

func (s *MemoryStore) WithFlightLock(ctx context.Context, flightID uint64, fn func(tx reservation.InventoryTx) error) error {
	l := s.lockFor(flightID)
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return reservation.Wrap(reservation.CodeBusy, ctx.Err(), "flight is busy, retry")
	}
	defer func() { <-l }()

	s.mu.RLock()
	f, ok := s.flights[flightID]
	var flight model.Flight
	if ok {
		flight = f.Clone()
	}
	s.mu.RUnlock()
	if !ok {
		return flightNotFound(flightID)
	}

	tx := &memoryTx{store: s, flight: flight, touched: map[uint64]*model.Reservation{}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return reservation.Wrap(reservation.CodeBusy, err, "flight lock expired before commit")
	}
	tx.commit()
	return nil
}

// memoryTx buffers every write against a private copy of the flight and
// of each reservation it touches.  commit publishes them under the store
// mutex; dropping the tx discards them.
type memoryTx struct {
	store    *MemoryStore
	flight   model.Flight
	inserted []uint64
	touched  map[uint64]*model.Reservation
	deleted  bool
}

func (t *memoryTx) Flight() *model.Flight { return &t.flight }

func (t *memoryTx) Reservation(_ context.Context, id uint64) (*model.Reservation, error) {
	if r, ok := t.touched[id]; ok {
		cp := *r
		return &cp, nil
	}
	t.store.mu.RLock()
	r, ok := t.store.reservations[id]
	t.store.mu.RUnlock()
	if !ok || r.FlightID != t.flight.ID {
		return nil, reservationNotFound(id)
	}
	cp := *r
	return &cp, nil
}

func (t *memoryTx) InsertReservation(_ context.Context, r *model.Reservation) error {
	t.store.mu.Lock()
	t.store.nextRes++
	r.ID = t.store.nextRes
	t.store.mu.Unlock()
	cp := *r
	t.touched[r.ID] = &cp
	t.inserted = append(t.inserted, r.ID)
	return nil
}

func (t *memoryTx) MarkCancelled(ctx context.Context, id uint64, at time.Time) error {
	r, err := t.Reservation(ctx, id)
	if err != nil {
		return err
	}
	if !r.Confirmed() {
		return reservation.Errorf(reservation.CodeAlreadyCancelled, "reservation %d is not confirmed", id)
	}
	r.Status = model.StatusCancelled
	r.CancelledAt = &at
	t.touched[id] = r
	return nil
}

func (t *memoryTx) AdjustReserved(_ context.Context, class model.SeatClass, delta int) error {
	ci, ok := t.flight.Classes[class]
	if !ok {
		return reservation.Errorf(reservation.CodeInvalidRequest, "flight %s has no %s class", t.flight.FlightNumber, class)
	}
	next := int64(ci.Reserved) + int64(delta)
	if next < 0 || next > int64(ci.Capacity) {
		return reservation.Errorf(reservation.CodeInsufficientSeats, "reserved %s seats would become %d of %d", class, next, ci.Capacity)
	}
	ci.Reserved = uint32(next)
	t.flight.Classes[class] = ci
	return nil
}

func (t *memoryTx) ConfirmedReserved(_ context.Context, class model.SeatClass) (uint32, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	var sum uint32
	for _, id := range t.store.byFlight[t.flight.ID] {
		r := t.store.reservations[id]
		if pending, ok := t.touched[id]; ok {
			r = pending
		}
		if r.SeatClass == class && r.Confirmed() {
			sum += r.SeatCount
		}
	}
	for _, id := range t.inserted {
		if r := t.touched[id]; r.SeatClass == class && r.Confirmed() {
			sum += r.SeatCount
		}
	}
	return sum, nil
}

func (t *memoryTx) DeleteFlight(context.Context) error {
	t.deleted = true
	return nil
}

func (t *memoryTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	id := t.flight.ID
	if t.deleted {
		for _, rid := range s.byFlight[id] {
			delete(s.reservations, rid)
		}
		delete(s.byFlight, id)
		delete(s.numbers, t.flight.FlightNumber)
		delete(s.flights, id)
		s.dropLock(id)
		return
	}
	t.flight.UpdatedAt = time.Now().UTC()
	f := t.flight
	s.flights[id] = &f
	for _, rid := range t.inserted {
		s.byFlight[id] = append(s.byFlight[id], rid)
	}
	for rid, r := range t.touched {
		s.reservations[rid] = r
	}
}

// Seed stores f together with already confirmed reservations, bypassing
// the engine.  Counters are left exactly as given so tests can construct
// drifted inventories.
func (s *MemoryStore) Seed(f model.Flight, rs ...model.Reservation) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFlight++
	f.ID = s.nextFlight
	cp := f.Clone()
	s.flights[f.ID] = &cp
	s.numbers[f.FlightNumber] = f.ID
	for _, r := range rs {
		s.nextRes++
		r.ID = s.nextRes
		r.FlightID = f.ID
		rr := r
		s.reservations[r.ID] = &rr
		s.byFlight[f.ID] = append(s.byFlight[f.ID], r.ID)
	}
	return f.ID
}
