// Package reservation is the seat-inventory engine.  It owns the booking
// rules: how many seats a request may take, when sales and cancellations
// close, and that no class is ever sold beyond its capacity.  Every
// mutation runs under the per-flight lock provided by the Store, so two
// requests for the same flight never interleave their check and update.
package reservation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

const tracerName = "reservation"

// Operation names used for spans, metrics and logs.
const (
	OpReserve  = "reserve"
	OpCancel   = "cancel"
	OpSchedule = "schedule"
	OpRemove   = "remove_flight"
	OpAudit    = "audit"
)

// Recorder receives operation outcomes and lock wait times.  The metrics
// package provides the Prometheus implementation.
type Recorder interface {
	Outcome(op string, code Code)
	LockWait(op string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) Outcome(string, Code) {}

func (nopRecorder) LockWait(string, time.Duration) {}

// Engine executes Reserve and Cancel against a Store and serves the
// read-only queries in query.go.
type Engine struct {
	store    Store
	policy   Policy
	log      *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
	newRef   func() string
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the logger.  slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithReferenceGenerator replaces the UUID booking reference generator.
func WithReferenceGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newRef = fn
		}
	}
}

// NewEngine returns an engine bound to store and policy.  It panics when
// store is nil.
func NewEngine(store Store, policy Policy, opts ...Option) *Engine {
	if store == nil {
		panic("nil store passed to NewEngine")
	}
	if policy.MaxSeatsPerBooking == 0 {
		policy.MaxSeatsPerBooking = DefaultPolicy().MaxSeatsPerBooking
	}
	e := &Engine{
		store:    store,
		policy:   policy,
		log:      slog.Default(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer(tracerName),
		newRef:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the rules the engine enforces.
func (e *Engine) Policy() Policy { return e.policy }

// ReserveRequest is the input of Reserve.  HolderID has already been
// established by the caller; the engine does not check credentials.
type ReserveRequest struct {
	FlightID  uint64
	SeatClass model.SeatClass
	SeatCount uint32
	HolderID  uint64
	Passenger model.Passenger
}

// Reserve books SeatCount seats of SeatClass on a flight for HolderID.
// The returned reservation is confirmed and already counted against the
// class capacity.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest, now time.Time) (res *model.Reservation, err error) {
	ctx, span := e.tracer.Start(ctx, "reservation.Reserve", trace.WithAttributes(
		attribute.Int64("flight.id", int64(req.FlightID)),
		attribute.String("seat.class", string(req.SeatClass)),
		attribute.Int("seat.count", int(req.SeatCount)),
	))
	defer func() { err = e.finish(span, OpReserve, err) }()

	if req.SeatCount < 1 || req.SeatCount > e.policy.MaxSeatsPerBooking {
		return nil, Errorf(CodeInvalidRequest, "seat count must be between 1 and %d", e.policy.MaxSeatsPerBooking)
	}
	if !req.SeatClass.Valid() {
		return nil, Errorf(CodeInvalidRequest, "unknown seat class %q", req.SeatClass)
	}
	flight, err := e.store.Flight(ctx, req.FlightID)
	if err != nil {
		return nil, err
	}
	if _, ok := flight.Class(req.SeatClass); !ok {
		return nil, Errorf(CodeInvalidRequest, "flight %s has no %s class", flight.FlightNumber, req.SeatClass)
	}
	if !e.bookable(flight, now) {
		return nil, Errorf(CodeExpired, "flight %s is closed for booking", flight.FlightNumber)
	}

	var created *model.Reservation
	err = e.withLock(ctx, OpReserve, req.FlightID, func(ctx context.Context, tx InventoryTx) error {
		f := tx.Flight()
		if !e.bookable(f, now) {
			return Errorf(CodeExpired, "flight %s is closed for booking", f.FlightNumber)
		}
		ci, ok := f.Class(req.SeatClass)
		if !ok {
			return Errorf(CodeInvalidRequest, "flight %s has no %s class", f.FlightNumber, req.SeatClass)
		}
		if uint64(ci.Reserved)+uint64(req.SeatCount) > uint64(ci.Capacity) {
			return Errorf(CodeInsufficientSeats, "%d %s seats requested, %d left", req.SeatCount, req.SeatClass, ci.Available())
		}
		r := &model.Reservation{
			Reference:        e.newRef(),
			FlightID:         f.ID,
			HolderID:         req.HolderID,
			SeatClass:        req.SeatClass,
			SeatCount:        req.SeatCount,
			Passenger:        trimPassenger(req.Passenger),
			Status:           model.StatusConfirmed,
			TotalAmountCents: uint64(ci.PriceCents) * uint64(req.SeatCount),
			CreatedAt:        now.UTC(),
		}
		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		if err := tx.AdjustReserved(ctx, req.SeatClass, int(req.SeatCount)); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("reservation confirmed",
		"reservation_id", created.ID, "flight_id", created.FlightID, "holder_id", created.HolderID,
		"seat_class", created.SeatClass, "seat_count", created.SeatCount)
	return created, nil
}

// Cancel releases the seats of a confirmed reservation owned by holderID.
// The reservation row stays in the ledger with status cancelled.
func (e *Engine) Cancel(ctx context.Context, reservationID, holderID uint64, now time.Time) (res *model.Reservation, err error) {
	ctx, span := e.tracer.Start(ctx, "reservation.Cancel", trace.WithAttributes(
		attribute.Int64("reservation.id", int64(reservationID)),
	))
	defer func() { err = e.finish(span, OpCancel, err) }()

	r, err := e.store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := e.checkCancellable(r, holderID); err != nil {
		return nil, err
	}
	flight, err := e.store.Flight(ctx, r.FlightID)
	if err != nil {
		return nil, err
	}
	if !e.cancelOpen(flight, now) {
		return nil, Errorf(CodeCancellationWindowClosed, "cancellations for flight %s closed %s before departure", flight.FlightNumber, e.policy.CancelCutoff)
	}

	var cancelled *model.Reservation
	err = e.withLock(ctx, OpCancel, r.FlightID, func(ctx context.Context, tx InventoryTx) error {
		cur, err := tx.Reservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := e.checkCancellable(cur, holderID); err != nil {
			return err
		}
		f := tx.Flight()
		if !e.cancelOpen(f, now) {
			return Errorf(CodeCancellationWindowClosed, "cancellations for flight %s closed %s before departure", f.FlightNumber, e.policy.CancelCutoff)
		}
		at := now.UTC()
		if err := tx.MarkCancelled(ctx, cur.ID, at); err != nil {
			return err
		}
		if err := tx.AdjustReserved(ctx, cur.SeatClass, -int(cur.SeatCount)); err != nil {
			return err
		}
		cur.Status = model.StatusCancelled
		cur.CancelledAt = &at
		cancelled = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("reservation cancelled",
		"reservation_id", cancelled.ID, "flight_id", cancelled.FlightID, "holder_id", cancelled.HolderID,
		"seat_class", cancelled.SeatClass, "seat_count", cancelled.SeatCount)
	return cancelled, nil
}

// Reservation returns one reservation if it belongs to holderID.
func (e *Engine) Reservation(ctx context.Context, reservationID, holderID uint64) (*model.Reservation, error) {
	r, err := e.store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, normalize(err)
	}
	if err := e.checkOwner(r, holderID); err != nil {
		return nil, err
	}
	return r, nil
}

// ReservationsByHolder lists the holder's reservations, newest first.
func (e *Engine) ReservationsByHolder(ctx context.Context, holderID uint64) ([]model.Reservation, error) {
	rs, err := e.store.ReservationsByHolder(ctx, holderID)
	if err != nil {
		return nil, normalize(err)
	}
	return rs, nil
}

// ScheduleFlight validates and stores a new flight with empty inventory.
func (e *Engine) ScheduleFlight(ctx context.Context, f *model.Flight) (err error) {
	ctx, span := e.tracer.Start(ctx, "reservation.ScheduleFlight")
	defer func() { err = e.finish(span, OpSchedule, err) }()

	if err := validateFlight(f); err != nil {
		return err
	}
	for c, ci := range f.Classes {
		ci.Reserved = 0
		f.Classes[c] = ci
	}
	if err := e.store.CreateFlight(ctx, f); err != nil {
		return err
	}
	e.log.Info("flight scheduled", "flight_id", f.ID, "flight_number", f.FlightNumber)
	return nil
}

// RemoveFlight deletes a flight that holds no confirmed reservations.  It
// runs under the flight lock so it cannot race a concurrent Reserve.
func (e *Engine) RemoveFlight(ctx context.Context, flightID uint64) (err error) {
	ctx, span := e.tracer.Start(ctx, "reservation.RemoveFlight", trace.WithAttributes(
		attribute.Int64("flight.id", int64(flightID)),
	))
	defer func() { err = e.finish(span, OpRemove, err) }()

	return e.withLock(ctx, OpRemove, flightID, func(ctx context.Context, tx InventoryTx) error {
		f := tx.Flight()
		for _, c := range f.OfferedClasses() {
			if f.Classes[c].Reserved > 0 {
				return Errorf(CodeConflict, "flight %s still has confirmed reservations", f.FlightNumber)
			}
		}
		return tx.DeleteFlight(ctx)
	})
}

// withLock runs fn under the flight lock, bounding the wait by the
// policy's LockTimeout, and reports how long the lock took to acquire.
func (e *Engine) withLock(ctx context.Context, op string, flightID uint64, fn func(ctx context.Context, tx InventoryTx) error) error {
	if e.policy.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.LockTimeout)
		defer cancel()
	}
	start := time.Now()
	err := e.store.WithFlightLock(ctx, flightID, func(tx InventoryTx) error {
		e.recorder.LockWait(op, time.Since(start))
		return fn(ctx, tx)
	})
	if errors.Is(err, ErrBusy) {
		e.log.Warn("flight lock contention", "op", op, "flight_id", flightID, "waited", time.Since(start))
	}
	return err
}

// finish normalises err, records the outcome and closes the span.
func (e *Engine) finish(span trace.Span, op string, err error) error {
	defer span.End()
	err = normalize(err)
	e.recorder.Outcome(op, CodeOf(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CodeOf(err)))
		if CodeOf(err) == CodeInternal {
			e.log.Error("reservation engine failure", "op", op, "error", err)
		}
	}
	return err
}

func (e *Engine) bookable(f *model.Flight, now time.Time) bool {
	return f.DepartureTime.After(now.Add(e.policy.BookingCutoff))
}

func (e *Engine) cancelOpen(f *model.Flight, now time.Time) bool {
	return f.DepartureTime.Sub(now) >= e.policy.CancelCutoff
}

// checkOwner hides other holders' reservations behind NotFound unless
// the policy reveals them.
func (e *Engine) checkOwner(r *model.Reservation, holderID uint64) error {
	if r.HolderID == holderID {
		return nil
	}
	if e.policy.RevealForeignReservations {
		return Errorf(CodeForbidden, "reservation %d belongs to another holder", r.ID)
	}
	return Errorf(CodeNotFound, "reservation %d not found", r.ID)
}

func (e *Engine) checkCancellable(r *model.Reservation, holderID uint64) error {
	if err := e.checkOwner(r, holderID); err != nil {
		return err
	}
	switch r.Status {
	case model.StatusConfirmed:
		return nil
	case model.StatusCancelled:
		return Errorf(CodeAlreadyCancelled, "reservation %d is already cancelled", r.ID)
	default:
		return Errorf(CodeInvalidRequest, "reservation %d is %s and holds no seats", r.ID, r.Status)
	}
}

// normalize turns foreign errors into internal *Error values so callers
// only ever see the engine taxonomy.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(CodeBusy, err, "flight is busy, retry")
	}
	return Wrap(CodeInternal, err, "storage failure")
}

func trimPassenger(p model.Passenger) model.Passenger {
	return model.Passenger{
		Name:    strings.TrimSpace(p.Name),
		LegalID: strings.TrimSpace(p.LegalID),
		Phone:   strings.TrimSpace(p.Phone),
	}
}

func validateFlight(f *model.Flight) error {
	if f == nil {
		return Errorf(CodeInvalidRequest, "flight is required")
	}
	f.FlightNumber = strings.ToUpper(strings.TrimSpace(f.FlightNumber))
	f.DepartureCity = strings.TrimSpace(f.DepartureCity)
	f.ArrivalCity = strings.TrimSpace(f.ArrivalCity)
	switch {
	case f.FlightNumber == "":
		return Errorf(CodeInvalidRequest, "flight number is required")
	case f.DepartureCity == "" || f.ArrivalCity == "":
		return Errorf(CodeInvalidRequest, "departure and arrival city are required")
	case !f.ArrivalTime.After(f.DepartureTime):
		return Errorf(CodeInvalidRequest, "arrival must be after departure")
	case len(f.Classes) == 0:
		return Errorf(CodeInvalidRequest, "flight must offer at least one seat class")
	}
	for c := range f.Classes {
		if !c.Valid() {
			return Errorf(CodeInvalidRequest, "unknown seat class %q", c)
		}
	}
	f.DepartureTime = f.DepartureTime.UTC()
	f.ArrivalTime = f.ArrivalTime.UTC()
	return nil
}
