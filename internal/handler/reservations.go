package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
	"github.com/iliyamo/flight-seat-reservation/internal/queue"
	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
	"github.com/iliyamo/flight-seat-reservation/internal/service"
)

// ReservationHandler serves the customer booking endpoints.  All methods
// assume JWTAuth and RequireRole have run; the holder is always the token
// subject, never a request field.
type ReservationHandler struct {
	Engine *reservation.Engine
	Idem   service.Idempotency
	Events service.Publisher
	Log    *slog.Logger
	Now    Clock
}

// NewReservationHandler wires the handler.  A nil Idem disables
// Idempotency-Key support and a nil Events drops events.
func NewReservationHandler(engine *reservation.Engine, idem service.Idempotency, events service.Publisher, log *slog.Logger, now Clock) *ReservationHandler {
	if engine == nil {
		panic("nil engine passed to NewReservationHandler")
	}
	if events == nil {
		events = service.NoopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReservationHandler{Engine: engine, Idem: idem, Events: events, Log: log, Now: now}
}

type reserveBody struct {
	SeatClass string          `json:"seat_class"`
	SeatCount uint32          `json:"seat_count"`
	Passenger model.Passenger `json:"passenger"`
}

// ReservationView is a reservation together with its indicative seats.
type ReservationView struct {
	*model.Reservation
	Seats []reservation.SeatLabel `json:"seats,omitempty"`
}

// Reserve handles POST /v1/flights/:id/reservations.
//
// Body: {"seat_class": "economy", "seat_count": 2, "passenger": {...}}.
// Responds 201 with the confirmed reservation.  When the request carries
// an Idempotency-Key that already produced a reservation, that reservation
// is returned with 200 and Idempotent-Replayed: true.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	holder, err := holderID(c)
	if err != nil {
		return unauthorized(c)
	}
	flightID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid flight id")
	}
	var body reserveBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	class, ok := model.ParseSeatClass(body.SeatClass)
	if !ok {
		// let the engine report the unknown class in its usual order
		class = model.SeatClass(strings.TrimSpace(body.SeatClass))
	}

	ctx := c.Request().Context()
	key := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
	fp := service.Fingerprint(flightID, string(class), body.SeatCount)
	if key != "" && h.Idem != nil {
		if len(key) > 128 {
			return badRequest(c, "Idempotency-Key is longer than 128 characters")
		}
		prior, err := h.Idem.Begin(ctx, holder, key, fp)
		if err != nil {
			return respondError(c, err)
		}
		if prior != 0 {
			r, err := h.Engine.Reservation(ctx, prior, holder)
			if err != nil {
				return respondError(c, err)
			}
			c.Response().Header().Set("Idempotent-Replayed", "true")
			return c.JSON(http.StatusOK, r)
		}
	}

	now := h.Now.now()
	r, err := h.Engine.Reserve(ctx, reservation.ReserveRequest{
		FlightID:  flightID,
		SeatClass: class,
		SeatCount: body.SeatCount,
		HolderID:  holder,
		Passenger: body.Passenger,
	}, now)

	if key != "" && h.Idem != nil {
		// the outcome must be recorded even if the client has gone away
		bg := context.WithoutCancel(ctx)
		if err != nil {
			if ierr := h.Idem.Fail(bg, holder, key); ierr != nil {
				h.Log.Warn("release idempotency key", "holder_id", holder, "error", ierr)
			}
		} else if ierr := h.Idem.Succeed(bg, holder, key, fp, r.ID); ierr != nil {
			h.Log.Warn("store idempotency result", "holder_id", holder, "reservation_id", r.ID, "error", ierr)
		}
	}
	if err != nil {
		return respondError(c, err)
	}

	h.publish(queue.ReservationConfirmed, r, now)
	return c.JSON(http.StatusCreated, r)
}

// Cancel handles DELETE /v1/reservations/:id.  The reservation is kept
// with status "cancelled" and its seats return to the flight.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	holder, err := holderID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	now := h.Now.now()
	r, err := h.Engine.Cancel(c.Request().Context(), id, holder, now)
	if err != nil {
		return respondError(c, err)
	}
	h.publish(queue.ReservationCancelled, r, now)
	return c.JSON(http.StatusOK, r)
}

// ListMine handles GET /v1/my-reservations, newest first.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	holder, err := holderID(c)
	if err != nil {
		return unauthorized(c)
	}
	rs, err := h.Engine.ReservationsByHolder(c.Request().Context(), holder)
	if err != nil {
		return respondError(c, err)
	}
	if rs == nil {
		rs = []model.Reservation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rs, "total": len(rs)})
}

// Get handles GET /v1/reservations/:id.  Confirmed reservations include
// their indicative seat labels.
func (h *ReservationHandler) Get(c echo.Context) error {
	holder, err := holderID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	ctx := c.Request().Context()
	r, err := h.Engine.Reservation(ctx, id, holder)
	if err != nil {
		return respondError(c, err)
	}
	view := ReservationView{Reservation: r}
	if r.Confirmed() {
		if view.Seats, err = h.Engine.ReservationSeats(ctx, id, holder); err != nil {
			return respondError(c, err)
		}
	}
	return c.JSON(http.StatusOK, view)
}

// publish sends the event in the background once the change is
// committed.  Failures are logged only.
func (h *ReservationHandler) publish(eventType string, r *model.Reservation, at time.Time) {
	res := *r
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f, _ := h.Engine.Flight(ctx, res.FlightID) // without it the event still carries the reservation fields
		if err := h.Events.Publish(ctx, queue.NewReservationEvent(eventType, &res, f, at)); err != nil {
			h.Log.Warn("publish reservation event", "type", eventType, "reservation_id", res.ID, "error", err)
		}
	}()
}
