package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
)

// FlightHandler serves the public flight catalogue.  None of its routes
// require authentication.
type FlightHandler struct {
	Engine *reservation.Engine
	Now    Clock
}

// NewFlightHandler panics when engine is nil.
func NewFlightHandler(engine *reservation.Engine, now Clock) *FlightHandler {
	if engine == nil {
		panic("nil engine passed to NewFlightHandler")
	}
	return &FlightHandler{Engine: engine, Now: now}
}

// ClassView is one cabin of a flight as shown to clients.
type ClassView struct {
	SeatClass  model.SeatClass `json:"seat_class"`
	Capacity   uint32          `json:"capacity"`
	Available  uint32          `json:"available"`
	PriceCents uint32          `json:"price_cents"`
}

// FlightView is the public representation of a flight.  Classes are
// listed in cabin order.
type FlightView struct {
	ID            uint64      `json:"id"`
	FlightNumber  string      `json:"flight_number"`
	Airline       string      `json:"airline,omitempty"`
	AircraftType  string      `json:"aircraft_type,omitempty"`
	DepartureCity string      `json:"departure_city"`
	ArrivalCity   string      `json:"arrival_city"`
	DepartureTime time.Time   `json:"departure_time"`
	ArrivalTime   time.Time   `json:"arrival_time"`
	Classes       []ClassView `json:"classes"`
}

func newFlightView(f *model.Flight) FlightView {
	v := FlightView{
		ID:            f.ID,
		FlightNumber:  f.FlightNumber,
		Airline:       f.Airline,
		AircraftType:  f.AircraftType,
		DepartureCity: f.DepartureCity,
		ArrivalCity:   f.ArrivalCity,
		DepartureTime: f.DepartureTime,
		ArrivalTime:   f.ArrivalTime,
		Classes:       make([]ClassView, 0, len(f.Classes)),
	}
	for _, c := range f.OfferedClasses() {
		ci := f.Classes[c]
		v.Classes = append(v.Classes, ClassView{SeatClass: c, Capacity: ci.Capacity, Available: ci.Available(), PriceCents: ci.PriceCents})
	}
	return v
}

// SearchFlights handles GET /v1/flights.
//
// Query parameters: from, to (case-insensitive substrings), date
// (YYYY-MM-DD, UTC), time ("upcoming" by default or "any"), page and
// page_size (at most 100).  page above reservation.MaxPage is rejected.
func (h *FlightHandler) SearchFlights(c echo.Context) error {
	q := model.FlightQuery{
		DepartureCity: strings.TrimSpace(c.QueryParam("from")),
		ArrivalCity:   strings.TrimSpace(c.QueryParam("to")),
		DepartureDate: strings.TrimSpace(c.QueryParam("date")),
		Now:           h.Now.now(),
	}
	if q.DepartureDate != "" {
		if _, err := time.Parse(time.DateOnly, q.DepartureDate); err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.QueryParam("time"))) {
	case "", "upcoming":
		q.UpcomingOnly = true
	case "any":
	default:
		return badRequest(c, "time must be upcoming or any")
	}
	if raw := c.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n > reservation.MaxPage {
			return badRequest(c, fmt.Sprintf("page must be a number between 1 and %d", reservation.MaxPage))
		}
		q.Page = n
	}
	if q.Page < 1 {
		q.Page = 1
	}
	q.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if q.PageSize < 1 {
		q.PageSize = reservation.DefaultPageSize
	}
	if q.PageSize > reservation.MaxPageSize {
		q.PageSize = reservation.MaxPageSize
	}

	flights, total, err := h.Engine.SearchFlights(c.Request().Context(), q)
	if err != nil {
		return respondError(c, err)
	}
	items := make([]FlightView, 0, len(flights))
	for i := range flights {
		items = append(items, newFlightView(&flights[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      items,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// GetFlight handles GET /v1/flights/:id.
func (h *FlightHandler) GetFlight(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid flight id")
	}
	f, err := h.Engine.Flight(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, newFlightView(f))
}

// Availability handles GET /v1/flights/:id/availability?class=economy.
func (h *FlightHandler) Availability(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid flight id")
	}
	raw := c.QueryParam("class")
	class, ok := model.ParseSeatClass(raw)
	if !ok {
		return badRequest(c, "class must be economy, business or first")
	}
	n, err := h.Engine.AvailableSeats(c.Request().Context(), id, class)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"flight_id": id, "seat_class": class, "available": n})
}

// EmptySeats handles GET /v1/flights/:id/seats/empty.  Seat labels are
// derived from the confirmed reservations in booking order, so they are
// indicative rather than assigned seats.
func (h *FlightHandler) EmptySeats(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid flight id")
	}
	seats, err := h.Engine.EmptySeatNumbers(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"flight_id": id, "count": len(seats), "seats": seats})
}
