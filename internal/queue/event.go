// Package queue defines the reservation events exchanged over RabbitMQ and
// the consumer that turns them into an append-only audit log.
package queue

import (
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// Event types, also used as queue names.
const (
	ReservationConfirmed = "reservation.confirmed"
	ReservationCancelled = "reservation.cancelled"
)

// Queues lists every queue the audit consumer reads.
var Queues = []string{ReservationConfirmed, ReservationCancelled}

// ReservationEvent is published after a reservation is committed or
// cancelled.  It carries enough for downstream consumers to log, notify
// or aggregate without querying the primary database.
type ReservationEvent struct {
	Type             string    `json:"type"`
	ReservationID    uint64    `json:"reservation_id"`
	Reference        string    `json:"reference"`
	HolderID         uint64    `json:"holder_id"`
	FlightID         uint64    `json:"flight_id"`
	FlightNumber     string    `json:"flight_number"`
	DepartureCity    string    `json:"departure_city"`
	ArrivalCity      string    `json:"arrival_city"`
	DepartureTime    time.Time `json:"departure_time"`
	SeatClass        string    `json:"seat_class"`
	SeatCount        uint32    `json:"seat_count"`
	TotalAmountCents uint64    `json:"total_amount_cents"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewReservationEvent builds the event of the given type for r on f.
func NewReservationEvent(eventType string, r *model.Reservation, f *model.Flight, at time.Time) ReservationEvent {
	ev := ReservationEvent{
		Type:             eventType,
		ReservationID:    r.ID,
		Reference:        r.Reference,
		HolderID:         r.HolderID,
		FlightID:         r.FlightID,
		SeatClass:        string(r.SeatClass),
		SeatCount:        r.SeatCount,
		TotalAmountCents: r.TotalAmountCents,
		OccurredAt:       at.UTC(),
	}
	if f != nil {
		ev.FlightNumber = f.FlightNumber
		ev.DepartureCity = f.DepartureCity
		ev.ArrivalCity = f.ArrivalCity
		ev.DepartureTime = f.DepartureTime
	}
	return ev
}
