package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.  Reserve
// writes confirmed rows directly; pending exists for a future payment
// step and is never produced today.  cancelled is terminal.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
)

// Passenger carries the traveller details captured with a booking.
type Passenger struct {
	Name    string `json:"name"`     // reservations.passenger_name
	LegalID string `json:"legal_id"` // reservations.passenger_legal_id
	Phone   string `json:"phone"`    // reservations.passenger_phone
}

// Reservation records a holder's booking of SeatCount seats of one class
// on one flight.  Rows are never deleted by a cancellation; they move to
// cancelled so the ledger also serves as an audit trail.
//
// Fields:
//
//	ID               – primary key identifier.
//	Reference        – public booking reference (UUID).
//	FlightID         – flight being booked.
//	HolderID         – account that owns the booking.
//	SeatClass        – class of every seat in the booking.
//	SeatCount        – number of seats, at least one.
//	Passenger        – traveller details.
//	Status           – pending, confirmed or cancelled.
//	TotalAmountCents – price per seat times SeatCount at booking time.
//	CreatedAt        – creation timestamp; orders the ledger.
//	CancelledAt      – set when Status becomes cancelled.
type Reservation struct {
	ID               uint64            `json:"id"`                     // reservations.id
	Reference        string            `json:"reference"`              // reservations.reference
	FlightID         uint64            `json:"flight_id"`              // reservations.flight_id
	HolderID         uint64            `json:"holder_id"`              // reservations.holder_id
	SeatClass        SeatClass         `json:"seat_class"`             // reservations.seat_class
	SeatCount        uint32            `json:"seat_count"`             // reservations.seat_count
	Passenger        Passenger         `json:"passenger"`              // reservations.passenger_*
	Status           ReservationStatus `json:"status"`                 // reservations.status
	TotalAmountCents uint64            `json:"total_amount_cents"`     // reservations.total_amount_cents
	CreatedAt        time.Time         `json:"created_at"`             // reservations.created_at
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty"` // reservations.cancelled_at (nullable)
}

// Confirmed reports whether the reservation currently holds seats.
func (r *Reservation) Confirmed() bool { return r.Status == StatusConfirmed }
