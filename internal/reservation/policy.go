package reservation

import "time"

// Policy holds the booking rules the engine enforces.
type Policy struct {
	// MaxSeatsPerBooking caps SeatCount on a single Reserve call.
	MaxSeatsPerBooking uint32
	// BookingCutoff is how long before departure sales close.  Zero
	// closes sales at departure.
	BookingCutoff time.Duration
	// CancelCutoff is the minimum time before departure at which a
	// reservation can still be cancelled.
	CancelCutoff time.Duration
	// LockTimeout bounds the wait for the per-flight lock.  Zero leaves
	// the bound to the caller's context.
	LockTimeout time.Duration
	// RevealForeignReservations answers requests for another holder's
	// reservation with Forbidden instead of NotFound.
	RevealForeignReservations bool
}

// DefaultPolicy returns the rules used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxSeatsPerBooking: 10,
		BookingCutoff:      0,
		CancelCutoff:       24 * time.Hour,
		LockTimeout:        5 * time.Second,
	}
}
