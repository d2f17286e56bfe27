package model

import (
	"sort"
	"strings"
	"time"
)

// SeatClass identifies a cabin class on a flight.  The set of classes is
// closed; every per-class lookup goes through a map keyed by SeatClass
// rather than a chain of comparisons.
type SeatClass string

const (
	SeatClassEconomy  SeatClass = "economy"
	SeatClassBusiness SeatClass = "business"
	SeatClassFirst    SeatClass = "first"
)

// CabinOrder lists the classes front to back.  Seat numbering and any
// per-class listing follow this order.
var CabinOrder = []SeatClass{SeatClassFirst, SeatClassBusiness, SeatClassEconomy}

var seatClassAliases = map[string]SeatClass{
	"economy":        SeatClassEconomy,
	"economy_class":  SeatClassEconomy,
	"business":       SeatClassBusiness,
	"business_class": SeatClassBusiness,
	"first":          SeatClassFirst,
	"first_class":    SeatClassFirst,
}

// ParseSeatClass maps a client supplied tag onto a SeatClass.  Matching is
// case-insensitive and accepts the "<class>_class" spelling as well.
func ParseSeatClass(s string) (SeatClass, bool) {
	c, ok := seatClassAliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// Valid reports whether c is one of the known classes.
func (c SeatClass) Valid() bool {
	_, ok := seatPrefixes[c]
	return ok
}

var seatPrefixes = map[SeatClass]string{
	SeatClassFirst:    "F",
	SeatClassBusiness: "B",
	SeatClassEconomy:  "E",
}

// Prefix is the single letter used when rendering seat labels.
func (c SeatClass) Prefix() string { return seatPrefixes[c] }

// ClassInventory is the per-class part of a flight's inventory record.
//
// Fields:
//
//	Capacity   – total seats sold in this class.
//	Reserved   – seats held by confirmed reservations; never exceeds Capacity.
//	PriceCents – price of one seat in cents.
type ClassInventory struct {
	Capacity   uint32 `json:"capacity"`    // flight_seat_classes.capacity
	Reserved   uint32 `json:"reserved"`    // flight_seat_classes.reserved
	PriceCents uint32 `json:"price_cents"` // flight_seat_classes.price_cents
}

// Available returns the number of unsold seats in the class.
func (ci ClassInventory) Available() uint32 {
	if ci.Reserved >= ci.Capacity {
		return 0
	}
	return ci.Capacity - ci.Reserved
}

// Flight is the inventory record for one scheduled flight.  It is
// created when the schedule is loaded and afterwards only the Reserved
// counters change.
//
// Fields:
//
//	ID            – primary key identifier.
//	FlightNumber  – carrier flight number, unique across the schedule.
//	Airline       – operating carrier name.
//	AircraftType  – aircraft model, informational only.
//	DepartureCity – origin city.
//	ArrivalCity   – destination city.
//	DepartureTime – scheduled departure (UTC).
//	ArrivalTime   – scheduled arrival (UTC), after DepartureTime.
//	Classes       – per-class capacity, price and reserved count.
type Flight struct {
	ID            uint64                       `json:"id"`             // flights.id
	FlightNumber  string                       `json:"flight_number"`  // flights.flight_number
	Airline       string                       `json:"airline"`        // flights.airline
	AircraftType  string                       `json:"aircraft_type"`  // flights.aircraft_type
	DepartureCity string                       `json:"departure_city"` // flights.departure_city
	ArrivalCity   string                       `json:"arrival_city"`   // flights.arrival_city
	DepartureTime time.Time                    `json:"departure_time"` // flights.departure_time
	ArrivalTime   time.Time                    `json:"arrival_time"`   // flights.arrival_time
	Classes       map[SeatClass]ClassInventory `json:"classes"`        // flight_seat_classes rows
	CreatedAt     time.Time                    `json:"created_at"`     // flights.created_at
	UpdatedAt     time.Time                    `json:"updated_at"`     // flights.updated_at
}

// Class returns the inventory of class c and whether the flight offers it.
func (f *Flight) Class(c SeatClass) (ClassInventory, bool) {
	ci, ok := f.Classes[c]
	return ci, ok
}

// OfferedClasses returns the classes defined on the flight in cabin order.
func (f *Flight) OfferedClasses() []SeatClass {
	out := make([]SeatClass, 0, len(f.Classes))
	for _, c := range CabinOrder {
		if _, ok := f.Classes[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy so callers can mutate the class map freely.
func (f *Flight) Clone() Flight {
	out := *f
	out.Classes = make(map[SeatClass]ClassInventory, len(f.Classes))
	for c, ci := range f.Classes {
		out.Classes[c] = ci
	}
	return out
}

// FlightQuery describes a catalogue search.  Empty string fields are not
// applied.  DepartureDate is a calendar day (YYYY-MM-DD) in UTC.
type FlightQuery struct {
	DepartureCity string
	ArrivalCity   string
	DepartureDate string
	// UpcomingOnly limits results to flights departing after Now.
	UpcomingOnly bool
	Now          time.Time
	Page         int
	PageSize     int
}

// SortFlights orders flights by departure time, then ID.
func SortFlights(fs []Flight) {
	sort.Slice(fs, func(i, j int) bool {
		if !fs[i].DepartureTime.Equal(fs[j].DepartureTime) {
			return fs[i].DepartureTime.Before(fs[j].DepartureTime)
		}
		return fs[i].ID < fs[j].ID
	})
}
