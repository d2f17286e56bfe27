// Package schedule reads flight schedules from YAML and registers them with
// the reservation engine.
//
// A schedule file looks like:
//
//	flights:
//	  - flight_number: CA1234
//	    airline: Air China
//	    aircraft_type: A330
//	    departure_city: Beijing
//	    arrival_city: Shanghai
//	    departure_time: 2026-12-24T07:30:00Z
//	    arrival_time: 2026-12-24T09:45:00Z
//	    classes:
//	      economy:  {capacity: 240, price: "860.00"}
//	      business: {capacity: 30, price: "3200"}
//
// Prices are decimal strings in the fare currency and are stored in cents.
package schedule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
)

// Entry is one scheduled flight as written in a schedule file or sent to
// the operator API.
type Entry struct {
	FlightNumber  string               `yaml:"flight_number" json:"flight_number"`
	Airline       string               `yaml:"airline" json:"airline"`
	AircraftType  string               `yaml:"aircraft_type" json:"aircraft_type"`
	DepartureCity string               `yaml:"departure_city" json:"departure_city"`
	ArrivalCity   string               `yaml:"arrival_city" json:"arrival_city"`
	DepartureTime string               `yaml:"departure_time" json:"departure_time"` // RFC 3339
	ArrivalTime   string               `yaml:"arrival_time" json:"arrival_time"`     // RFC 3339
	Classes       map[string]ClassSpec `yaml:"classes" json:"classes"`
}

// ClassSpec describes one cabin of an Entry.
type ClassSpec struct {
	Capacity uint32 `yaml:"capacity" json:"capacity"`
	Price    string `yaml:"price" json:"price"`
}

type file struct {
	Flights []Entry `yaml:"flights"`
}

// Parse decodes a schedule document.  Unknown keys are rejected so typos
// in a schedule surface instead of silently dropping a field.
func Parse(data []byte) ([]Entry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f file
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	for i := range f.Flights {
		if _, err := f.Flights[i].Flight(); err != nil {
			return nil, fmt.Errorf("flight #%d (%s): %w", i+1, f.Flights[i].FlightNumber, err)
		}
	}
	return f.Flights, nil
}

// Load reads and parses the schedule file at path.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	return Parse(data)
}

// Flight converts the entry into a model flight ready for ScheduleFlight.
// Field level rules (non-empty cities, departure before arrival and so on)
// are left to the engine; only the textual formats are checked here.
func (e Entry) Flight() (*model.Flight, error) {
	dep, err := time.Parse(time.RFC3339, strings.TrimSpace(e.DepartureTime))
	if err != nil {
		return nil, fmt.Errorf("departure_time: %w", err)
	}
	arr, err := time.Parse(time.RFC3339, strings.TrimSpace(e.ArrivalTime))
	if err != nil {
		return nil, fmt.Errorf("arrival_time: %w", err)
	}
	classes := make(map[model.SeatClass]model.ClassInventory, len(e.Classes))
	for name, spec := range e.Classes {
		c, ok := model.ParseSeatClass(name)
		if !ok {
			return nil, fmt.Errorf("unknown seat class %q", name)
		}
		if _, dup := classes[c]; dup {
			return nil, fmt.Errorf("seat class %q listed twice", c)
		}
		cents, err := ParseCents(spec.Price)
		if err != nil {
			return nil, fmt.Errorf("%s price: %w", c, err)
		}
		classes[c] = model.ClassInventory{Capacity: spec.Capacity, PriceCents: cents}
	}
	return &model.Flight{
		FlightNumber:  strings.TrimSpace(e.FlightNumber),
		Airline:       strings.TrimSpace(e.Airline),
		AircraftType:  strings.TrimSpace(e.AircraftType),
		DepartureCity: strings.TrimSpace(e.DepartureCity),
		ArrivalCity:   strings.TrimSpace(e.ArrivalCity),
		DepartureTime: dep.UTC(),
		ArrivalTime:   arr.UTC(),
		Classes:       classes,
	}, nil
}

// ParseCents converts a non-negative decimal amount with at most two
// fractional digits ("860", "860.5", "860.50") into cents.
func ParseCents(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && (frac == "" || len(frac) > 2)) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	n, err := strconv.ParseUint(whole+frac, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return uint32(n), nil
}

// Scheduler is the part of the engine Apply needs.
type Scheduler interface {
	ScheduleFlight(ctx context.Context, f *model.Flight) error
}

// Result lists the flight numbers Apply created and skipped.
type Result struct {
	Created []string
	Skipped []string
}

// Apply schedules every entry in order.  Flights whose number is already
// scheduled are skipped, so a schedule file can be applied repeatedly.  Any
// other failure stops the run; flights created before it stay scheduled.
func Apply(ctx context.Context, s Scheduler, entries []Entry, log *slog.Logger) (Result, error) {
	var res Result
	for _, e := range entries {
		f, err := e.Flight()
		if err != nil {
			return res, fmt.Errorf("flight %s: %w", e.FlightNumber, err)
		}
		err = s.ScheduleFlight(ctx, f)
		switch {
		case err == nil:
			res.Created = append(res.Created, f.FlightNumber)
		case errors.Is(err, reservation.ErrConflict):
			res.Skipped = append(res.Skipped, f.FlightNumber)
			log.Info("flight already scheduled, skipping", "flight_number", f.FlightNumber)
		default:
			return res, fmt.Errorf("flight %s: %w", f.FlightNumber, err)
		}
	}
	return res, nil
}
