package schedule

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
	"github.com/iliyamo/flight-seat-reservation/internal/repository"
	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
)

const sample = `
flights:
  - flight_number: ca1234
    airline: Air China
    aircraft_type: A330
    departure_city: Beijing
    arrival_city: Shanghai
    departure_time: 2026-12-24T07:30:00Z
    arrival_time: "2026-12-24T09:45:00Z"
    classes:
      economy: {capacity: 240, price: 860.5}
      business_class: {capacity: 30, price: "3200"}
  - flight_number: MU5101
    departure_city: Shanghai
    arrival_city: Beijing
    departure_time: 2026-12-25T10:00:00+08:00
    arrival_time: 2026-12-25T12:10:00+08:00
    classes:
      first: {capacity: 8, price: "9999.99"}
`

func TestParse(t *testing.T) {
	entries, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	f, err := entries[0].Flight()
	require.NoError(t, err)
	assert.Equal(t, "ca1234", f.FlightNumber)
	assert.Equal(t, time.Date(2026, time.December, 24, 7, 30, 0, 0, time.UTC), f.DepartureTime)
	assert.Equal(t, model.ClassInventory{Capacity: 240, PriceCents: 86050}, f.Classes[model.SeatClassEconomy])
	assert.Equal(t, model.ClassInventory{Capacity: 30, PriceCents: 320000}, f.Classes[model.SeatClassBusiness])

	f, err = entries[1].Flight()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.December, 25, 2, 0, 0, 0, time.UTC), f.DepartureTime, "normalised to UTC")
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"unknown field": "flights:\n  - flight_nmber: X1\n",
		"bad time":      "flights:\n  - flight_number: X1\n    departure_time: tomorrow\n    arrival_time: 2026-12-24T09:45:00Z\n",
		"unknown class": "flights:\n  - flight_number: X1\n    departure_time: 2026-12-24T07:30:00Z\n    arrival_time: 2026-12-24T09:45:00Z\n    classes:\n      premium: {capacity: 1, price: \"1\"}\n",
		"bad price":     "flights:\n  - flight_number: X1\n    departure_time: 2026-12-24T07:30:00Z\n    arrival_time: 2026-12-24T09:45:00Z\n    classes:\n      economy: {capacity: 1, price: \"1.999\"}\n",
		"duplicate class": "flights:\n  - flight_number: X1\n    departure_time: 2026-12-24T07:30:00Z\n    arrival_time: 2026-12-24T09:45:00Z\n    classes:\n      economy: {capacity: 1, price: \"1\"}\n      economy_class: {capacity: 2, price: \"1\"}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	entries, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseCents(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"860", 86000, true},
		{"860.5", 86050, true},
		{"860.05", 86005, true},
		{" 0.99 ", 99, true},
		{"0", 0, true},
		{"", 0, false},
		{".5", 0, false},
		{"5.", 0, false},
		{"1.234", 0, false},
		{"-1", 0, false},
		{"+1", 0, false},
		{"1e3", 0, false},
		{"99999999999", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseCents(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	entries, err := Load(path)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := reservation.NewEngine(repository.NewMemoryStore(), reservation.DefaultPolicy(), reservation.WithLogger(log))
	ctx := context.Background()

	res, err := Apply(ctx, eng, entries, log)
	require.NoError(t, err)
	assert.Equal(t, []string{"CA1234", "MU5101"}, res.Created)
	assert.Empty(t, res.Skipped)

	res, err = Apply(ctx, eng, entries, log)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, []string{"CA1234", "MU5101"}, res.Skipped, "re-applying is a no-op")

	fs, total, err := eng.SearchFlights(ctx, model.FlightQuery{DepartureCity: "beijing"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, uint32(240), fs[0].Classes[model.SeatClassEconomy].Available())
}

func TestApplyStopsOnInvalidFlight(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := reservation.NewEngine(repository.NewMemoryStore(), reservation.DefaultPolicy(), reservation.WithLogger(log))
	entries := []Entry{{
		FlightNumber:  "ZZ1",
		DepartureCity: "Oslo",
		ArrivalCity:   "Bergen",
		DepartureTime: "2026-12-24T09:00:00Z",
		ArrivalTime:   "2026-12-24T08:00:00Z",
		Classes:       map[string]ClassSpec{"economy": {Capacity: 10, Price: "10"}},
	}}
	_, err := Apply(context.Background(), eng, entries, log)
	assert.ErrorIs(t, err, reservation.ErrInvalidRequest)
}
