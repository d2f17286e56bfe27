package queue

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

func TestHandleAppendsAuditLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "reservations.log")
	a := &AuditConsumer{LogPath: path, Log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	departs := time.Date(2026, time.December, 24, 7, 30, 0, 0, time.UTC)
	f := &model.Flight{ID: 3, FlightNumber: "CA1234", DepartureCity: "Beijing", ArrivalCity: "Shanghai", DepartureTime: departs}
	r := &model.Reservation{ID: 11, Reference: "ref-11", HolderID: 5, FlightID: 3, SeatClass: model.SeatClassBusiness, SeatCount: 2, TotalAmountCents: 120000}

	for _, typ := range []string{ReservationConfirmed, ReservationCancelled} {
		body, err := json.Marshal(NewReservationEvent(typ, r, f, departs.Add(-48*time.Hour)))
		require.NoError(t, err)
		require.NoError(t, a.Handle(body))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		`[2026-12-22T07:30:00Z] reservation.confirmed | reservation_id=11 | ref=ref-11 | holder_id=5 | flight=CA1234 (3) | route="Beijing -> Shanghai" | departs=2026-12-24T07:30:00Z | class=business | seats=2 | total=120000 cents`,
		lines[0])
	assert.Contains(t, lines[1], "reservation.cancelled")
}

func TestHandleRejectsMalformedMessages(t *testing.T) {
	a := &AuditConsumer{LogPath: filepath.Join(t.TempDir(), "audit.log"), Log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	assert.Error(t, a.Handle([]byte("{not json")))
	assert.Error(t, a.Handle([]byte(`{"type":"reservation.confirmed"}`)))
	_, err := os.Stat(a.LogPath)
	assert.True(t, os.IsNotExist(err))
}
