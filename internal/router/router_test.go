package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-seat-reservation/internal/handler"
	"github.com/iliyamo/flight-seat-reservation/internal/middleware"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
	"github.com/iliyamo/flight-seat-reservation/internal/repository"
	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
	"github.com/iliyamo/flight-seat-reservation/internal/service"
)

const secret = "router-test-secret"

var now = time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

type api struct {
	t *testing.T
	e *echo.Echo
}

func newAPI(t *testing.T, checks ...handler.Check) *api {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := reservation.NewEngine(repository.NewMemoryStore(), reservation.DefaultPolicy(), reservation.WithLogger(log))
	clock := handler.Clock(func() time.Time { return now })
	e := New(Deps{
		JWTSecret:    secret,
		HealthChecks: checks,
		Flights:      handler.NewFlightHandler(eng, clock),
		Reservations: handler.NewReservationHandler(eng, service.NewMemoryIdempotency(), nil, log, clock),
		Operator:     handler.NewOperatorHandler(eng),
	})
	e.Logger.SetOutput(io.Discard)
	return &api{t: t, e: e}
}

func token(t *testing.T, sub uint64, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (a *api) do(method, path, tok string, body any, hdr ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, rec)["error"].(string)
}

func (a *api) scheduleFlight(number string, economy uint32) uint64 {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/operator/flights", token(a.t, 1, middleware.RoleOperator), map[string]any{
		"flight_number":  number,
		"airline":        "Air China",
		"departure_city": "Beijing",
		"arrival_city":   "Shanghai",
		"departure_time": "2026-12-24T07:30:00Z",
		"arrival_time":   "2026-12-24T09:45:00Z",
		"classes": map[string]any{
			"economy": map[string]any{"capacity": economy, "price": "860.00"},
			"first":   map[string]any{"capacity": 2, "price": "5000"},
		},
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[handler.FlightView](a.t, rec).ID
}

func TestCatalogue(t *testing.T) {
	a := newAPI(t)
	id := a.scheduleFlight("ca1234", 3)

	rec := a.do(http.MethodGet, "/v1/flights?from=beij&to=shang", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Data  []handler.FlightView `json:"data"`
		Total int64                `json:"total"`
	}](t, rec)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, "CA1234", page.Data[0].FlightNumber)
	require.Len(t, page.Data[0].Classes, 2)
	assert.Equal(t, model.SeatClassFirst, page.Data[0].Classes[0].SeatClass, "cabin order")

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/flights/%d/availability?class=economy", id), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode[map[string]any](t, rec)["available"])

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/flights/%d/availability?class=premium", id), "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/flights/%d/seats/empty", id), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"flight_id":%d,"count":5,"seats":["F1","F2","E1","E2","E3"]}`, id), rec.Body.String())

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/flights/999", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/v1/flights/abc", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/v1/flights?date=24-12-2026", "", nil).Code)
}

func TestSearchRejectsOutOfRangePage(t *testing.T) {
	a := newAPI(t)
	a.scheduleFlight("CA1", 1)

	for _, page := range []string{"9223372036854775807", "10001", "two"} {
		rec := a.do(http.MethodGet, "/v1/flights?page="+page, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, page)
		assert.Equal(t, "invalid_request", errorCode(t, rec), page)
	}

	rec := a.do(http.MethodGet, "/v1/flights?page=10000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[struct {
		Total int64 `json:"total"`
	}](t, rec).Total)
}

func TestReserveAndCancel(t *testing.T) {
	a := newAPI(t)
	id := a.scheduleFlight("CA1", 3)
	alice := token(t, 10, middleware.RoleCustomer)
	bob := token(t, 11, middleware.RoleCustomer)
	path := fmt.Sprintf("/v1/flights/%d/reservations", id)

	rec := a.do(http.MethodPost, path, alice, map[string]any{
		"seat_class": "economy",
		"seat_count": 2,
		"passenger":  map[string]string{"name": "Alice", "legal_id": "X1", "phone": "555"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r := decode[model.Reservation](t, rec)
	assert.Equal(t, model.StatusConfirmed, r.Status)
	assert.Equal(t, uint64(10), r.HolderID)
	assert.Equal(t, uint64(172000), r.TotalAmountCents)
	assert.NotEmpty(t, r.Reference)

	rec = a.do(http.MethodPost, path, bob, map[string]any{"seat_class": "economy", "seat_count": 2})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_seats", errorCode(t, rec))

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/reservations/%d", r.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[struct {
		ID    uint64   `json:"id"`
		Seats []string `json:"seats"`
	}](t, rec)
	assert.Equal(t, r.ID, view.ID)
	assert.Equal(t, []string{"E1", "E2"}, view.Seats)

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/reservations/%d", r.ID), bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "foreign reservations are not revealed")
	rec = a.do(http.MethodDelete, fmt.Sprintf("/v1/reservations/%d", r.ID), bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodDelete, fmt.Sprintf("/v1/reservations/%d", r.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusCancelled, decode[model.Reservation](t, rec).Status)

	rec = a.do(http.MethodDelete, fmt.Sprintf("/v1/reservations/%d", r.ID), alice, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_cancelled", errorCode(t, rec))

	rec = a.do(http.MethodGet, "/v1/my-reservations", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["total"])

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/flights/%d/availability?class=economy", id), "", nil)
	assert.EqualValues(t, 3, decode[map[string]any](t, rec)["available"])

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/operator/flights/%d/audit", id), token(t, 1, middleware.RoleOperator), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["consistent"])
}

func TestReserveValidation(t *testing.T) {
	a := newAPI(t)
	id := a.scheduleFlight("CA2", 3)
	alice := token(t, 10, middleware.RoleCustomer)
	path := fmt.Sprintf("/v1/flights/%d/reservations", id)

	tests := []struct {
		name string
		path string
		body any
		code int
		err  string
	}{
		{"zero seats", path, map[string]any{"seat_class": "economy", "seat_count": 0}, http.StatusBadRequest, "invalid_request"},
		{"too many seats", path, map[string]any{"seat_class": "economy", "seat_count": 11}, http.StatusBadRequest, "invalid_request"},
		{"unknown class", path, map[string]any{"seat_class": "premium", "seat_count": 1}, http.StatusBadRequest, "invalid_request"},
		{"class not offered", path, map[string]any{"seat_class": "business", "seat_count": 1}, http.StatusBadRequest, "invalid_request"},
		{"unknown flight", "/v1/flights/999/reservations", map[string]any{"seat_class": "economy", "seat_count": 1}, http.StatusNotFound, "not_found"},
		{"malformed body", path, "not an object", http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(http.MethodPost, tt.path, alice, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Equal(t, tt.err, errorCode(t, rec))
		})
	}
}

func TestIdempotentReserve(t *testing.T) {
	a := newAPI(t)
	id := a.scheduleFlight("CA3", 5)
	alice := token(t, 10, middleware.RoleCustomer)
	path := fmt.Sprintf("/v1/flights/%d/reservations", id)
	body := map[string]any{"seat_class": "economy", "seat_count": 2}

	first := a.do(http.MethodPost, path, alice, body, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, first.Code)
	replay := a.do(http.MethodPost, path, alice, body, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, decode[model.Reservation](t, first).ID, decode[model.Reservation](t, replay).ID)

	rec := a.do(http.MethodPost, path, alice, map[string]any{"seat_class": "economy", "seat_count": 1}, "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "key reused for another request")

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/flights/%d/availability?class=economy", id), "", nil)
	assert.EqualValues(t, 3, decode[map[string]any](t, rec)["available"], "replay books nothing")

	// a failed attempt releases its key
	rec = a.do(http.MethodPost, path, alice, map[string]any{"seat_class": "economy", "seat_count": 4}, "Idempotency-Key", "retry")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = a.do(http.MethodPost, path, alice, map[string]any{"seat_class": "economy", "seat_count": 4}, "Idempotency-Key", "retry")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_seats", errorCode(t, rec))
}

func TestAccessControl(t *testing.T) {
	a := newAPI(t)
	id := a.scheduleFlight("CA4", 3)
	customer := token(t, 10, middleware.RoleCustomer)
	operator := token(t, 1, middleware.RoleOperator)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/my-reservations", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/v1/my-reservations", operator, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodDelete, fmt.Sprintf("/v1/operator/flights/%d", id), customer, nil).Code)

	rec := a.do(http.MethodPost, fmt.Sprintf("/v1/flights/%d/reservations", id), customer, map[string]any{"seat_class": "first", "seat_count": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = a.do(http.MethodDelete, fmt.Sprintf("/v1/operator/flights/%d", id), operator, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "flights with bookings stay")

	other := a.scheduleFlight("CA5", 3)
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, fmt.Sprintf("/v1/operator/flights/%d", other), operator, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, fmt.Sprintf("/v1/flights/%d", other), "", nil).Code)

	rec = a.do(http.MethodPost, "/v1/operator/flights", operator, map[string]any{"flight_number": "CA4"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	down := newAPI(t, handler.Check{Name: "database", Probe: func(context.Context) error { return errors.New("down") }})
	rec = down.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	a.do(http.MethodGet, "/v1/flights", "", nil)
	rec = a.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/v1/flights",status="200"}`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, handler.StatusFor(reservation.Errorf(reservation.CodeBusy, "busy")))
	assert.Equal(t, http.StatusConflict, handler.StatusFor(reservation.ErrCancellationWindowClosed))
	assert.Equal(t, http.StatusInternalServerError, handler.StatusFor(errors.New("boom")))
}
