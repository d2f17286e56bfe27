package handler // handler translates HTTP requests into reservation engine calls

import (
	"errors"   // errors unwraps engine failures
	"net/http" // net/http provides status codes
	"strconv"  // strconv parses path parameters
	"time"     // time supplies the request clock

	"github.com/labstack/echo/v4" // echo defines request context types

	"github.com/iliyamo/flight-seat-reservation/internal/middleware"  // middleware exposes the authenticated holder
	"github.com/iliyamo/flight-seat-reservation/internal/reservation" // reservation defines error codes
)

// Clock returns the current time.  Handlers take it as a dependency so
// tests can pin "now" relative to departure times.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// statusByCode maps engine error codes onto HTTP statuses.
var statusByCode = map[reservation.Code]int{
	reservation.CodeInvalidRequest:           http.StatusBadRequest,
	reservation.CodeNotFound:                 http.StatusNotFound,
	reservation.CodeForbidden:                http.StatusForbidden,
	reservation.CodeExpired:                  http.StatusConflict,
	reservation.CodeInsufficientSeats:        http.StatusConflict,
	reservation.CodeAlreadyCancelled:         http.StatusConflict,
	reservation.CodeCancellationWindowClosed: http.StatusConflict,
	reservation.CodeConflict:                 http.StatusConflict,
	reservation.CodeBusy:                     http.StatusServiceUnavailable,
	reservation.CodeInternal:                 http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	if s, ok := statusByCode[reservation.CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": code, "message": text} for an engine
// failure.  Internal errors are logged by the caller's request log and
// reported without detail; Busy asks the client to retry.
func respondError(c echo.Context, err error) error {
	code := reservation.CodeOf(err)
	status := StatusFor(err)
	msg := err.Error()
	var re *reservation.Error
	if errors.As(err, &re) && re.Message != "" {
		msg = re.Message
	}
	switch code {
	case reservation.CodeInternal:
		c.Logger().Errorf("request failed: %v", err)
		msg = "internal error"
	case reservation.CodeBusy:
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(status, echo.Map{"error": string(code), "message": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": string(reservation.CodeInvalidRequest), "message": msg})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// holderID extracts the authenticated holder set by JWTAuth.
func holderID(c echo.Context) (uint64, error) {
	id, ok := middleware.CurrentUserID(c)
	if !ok {
		return 0, errors.New("invalid user_id in context")
	}
	return id, nil
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "authentication required"})
}
