package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Check is a named dependency probe, e.g. a database ping.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Health returns the probe used by load balancers.  It answers "ok" with
// 200 when every check passes within two seconds, and 503 naming the
// first failing dependency otherwise.
func Health(checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		for _, chk := range checks {
			if err := chk.Probe(ctx); err != nil {
				return c.String(http.StatusServiceUnavailable, chk.Name+" unavailable")
			}
		}
		return c.String(http.StatusOK, "ok")
	}
}
