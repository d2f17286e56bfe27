package router // package router builds the echo instance and registers every route

import (
	"github.com/google/uuid"                                      // uuid generates request IDs
	"github.com/labstack/echo/v4"                                 // echo is the web framework
	echomw "github.com/labstack/echo/v4/middleware"               // echo's stock middleware
	"github.com/prometheus/client_golang/prometheus/promhttp"     // promhttp serves the metrics registry
	"github.com/redis/go-redis/v9"                                // redis backs caching and rate limiting

	"github.com/iliyamo/flight-seat-reservation/internal/config"     // config supplies cache and rate limit settings
	"github.com/iliyamo/flight-seat-reservation/internal/handler"    // handler implements the endpoints
	"github.com/iliyamo/flight-seat-reservation/internal/metrics"    // metrics records HTTP traffic
	"github.com/iliyamo/flight-seat-reservation/internal/middleware" // middleware provides auth, cache and rate limit
	"github.com/iliyamo/flight-seat-reservation/internal/tracing"    // tracing creates server spans
)

// Deps carries everything New needs.  Redis may be nil, in which case the
// response cache and rate limiter are disabled.
type Deps struct {
	JWTSecret    string
	Redis        *redis.Client
	Cache        config.CacheConfig
	RateLimit    config.RateLimitConfig
	HealthChecks []handler.Check
	Flights      *handler.FlightHandler
	Reservations *handler.ReservationHandler
	Operator     *handler.OperatorHandler
}

// New returns an echo instance with the shared middleware stack and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(tracing.Middleware())
	e.Use(metrics.Middleware)
	e.Use(echomw.LoggerWithConfig(echomw.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","method":"${method}","uri":"${uri}","status":${status},"latency":"${latency_human}"}` + "\n",
	}))

	RegisterRoutes(e, d.HealthChecks...)
	RegisterPublic(e, d.Flights, middleware.NewResponseCache(d.Cache, d.Redis))
	RegisterCustomer(e, d.Reservations, d.JWTSecret, middleware.NewTokenBucket(d.RateLimit, d.Redis))
	RegisterOperator(e, d.Operator, d.JWTSecret)
	return e
}

// RegisterRoutes registers the unauthenticated infrastructure endpoints:
// the health probe and the Prometheus scrape target.
func RegisterRoutes(e *echo.Echo, checks ...handler.Check) {
	e.GET("/healthz", handler.Health(checks...))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers the flight catalogue.  These routes need no
// token and pass through the response cache.
func RegisterPublic(e *echo.Echo, h *handler.FlightHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/flights", cache)
	g.GET("", h.SearchFlights)
	g.GET("/:id", h.GetFlight)
	g.GET("/:id/availability", h.Availability)
	g.GET("/:id/seats/empty", h.EmptySeats)
}
