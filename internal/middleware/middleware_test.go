package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-seat-reservation/internal/config"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func protected() *echo.Echo {
	e := echo.New()
	g := e.Group("/v1", JWTAuth(secret), RequireRole(RoleCustomer))
	g.GET("/whoami", func(c echo.Context) error {
		id, ok := CurrentUserID(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, echo.Map{"id": id})
	})
	return e
}

func call(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := protected()
	exp := time.Now().Add(time.Hour).Unix()

	rec := call(e, sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": 42, "role": RoleCustomer, "exp": exp}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42}`, rec.Body.String())

	rec = call(e, sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "7", "role": RoleCustomer, "exp": exp}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7}`, rec.Body.String())

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": 1, "role": RoleCustomer, "exp": exp}), http.StatusUnauthorized},
		{"wrong algorithm", sign(t, jwt.SigningMethodHS512, []byte(secret), jwt.MapClaims{"sub": 1, "role": RoleCustomer, "exp": exp}), http.StatusUnauthorized},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": 1, "role": RoleCustomer, "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"no subject", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"role": RoleCustomer, "exp": exp}), http.StatusUnauthorized},
		{"operator on customer route", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": 1, "role": RoleOperator, "exp": exp}), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, call(e, tt.token).Code)
		})
	}
}

func TestUserID(t *testing.T) {
	tests := []struct {
		in   any
		want uint64
		ok   bool
	}{
		{float64(12), 12, true},
		{"12", 12, true},
		{uint64(3), 3, true},
		{float64(1.5), 0, false},
		{float64(-4), 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := UserID(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/flights/3/reservations", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/flights/:id/reservations")

	cfg := config.RateLimitConfig{Prefix: "flights:rl", KeyStrategy: "user_route"}
	assert.Equal(t, "flights:rl:user:anon:route:POST /v1/flights/:id/reservations", buildRateKey(cfg, c))

	c.Set("user_id", float64(8))
	assert.Equal(t, "flights:rl:user:8:route:POST /v1/flights/:id/reservations", buildRateKey(cfg, c))

	cfg.KeyStrategy = "ip"
	assert.Equal(t, "flights:rl:ip:10.0.0.9", buildRateKey(cfg, c))
}

func TestCacheKeyDistinguishesPaths(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "flights:cache", KeyStrategy: "route_query"}
	key := func(target string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/flights/:id/availability")
		return cacheKeyFrom(cfg, c)
	}
	assert.NotEqual(t, key("/v1/flights/1/availability?class=economy"), key("/v1/flights/2/availability?class=economy"))
	assert.NotEqual(t, key("/v1/flights/1/availability?class=economy"), key("/v1/flights/1/availability?class=first"))
	assert.Equal(t, key("/v1/flights/1/availability?class=economy"), key("/v1/flights/1/availability?class=economy"))
	assert.Contains(t, key("/v1/flights/1/availability"), "flights:cache:")
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"available":3}`))
	require.NoError(t, err)
	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `{"available":3}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
}

func TestMiddlewareDisabledWithoutRedis(t *testing.T) {
	e := echo.New()
	e.Use(NewResponseCache(config.CacheConfig{Enabled: true}, nil))
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil))
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
