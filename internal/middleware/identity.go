package middleware

// identity.go converts the subject claim stored by JWTAuth into a holder
// identifier.  JSON numbers decode as float64, while some issuers send the
// subject as a decimal string, so both are accepted.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID converts a raw "sub" claim into a positive holder id.
func UserID(v any) (uint64, bool) {
	switch t := v.(type) {
	case uint64:
		return t, t > 0
	case int:
		return uint64(t), t > 0
	case int64:
		return uint64(t), t > 0
	case float64:
		if t < 1 || t != float64(uint64(t)) {
			return 0, false
		}
		return uint64(t), true
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

// CurrentUserID returns the authenticated holder id, if any.
func CurrentUserID(c echo.Context) (uint64, bool) {
	return UserID(c.Get("user_id"))
}

// currentUserKey is the caller identity used in rate limit keys; requests
// without a token share the "anon" bucket.
func currentUserKey(c echo.Context) string {
	if id, ok := CurrentUserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
