package config

import (
	"net/http"
	"strings"
	"time"
)

// Cache key strategies understood by the response cache middleware.
var cacheKeyStrategies = []string{"route", "route_query", "method_route", "method_route_query"}

// CacheConfig controls the Redis response cache in front of the public
// flight catalogue.  TTL also bounds how stale a cached seat count can be:
// bookings never pass through the cache, so a cached availability figure
// lags the ledger by at most TTL.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool // upper-cased methods whose responses may be stored
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int // responses larger than this are served but not stored
}

// cache reads the CACHE_* variables.
func (p *problems) cache() CacheConfig {
	cfg := CacheConfig{
		Enabled:      p.boolOr("CACHE_ENABLED", true),
		Methods:      p.cacheMethods(getenv("CACHE_METHODS", http.MethodGet)),
		TTL:          p.durOr("CACHE_TTL", 5*time.Second),
		KeyStrategy:  p.oneOf("CACHE_KEY_STRATEGY", "route_query", cacheKeyStrategies),
		Prefix:       getenv("CACHE_PREFIX", "flights:cache"),
		MaxBodyBytes: p.intOr("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	if cfg.TTL <= 0 {
		p.add("CACHE_TTL must be positive")
	}
	if cfg.MaxBodyBytes < 0 {
		p.add("CACHE_MAX_BODY_BYTES must not be negative")
	}
	return cfg
}

// cacheMethods parses a comma separated method list.  Only safe methods
// can be cached; anything else is reported.
func (p *problems) cacheMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		method := strings.ToUpper(strings.TrimSpace(part))
		switch method {
		case "":
		case http.MethodGet, http.MethodHead:
			m[method] = true
		default:
			p.add("CACHE_METHODS: %s responses cannot be cached", method)
		}
	}
	return m
}
