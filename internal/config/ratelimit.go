package config

import "time"

// Rate limit key strategies understood by the token bucket middleware.
var rateKeyStrategies = []string{"ip", "user", "route", "ip_user", "ip_route", "user_route", "ip_user_route"}

// RateLimitConfig parameterises the Redis token bucket guarding the
// booking endpoints.  Capacity is the burst size; RefillTokens are added
// every RefillInterval.  Buckets idle for TTL are dropped.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool // expose X-RateLimit-* headers
}

// rateLimit reads the RATE_LIMIT_* variables.  The default budget is a
// burst of 20 booking calls per holder and route, refilled at one per
// second.
func (p *problems) rateLimit() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        p.boolOr("RATE_LIMIT_ENABLED", true),
		Capacity:       p.intOr("RATE_LIMIT_CAPACITY", 20),
		RefillTokens:   p.intOr("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: p.durOr("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            p.durOr("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    p.oneOf("RATE_LIMIT_KEY_STRATEGY", "user_route", rateKeyStrategies),
		Prefix:         getenv("RATE_LIMIT_PREFIX", "flights:rl"),
		Debug:          p.boolOr("RATE_LIMIT_DEBUG", false),
	}
	if cfg.Capacity < 1 {
		p.add("RATE_LIMIT_CAPACITY must be at least 1")
	}
	if cfg.RefillTokens < 1 {
		p.add("RATE_LIMIT_REFILL_TOKENS must be at least 1")
	}
	if cfg.RefillInterval <= 0 {
		p.add("RATE_LIMIT_REFILL_INTERVAL must be positive")
	}
	// a bucket must outlive a few refills or it resets to full between calls
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}
