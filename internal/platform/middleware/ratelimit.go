package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL is how long an unused per-key limiter is kept.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		IdleTTL:           10 * time.Minute,
	}
}

type limiterStore struct {
	cfg      RateLimitConfig
	limiters *cache.Cache
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &limiterStore{
		cfg:      cfg,
		limiters: cache.New(cfg.IdleTTL, cfg.IdleTTL/2),
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	if v, ok := s.limiters.Get(key); ok {
		s.limiters.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)
	if err := s.limiters.Add(key, lim, cache.DefaultExpiration); err != nil {
		// Lost the race with another request for the same key.
		if v, ok := s.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// RateLimit throttles per tenant and user once auth has run, falling back to
// the client IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	retryAfter := "1"
	if cfg.RequestsPerSecond > 0 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / cfg.RequestsPerSecond)))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !store.get(rateLimitKey(c)).Allow() {
				c.Response().Header().Set("Retry-After", retryAfter)
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

func rateLimitKey(c echo.Context) string {
	tenant, _ := c.Get("tenant_id").(string)
	user, _ := c.Get("user_id").(string)
	if tenant != "" && user != "" {
		return "caller:" + tenant + ":" + user
	}
	return "ip:" + c.RealIP()
}
