package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hms/hms/internal/platform/clock"
)

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops a client's limiter after this long without requests.
	IdleTTL time.Duration
	Clock   clock.Clock
	Logger  zerolog.Logger
}

// DefaultRateLimitConfig allows a short burst of sign-in attempts per client
// and then one request every six seconds.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 1.0 / 6,
		BurstSize:         10,
		IdleTTL:           10 * time.Minute,
		Logger:            zerolog.Nop(),
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one token bucket per client key.
type limiterStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	cfg      RateLimitConfig
	swept    time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{visitors: make(map[string]*visitor), cfg: cfg}
}

// reserve takes a token for key at now. When none is available it returns
// how long the client should wait.
func (s *limiterStore) reserve(key string, now time.Time) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)
	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.visitors[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// sweep drops idle visitors at most once per IdleTTL. Caller holds mu.
func (s *limiterStore) sweep(now time.Time) {
	if s.cfg.IdleTTL <= 0 || now.Sub(s.swept) < s.cfg.IdleTTL {
		return
	}
	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) >= s.cfg.IdleTTL {
			delete(s.visitors, key)
		}
	}
	s.swept = now
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// RateLimit limits requests per client IP. Rejected requests get a 429 with
// Retry-After in whole seconds.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newLimiterStore(cfg))
}

func rateLimit(store *limiterStore) echo.MiddlewareFunc {
	cfg := store.cfg
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			c.Response().Header().Set("X-RateLimit-Limit", limit)

			ok, wait := store.reserve(key, cfg.Clock.Now())
			if !ok {
				retryAfter := int(math.Ceil(wait.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				cfg.Logger.Warn().
					Str("remote_ip", key).
					Str("path", c.Path()).
					Int("retry_after", retryAfter).
					Msg("rate limit exceeded")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
