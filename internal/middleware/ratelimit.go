package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/example/campuspoints/internal/metrics"
)

// AddressLimiter allows one request per interval per caller address. Idle
// addresses are evicted after the interval and the table never holds more
// than size entries.
type AddressLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiters *expirable.LRU[string, *rate.Limiter]
}

// NewAddressLimiter constructs an AddressLimiter.
func NewAddressLimiter(interval time.Duration, size int) *AddressLimiter {
	return &AddressLimiter{
		interval: interval,
		limiters: expirable.NewLRU[string, *rate.Limiter](size, nil, interval),
	}
}

// Allow reports whether addr may make a request now.
func (l *AddressLimiter) Allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters.Get(addr)
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters.Add(addr, limiter)
	}
	return limiter.Allow()
}

// Handler rejects requests from addresses over the limit with 429.
func (l *AddressLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(c.IP()) {
			metrics.ResetsThrottled.Inc()
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests")
		}
		return c.Next()
	}
}
