package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter spaces requests per host: one request per delay, burst 1
type RateLimiter struct {
	limiters map[string]*rate.Limiter // hostname -> limiter
	mu       sync.Mutex               // Protects limiters
	delay    time.Duration
	log      *logrus.Entry
}

// NewRateLimiter creates a RateLimiter. A zero delay disables throttling.
func NewRateLimiter(delay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
		log:      log,
	}
}

// limiterFor gets or creates the limiter for a host
func (rl *RateLimiter) limiterFor(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(rl.delay), 1)
	rl.limiters[host] = l
	rl.log.WithFields(logrus.Fields{"host": host, "delay": rl.delay}).Debug("Created rate limiter for host")
	return l
}

// Wait blocks until a request to host is allowed or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl.delay <= 0 {
		return ctx.Err()
	}
	l := rl.limiterFor(host)
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		// rate returns its own error when the deadline is too close; report the context's instead
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		rl.log.WithFields(logrus.Fields{"host": host, "waited": waited}).Trace("Rate limit applied")
	}
	return nil
}
