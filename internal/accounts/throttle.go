package accounts

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxThrottleKeys = 10000

// throttle limits login attempts per email address.
type throttle struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newThrottle(perMinute int) *throttle {
	if perMinute <= 0 {
		return nil
	}
	return &throttle{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (t *throttle) allow(email string) bool {
	if t == nil {
		return true
	}
	key := strings.ToLower(strings.TrimSpace(email))
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[key]
	if !ok {
		if len(t.limiters) >= maxThrottleKeys {
			clear(t.limiters)
		}
		l = rate.NewLimiter(t.limit, t.burst)
		t.limiters[key] = l
	}
	return l.Allow()
}
