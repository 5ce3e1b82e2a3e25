package telemetry

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle allows each metric to publish at most once per interval.
// Suppressed values are discarded, not delayed.
type Throttle struct {
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, limiters: make(map[string]*rate.Limiter)}
}

func (t *Throttle) ShouldPublish(metricName string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.limiters[metricName]
	if !ok {
		limiter = rate.NewLimiter(t.limit(), 1)
		t.limiters[metricName] = limiter
	}
	return limiter.AllowN(now, 1)
}

func (t *Throttle) limit() rate.Limit {
	if t.interval <= 0 {
		return rate.Inf
	}
	return rate.Every(t.interval)
}
