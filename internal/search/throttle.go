package search

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Throttle spaces every outbound request of an engine by at least the
// configured delay. It is shared by all backends and the page fetcher, so the
// spacing holds per request even when several records run concurrently.
type Throttle struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	delay    time.Duration
	maxDelay time.Duration
}

// NewThrottle creates a Throttle. A zero delay disables waiting.
func NewThrottle(delay time.Duration) *Throttle {
	return &Throttle{
		limiter:  rate.NewLimiter(limitFor(delay), 1),
		delay:    delay,
		maxDelay: delay * 4,
	}
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// Wait blocks until the next request may be sent.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return ctx.Err()
	}
	return t.limiter.Wait(ctx)
}

// OnRateLimit doubles the spacing after a backend pushes back (HTTP 202/429),
// up to four times the configured delay.
func (t *Throttle) OnRateLimit() {
	if t == nil || t.delay <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.currentDelay()
	next := cur * 2
	if next > t.maxDelay {
		next = t.maxDelay
	}
	t.limiter.SetLimit(limitFor(next))
	zap.L().Warn("search: backend pushed back, slowing down",
		zap.Duration("delay", next),
	)
}

// Reset restores the configured spacing once a backend answers normally again.
func (t *Throttle) Reset() {
	if t == nil || t.delay <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.currentDelay() == t.delay {
		return
	}
	t.limiter.SetLimit(limitFor(t.delay))
	zap.L().Info("search: backend recovered, spacing restored",
		zap.Duration("delay", t.delay),
	)
}

// Delay returns the current spacing between requests.
func (t *Throttle) Delay() time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentDelay()
}

func (t *Throttle) currentDelay() time.Duration {
	l := t.limiter.Limit()
	if l == rate.Inf || l <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(time.Second) / float64(l)))
}
