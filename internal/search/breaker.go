package search

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrBackendOpen is returned while a tripped backend is cooling down.
var ErrBackendOpen = eris.New("search: backend circuit open")

// BreakerState is the state of a guarded backend.
type BreakerState int

const (
	// BreakerClosed lets queries through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects queries until the reset timeout elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single probe query through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls when a backend is taken out of rotation.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed queries before
	// the backend is skipped. Default: 3.
	FailureThreshold int
	// ResetTimeout is how long the backend is skipped. Default: 5m.
	ResetTimeout time.Duration
}

// GuardedBackend wraps a Backend with a circuit breaker. After
// FailureThreshold consecutive failures the backend is skipped until
// ResetTimeout elapses, then a single probe decides whether it is back.
type GuardedBackend struct {
	Backend

	cfg      BreakerConfig
	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// WithBreaker guards b with a circuit breaker.
func WithBreaker(b Backend, cfg BreakerConfig) *GuardedBackend {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 5 * time.Minute
	}
	return &GuardedBackend{Backend: b, cfg: cfg, now: time.Now}
}

// Search runs the query unless the circuit is open. A cancelled context does
// not count as a backend failure.
func (g *GuardedBackend) Search(ctx context.Context, query string) ([]string, error) {
	if err := g.allow(); err != nil {
		return nil, err
	}
	urls, err := g.Backend.Search(ctx, query)
	if err != nil && ctx.Err() != nil {
		g.release()
		return nil, err
	}
	g.record(err)
	return urls, err
}

// State returns the current circuit state.
func (g *GuardedBackend) State() BreakerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == BreakerOpen && g.now().Sub(g.openedAt) >= g.cfg.ResetTimeout {
		return BreakerHalfOpen
	}
	return g.state
}

func (g *GuardedBackend) allow() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case BreakerOpen:
		if g.now().Sub(g.openedAt) < g.cfg.ResetTimeout {
			return eris.Wrapf(ErrBackendOpen, "search: %s", g.Name())
		}
		g.transition(BreakerHalfOpen)
		g.probing = true
		return nil
	case BreakerHalfOpen:
		if g.probing {
			return eris.Wrapf(ErrBackendOpen, "search: %s probing", g.Name())
		}
		g.probing = true
	}
	return nil
}

// release gives up a half-open probe slot without judging the backend.
func (g *GuardedBackend) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.probing = false
}

func (g *GuardedBackend) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.probing = false

	if err == nil {
		g.failures = 0
		if g.state != BreakerClosed {
			g.transition(BreakerClosed)
		}
		return
	}

	g.failures++
	switch g.state {
	case BreakerClosed:
		if g.failures >= g.cfg.FailureThreshold {
			g.openedAt = g.now()
			g.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		g.openedAt = g.now()
		g.transition(BreakerOpen)
	}
}

func (g *GuardedBackend) transition(to BreakerState) {
	from := g.state
	g.state = to
	zap.L().Info("search: backend circuit state changed",
		zap.String("backend", g.Name()),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("consecutive_failures", g.failures),
	)
}
