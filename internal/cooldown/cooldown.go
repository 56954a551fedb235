// Package cooldown provides a per-entity alert gate that lets at most one
// alert through per cooldown window.
package cooldown

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultWindow is the crash/anomaly alert cooldown.
const DefaultWindow = 600 * time.Second

// Gate is a token bucket of one: a single token refilled once per window.
//
// Callers pass the current time explicitly so the gate can be driven by a
// fake clock in tests. Gate is safe for concurrent use.
type Gate struct {
	window  time.Duration
	limiter *rate.Limiter
	slack   float64

	mu sync.Mutex
	// last records the latest allowed alert for Last; the limiter decides.
	last time.Time
}

// New creates a Gate with the given window. A non-positive window falls back
// to [DefaultWindow].
func New(window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Gate{
		window:  window,
		limiter: rate.NewLimiter(rate.Every(window), 1),
		slack:   boundarySlack(window),
	}
}

// Allow reports whether an alert may be emitted at now. A true result
// consumes the token and records now as the last alert time.
func (g *Gate) Allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.limiter.TokensAt(now) < 1-g.slack {
		return false
	}
	// the token is available up to rounding; reserve it so the bucket
	// restarts its refill from now
	r := g.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false
	}
	g.last = now
	return true
}

// boundarySlack is half a nanosecond's worth of tokens. It absorbs float
// rounding in the limiter, which can leave the bucket a hair short of one
// token at exactly one window.
func boundarySlack(window time.Duration) float64 {
	return math.Max(0.5/float64(window.Nanoseconds()), 1e-15)
}

// Last returns the time of the last allowed alert, or the zero time.
func (g *Gate) Last() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Window returns the configured cooldown window.
func (g *Gate) Window() time.Duration {
	return g.window
}
