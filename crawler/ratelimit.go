package crawler

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// minRate and maxRate bound the adaptive rate in requests per second.
	minRate = 1.0
	maxRate = 100.0

	// rttSmoothing is the EMA weight of a new round-trip observation.
	rttSmoothing = 0.2

	// speedUp is the rate multiplier applied while responses beat the target.
	speedUp = 1.1

	// maxSlowDown is the lowest multiplier a single slow response can apply.
	maxSlowDown = 0.5
)

// AdaptiveLimiter paces page requests. In adaptive mode it tracks an
// exponential moving average of response times and slows down when the
// server answers slower than the target, speeding up again as it recovers.
// A fixed rate disables adaptation.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	targetRTT time.Duration
	avgRTT    time.Duration
	current   float64
	fixed     bool
}

// NewAdaptiveLimiter creates a limiter starting at initialRPS that adapts
// towards targetRTT.
func NewAdaptiveLimiter(initialRPS int, targetRTT time.Duration) *AdaptiveLimiter {
	start := clampRate(float64(initialRPS))
	return &AdaptiveLimiter{
		limiter:   rate.NewLimiter(rate.Limit(start), burstFor(start)),
		targetRTT: targetRTT,
		avgRTT:    targetRTT,
		current:   start,
	}
}

// Wait blocks until the next request may start or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// ObserveRTT feeds one response time into the moving average and adjusts
// the rate. It is a no-op for fixed-rate limiters.
func (a *AdaptiveLimiter) ObserveRTT(rtt time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fixed || a.targetRTT <= 0 {
		return
	}

	a.avgRTT = time.Duration(rttSmoothing*float64(rtt) + (1-rttSmoothing)*float64(a.avgRTT))
	if a.avgRTT <= 0 {
		return
	}

	ratio := float64(a.targetRTT) / float64(a.avgRTT)
	next := a.current * speedUp
	if ratio < 1 {
		next = a.current * max(ratio, maxSlowDown)
	}
	next = clampRate(next)

	if math.Abs(next-a.current) > 0.05 {
		a.apply(next)
	}
}

// SetRate pins the limiter to rps and disables adaptation.
func (a *AdaptiveLimiter) SetRate(rps int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.fixed = true
	a.apply(clampRate(float64(rps)))
}

// CurrentRate returns the current rate in requests per second, rounded.
func (a *AdaptiveLimiter) CurrentRate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(math.Round(a.current))
}

// AverageRTT returns the moving average of observed response times.
func (a *AdaptiveLimiter) AverageRTT() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.avgRTT
}

// apply must be called with mu held.
func (a *AdaptiveLimiter) apply(rps float64) {
	a.current = rps
	a.limiter.SetLimit(rate.Limit(rps))
	a.limiter.SetBurst(burstFor(rps))
}

func clampRate(rps float64) float64 {
	return min(max(rps, minRate), maxRate)
}

func burstFor(rps float64) int {
	return int(math.Ceil(rps))
}
