package strava

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default limiter configuration, sized well under Strava's published quota
// (100 requests per 15 minutes, 1000 per day for the non-upload bucket).
const (
	DefaultWindow       = 15 * time.Minute
	DefaultWindowBudget = 90
	DefaultDay          = 24 * time.Hour
	DefaultDayBudget    = 900
	DefaultMinSpacing   = 1100 * time.Millisecond
)

// Limiter serializes Strava API calls across all concurrent webhook
// deliveries in the process. It combines four constraints:
//
//   - single in-flight request (mutex)
//   - minimum spacing between consecutive requests
//   - a reservoir of requests per rolling short window
//   - a reservoir of requests per rolling day
//
// Excess demand queues on Wait rather than bursting; correctness and quota
// preservation win over throughput for asynchronous webhook work.
type Limiter struct {
	mu      sync.Mutex
	spacing *rate.Limiter
	window  *rate.Limiter
	day     *rate.Limiter
}

func NewLimiter(window time.Duration, windowBudget int, day time.Duration, dayBudget int, minSpacing time.Duration) *Limiter {
	return &Limiter{
		spacing: rate.NewLimiter(rate.Every(minSpacing), 1),
		window:  rate.NewLimiter(rate.Limit(float64(windowBudget)/window.Seconds()), windowBudget),
		day:     rate.NewLimiter(rate.Limit(float64(dayBudget)/day.Seconds()), dayBudget),
	}
}

func NewDefaultLimiter() *Limiter {
	return NewLimiter(DefaultWindow, DefaultWindowBudget, DefaultDay, DefaultDayBudget, DefaultMinSpacing)
}

// Acquire blocks until a request slot is available, then holds the
// single-concurrency lock. Callers must call the returned release func once
// the request completes.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	l.mu.Lock()
	if err := l.day.Wait(ctx); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if err := l.window.Wait(ctx); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if err := l.spacing.Wait(ctx); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	return l.mu.Unlock, nil
}
